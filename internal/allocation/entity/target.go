package entity

import "time"

// MonthlyTarget groups the dealer targets uploaded for a cycle.
type MonthlyTarget struct {
	ID        string    `json:"id" gorm:"primaryKey;size:255"`
	Month     int       `json:"month" gorm:"not null;index:idx_va_monthly_targets_cycle"`
	Year      int       `json:"year" gorm:"not null;index:idx_va_monthly_targets_cycle"`
	Deletable int       `json:"-" gorm:"not null;default:0"`
	CreatedBy string    `json:"created_by" gorm:"size:255"`
	UpdatedBy string    `json:"updated_by" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Details []MonthlyTargetDetail `json:"details,omitempty" gorm:"foreignKey:MonthlyTargetID"`
}

func (MonthlyTarget) TableName() string {
	return "va_monthly_targets"
}

type MonthlyTargetDetail struct {
	ID              string    `json:"id" gorm:"primaryKey;size:255"`
	MonthlyTargetID string    `json:"monthly_target_id" gorm:"size:255;not null;index"`
	DealerID        string    `json:"dealer_id" gorm:"size:255;not null"`
	CategoryID      string    `json:"category_id" gorm:"size:255;not null"`
	ForecastMonth   int       `json:"forecast_month" gorm:"not null"`
	Target          int64     `json:"target" gorm:"not null;default:0"`
	Deletable       int       `json:"-" gorm:"not null;default:0"`
	CreatedBy       string    `json:"created_by" gorm:"size:255"`
	DeletedBy       string    `json:"deleted_by" gorm:"size:255"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (MonthlyTargetDetail) TableName() string {
	return "va_monthly_target_details"
}
