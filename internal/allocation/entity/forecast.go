package entity

import "time"

// Dealer is a dealership receiving allocations.
type Dealer struct {
	ID   string `json:"id" gorm:"primaryKey;size:255"`
	Name string `json:"name" gorm:"size:255"`
}

func (Dealer) TableName() string {
	return "va_dealers"
}

type Category struct {
	ID   string `json:"id" gorm:"primaryKey;size:255"`
	Name string `json:"name" gorm:"size:255"`
}

func (Category) TableName() string {
	return "va_categories"
}

type Segment struct {
	ID   string `json:"id" gorm:"primaryKey;size:255"`
	Name string `json:"name" gorm:"size:255"`
}

func (Segment) TableName() string {
	return "va_segments"
}

// Model is a vehicle model variant.
type Model struct {
	ID         string `json:"id" gorm:"primaryKey;size:255"`
	Variant    string `json:"variant" gorm:"size:255"`
	CategoryID string `json:"category_id" gorm:"size:255;index"`
	SegmentID  string `json:"segment_id" gorm:"size:255;index"`
}

func (Model) TableName() string {
	return "va_models"
}

// Forecast is one dealer's forecast submission for a cycle.
type Forecast struct {
	ID          string     `json:"id" gorm:"primaryKey;size:255"`
	Name        string     `json:"name" gorm:"size:255"`
	Month       int        `json:"month" gorm:"not null;index:idx_va_forecasts_cycle"`
	Year        int        `json:"year" gorm:"not null;index:idx_va_forecasts_cycle"`
	DealerID    string     `json:"dealer_id" gorm:"size:255;not null"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
	Deletable   int        `json:"-" gorm:"not null;default:0"`
	CreatedBy   string     `json:"created_by" gorm:"size:255"`
	UpdatedBy   string     `json:"updated_by" gorm:"size:255"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Details []ForecastDetail `json:"details,omitempty" gorm:"foreignKey:ForecastID"`
	Dealer  *Dealer          `json:"dealer,omitempty" gorm:"foreignKey:DealerID"`
}

func (Forecast) TableName() string {
	return "va_forecasts"
}

type ForecastDetail struct {
	ID         string    `json:"id" gorm:"primaryKey;size:255"`
	ForecastID string    `json:"forecast_id" gorm:"size:255;not null;index"`
	ModelID    string    `json:"model_id" gorm:"size:255;not null"`
	EndStock   int64     `json:"end_stock" gorm:"not null;default:0"`
	Deletable  int       `json:"-" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Months []ForecastDetailMonth `json:"months,omitempty" gorm:"foreignKey:ForecastDetailID"`
	Model  *Model                `json:"model,omitempty" gorm:"foreignKey:ModelID"`
}

func (ForecastDetail) TableName() string {
	return "va_forecast_details"
}

// ForecastDetailMonth holds the per horizon figures of a forecast detail.
// ForecastMonth is the offset from the cycle month, 0 being the cycle itself.
type ForecastDetailMonth struct {
	ID               string    `json:"id" gorm:"primaryKey;size:255"`
	ForecastDetailID string    `json:"forecast_detail_id" gorm:"size:255;not null;index"`
	ForecastMonth    int       `json:"forecast_month" gorm:"not null"`
	TotalWS          int64     `json:"total_ws" gorm:"column:total_ws;not null;default:0"`
	Adjustment       int64     `json:"adjustment" gorm:"not null;default:0"`
	ConfirmedTotalWS int64     `json:"confirmed_total_ws" gorm:"column:confirmed_total_ws;not null;default:0"`
	HMSIAllocation   int64     `json:"hmsi_allocation" gorm:"column:hmsi_allocation;not null;default:0"`
	Deletable        int       `json:"-" gorm:"not null;default:0"`
	UpdatedBy        string    `json:"updated_by" gorm:"size:255"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (ForecastDetailMonth) TableName() string {
	return "va_forecast_detail_months"
}
