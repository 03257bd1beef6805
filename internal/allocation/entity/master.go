package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockPilot caps available stock per segment for a cycle.
type StockPilot struct {
	ID         string          `json:"id" gorm:"primaryKey;size:255"`
	SegmentID  string          `json:"segment_id" gorm:"size:255;not null"`
	Month      int             `json:"month" gorm:"not null"`
	Year       int             `json:"year" gorm:"not null"`
	Percentage decimal.Decimal `json:"percentage" gorm:"type:numeric(7,2);not null;default:0"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (StockPilot) TableName() string {
	return "va_stock_pilots"
}

// OrderConfiguration splits unfinished stock between forecast and urgent orders.
type OrderConfiguration struct {
	ID                 string          `json:"id" gorm:"primaryKey;size:255"`
	CategoryID         string          `json:"category_id" gorm:"size:255;not null"`
	Month              int             `json:"month" gorm:"not null"`
	Year               int             `json:"year" gorm:"not null"`
	ForecastPercentage decimal.Decimal `json:"forecast_percentage" gorm:"type:numeric(7,2);not null;default:0"`
	UrgentPercentage   decimal.Decimal `json:"urgent_percentage" gorm:"type:numeric(7,2);not null;default:0"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (OrderConfiguration) TableName() string {
	return "va_order_configurations"
}

type SlotCalculation struct {
	ID        string    `json:"id" gorm:"primaryKey;size:255"`
	Month     int       `json:"month" gorm:"not null"`
	Year      int       `json:"year" gorm:"not null"`
	Deletable int       `json:"-" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Details []SlotCalculationDetail `json:"details,omitempty" gorm:"foreignKey:SlotCalculationID"`
}

func (SlotCalculation) TableName() string {
	return "va_slot_calculations"
}

// SlotCalculationDetail carries the supply side figures per model and horizon.
type SlotCalculationDetail struct {
	ID                string `json:"id" gorm:"primaryKey;size:255"`
	SlotCalculationID string `json:"slot_calculation_id" gorm:"size:255;not null;index"`
	ModelID           string `json:"model_id" gorm:"size:255;not null"`
	ForecastMonth     int    `json:"forecast_month" gorm:"not null"`
	TakeOff           int64  `json:"take_off" gorm:"not null;default:0"`
	BO                int64  `json:"bo" gorm:"column:bo;not null;default:0"`
	SOA               int64  `json:"soa" gorm:"column:soa;not null;default:0"`
	OC                int64  `json:"oc" gorm:"column:oc;not null;default:0"`
	BookingProspect   int64  `json:"booking_prospect" gorm:"not null;default:0"`
	Deletable         int    `json:"-" gorm:"not null;default:0"`
}

func (SlotCalculationDetail) TableName() string {
	return "va_slot_calculation_details"
}
