package repository

import (
	"context"
	"fmt"

	"github.com/abascode/his-backend-abas/internal/allocation/engine"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InputRepository aggregates the per cycle inputs of the allocation engine.
type InputRepository struct {
	db *gorm.DB
}

func NewInputRepository(db *gorm.DB) *InputRepository {
	return &InputRepository{db: db}
}

const inputRowsQuery = `
SELECT f.dealer_id,
       COALESCE(d.name, '')                 AS dealer_name,
       f.id                                 AS forecast_id,
       fd.id                                AS forecast_detail_id,
       fdm.id                               AS forecast_detail_month_id,
       fd.model_id,
       COALESCE(m.variant, '')              AS model_variant,
       COALESCE(m.segment_id, '')           AS segment_id,
       COALESCE(m.category_id, '')          AS category_id,
       fdm.forecast_month,
       COALESCE(fdm.total_ws, 0)            AS ws,
       COALESCE(fdm.adjustment, 0)          AS adjustment,
       COALESCE(scd.take_off, 0)            AS take_off,
       COALESCE(scd.bo, 0)                  AS bo,
       COALESCE(scd.soa, 0)                 AS soa,
       COALESCE(scd.oc, 0)                  AS oc,
       COALESCE(scd.booking_prospect, 0)    AS booking_prospect,
       COALESCE(sp.percentage, 0)           AS stock_pilot_percentage,
       COALESCE(oc.forecast_percentage, 0)  AS forecast_percentage,
       COALESCE(fdm.confirmed_total_ws, 0)  AS confirmed_total_ws,
       COALESCE(fd.end_stock, 0)            AS end_stock
FROM va_forecasts f
         LEFT JOIN va_dealers d ON d.id = f.dealer_id
         JOIN va_forecast_details fd ON fd.forecast_id = f.id AND fd.deletable = 0
         JOIN va_forecast_detail_months fdm ON fdm.forecast_detail_id = fd.id AND fdm.deletable = 0
         LEFT JOIN va_models m ON m.id = fd.model_id
         LEFT JOIN va_stock_pilots sp ON sp.segment_id = m.segment_id AND sp.month = f.month AND sp.year = f.year
         LEFT JOIN va_order_configurations oc
                   ON oc.category_id = m.category_id AND oc.month = f.month AND oc.year = f.year
         LEFT JOIN va_slot_calculations sc ON sc.month = f.month AND sc.year = f.year AND sc.deletable = 0
         LEFT JOIN va_slot_calculation_details scd
                   ON scd.slot_calculation_id = sc.id AND scd.model_id = fd.model_id AND
                      scd.forecast_month = fdm.forecast_month AND scd.deletable = 0
WHERE f.month = ?
  AND f.year = ?
  AND f.deletable = 0
ORDER BY f.dealer_id, m.category_id, fd.model_id, fdm.forecast_month`

const targetRowsQuery = `
SELECT mtd.dealer_id,
       mtd.category_id,
       mtd.forecast_month,
       mtd.target,
       COALESCE(SUM(COALESCE(scd.soa, 0) + COALESCE(scd.bo, 0)), 0) AS realized_prior_alloc,
       COALESCE(SUM(fdm.total_ws), 0)                               AS realized_ws
FROM va_monthly_targets mt
         JOIN va_monthly_target_details mtd ON mtd.monthly_target_id = mt.id AND mtd.deletable = 0
         LEFT JOIN va_forecasts f
                   ON f.month = mt.month AND f.year = mt.year AND f.dealer_id = mtd.dealer_id AND f.deletable = 0
         LEFT JOIN va_forecast_details fd ON fd.forecast_id = f.id AND fd.deletable = 0
         LEFT JOIN va_models m ON m.id = fd.model_id AND m.category_id = mtd.category_id
         LEFT JOIN va_forecast_detail_months fdm
                   ON fdm.forecast_detail_id = fd.id AND m.id IS NOT NULL AND
                      fdm.forecast_month = mtd.forecast_month AND fdm.deletable = 0
         LEFT JOIN va_slot_calculations sc ON sc.month = mt.month AND sc.year = mt.year AND sc.deletable = 0
         LEFT JOIN va_slot_calculation_details scd
                   ON scd.slot_calculation_id = sc.id AND scd.model_id = m.id AND
                      scd.forecast_month = mtd.forecast_month AND scd.deletable = 0
WHERE mt.month = ?
  AND mt.year = ?
  AND mt.deletable = 0
GROUP BY mtd.id, mtd.dealer_id, mtd.category_id, mtd.forecast_month, mtd.target
ORDER BY mtd.dealer_id, mtd.category_id, mtd.forecast_month`

type inputRowScan struct {
	DealerID              string
	DealerName            string
	ForecastID            string
	ForecastDetailID      string
	ForecastDetailMonthID string
	ModelID               string
	ModelVariant          string
	SegmentID             string
	CategoryID            string
	ForecastMonth         int
	WS                    int64 `gorm:"column:ws"`
	Adjustment            int64
	TakeOff               int64
	BO                    int64 `gorm:"column:bo"`
	SOA                   int64 `gorm:"column:soa"`
	OC                    int64 `gorm:"column:oc"`
	BookingProspect       int64
	StockPilotPercentage  decimal.Decimal
	ForecastPercentage    decimal.Decimal
	ConfirmedTotalWS      int64 `gorm:"column:confirmed_total_ws"`
	EndStock              int64
}

func (s inputRowScan) toEngine() engine.InputRow {
	return engine.InputRow{
		DealerID:              s.DealerID,
		DealerName:            s.DealerName,
		ForecastID:            s.ForecastID,
		ForecastDetailID:      s.ForecastDetailID,
		ForecastDetailMonthID: s.ForecastDetailMonthID,
		ModelID:               s.ModelID,
		ModelVariant:          s.ModelVariant,
		SegmentID:             s.SegmentID,
		CategoryID:            s.CategoryID,
		ForecastMonth:         s.ForecastMonth,
		WS:                    s.WS,
		Adjustment:            s.Adjustment,
		TakeOff:               s.TakeOff,
		BO:                    s.BO,
		SOA:                   s.SOA,
		OC:                    s.OC,
		BookingProspect:       s.BookingProspect,
		StockPilotPercentage:  s.StockPilotPercentage.InexactFloat64(),
		ForecastPercentage:    s.ForecastPercentage.InexactFloat64(),
		ConfirmedTotalWS:      s.ConfirmedTotalWS,
		EndStock:              s.EndStock,
	}
}

// ListInputRows returns one row per non-deleted forecast detail month of the cycle.
func (r *InputRepository) ListInputRows(ctx context.Context, month, year int) ([]engine.InputRow, error) {
	var scanned []inputRowScan
	if err := r.db.WithContext(ctx).Raw(inputRowsQuery, month, year).Scan(&scanned).Error; err != nil {
		return nil, fmt.Errorf("list allocation inputs: %w", err)
	}
	rows := make([]engine.InputRow, 0, len(scanned))
	for _, s := range scanned {
		rows = append(rows, s.toEngine())
	}
	return rows, nil
}

// ListTargetRows returns the cycle's monthly targets with realized figures.
func (r *InputRepository) ListTargetRows(ctx context.Context, month, year int) ([]engine.TargetRow, error) {
	var rows []engine.TargetRow
	err := r.db.WithContext(ctx).Raw(targetRowsQuery, month, year).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list monthly targets: %w", err)
	}
	return rows, nil
}

// DealerNames maps dealer ids to display names.
func (r *InputRepository) DealerNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var dealers []struct {
		ID   string
		Name string
	}
	err := r.db.WithContext(ctx).Table("va_dealers").Select("id, name").Where("id IN ?", ids).Scan(&dealers).Error
	if err != nil {
		return nil, fmt.Errorf("list dealers: %w", err)
	}
	for _, d := range dealers {
		names[d.ID] = d.Name
	}
	return names, nil
}
