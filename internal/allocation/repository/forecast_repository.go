package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/engine"
	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ForecastRepository struct {
	db *gorm.DB
}

func NewForecastRepository(db *gorm.DB) *ForecastRepository {
	return &ForecastRepository{db: db}
}

// ExistsForCycle reports whether any non-deleted forecast exists for the cycle.
func (r *ForecastRepository) ExistsForCycle(ctx context.Context, month, year int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Forecast{}).
		Where("month = ? AND year = ? AND deletable = 0", month, year).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count forecasts: %w", err)
	}
	return count > 0, nil
}

// LockForCycle locks the cycle's non-deleted forecast headers FOR UPDATE and
// returns how many there are. Must run inside a unit of work; saves of the
// same cycle queue behind each other on these rows.
func (r *ForecastRepository) LockForCycle(ctx context.Context, month, year int) (int, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.Forecast{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("month = ? AND year = ? AND deletable = 0", month, year).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("lock forecasts: %w", err)
	}
	return len(ids), nil
}

// cycleMonthScope restricts detail months to those belonging to the cycle.
func cycleMonthScope(month, year int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(`deletable = 0 AND forecast_detail_id IN (
			SELECT fd.id FROM va_forecast_details fd
			JOIN va_forecasts f ON f.id = fd.forecast_id
			WHERE fd.deletable = 0 AND f.deletable = 0 AND f.month = ? AND f.year = ?)`, month, year)
	}
}

// ApplyAdjustment sets the operator adjustment of a detail month of the cycle.
// ErrNotFound means the id is unknown or belongs to another cycle.
func (r *ForecastRepository) ApplyAdjustment(ctx context.Context, month, year int, detailMonthID string, adjustment int64, userID string) error {
	res := r.db.WithContext(ctx).
		Model(&entity.ForecastDetailMonth{}).
		Scopes(cycleMonthScope(month, year)).
		Where("id = ?", detailMonthID).
		Updates(map[string]interface{}{
			"adjustment": adjustment,
			"updated_by": userID,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("apply adjustment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FreezeAllocations stores the final allocation per detail month id.
func (r *ForecastRepository) FreezeAllocations(ctx context.Context, allocations map[string]int64, userID string) error {
	now := time.Now()
	for id, value := range allocations {
		err := r.db.WithContext(ctx).
			Model(&entity.ForecastDetailMonth{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"hmsi_allocation": value,
				"updated_by":      userID,
				"updated_at":      now,
			}).Error
		if err != nil {
			return fmt.Errorf("freeze allocation %s: %w", id, err)
		}
	}
	return nil
}

// ListPayloadDetails loads the non-deleted forecast details of the cycle with
// their non-deleted months, ordered by forecast and detail id.
func (r *ForecastRepository) ListPayloadDetails(ctx context.Context, month, year int) ([]engine.PayloadDetail, error) {
	var details []entity.ForecastDetail
	err := r.db.WithContext(ctx).
		Joins("JOIN va_forecasts ON va_forecasts.id = va_forecast_details.forecast_id").
		Where("va_forecasts.month = ? AND va_forecasts.year = ? AND va_forecasts.deletable = 0", month, year).
		Where("va_forecast_details.deletable = 0").
		Preload("Months", "deletable = 0", func(db *gorm.DB) *gorm.DB {
			return db.Order("forecast_month ASC")
		}).
		Preload("Model").
		Order("va_forecast_details.forecast_id ASC, va_forecast_details.id ASC").
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("list forecast details: %w", err)
	}

	out := make([]engine.PayloadDetail, 0, len(details))
	for _, d := range details {
		variant := d.ModelID
		if d.Model != nil && d.Model.Variant != "" {
			variant = d.Model.Variant
		}
		pd := engine.PayloadDetail{
			ForecastDetailID: d.ID,
			ForecastID:       d.ForecastID,
			ModelVariant:     variant,
		}
		for _, m := range d.Months {
			pd.Months = append(pd.Months, engine.PayloadMonth{
				ForecastMonth:  m.ForecastMonth,
				HMSIAllocation: m.HMSIAllocation,
			})
		}
		out = append(out, pd)
	}
	return out, nil
}
