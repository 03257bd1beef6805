package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TargetRepository struct {
	db *gorm.DB
}

func NewTargetRepository(db *gorm.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// FindOrCreate returns the monthly target header of the cycle, creating it when absent.
func (r *TargetRepository) FindOrCreate(ctx context.Context, month, year int, userID string) (*entity.MonthlyTarget, error) {
	var target entity.MonthlyTarget
	err := r.db.WithContext(ctx).
		Where("month = ? AND year = ? AND deletable = 0", month, year).
		First(&target).Error
	if err == nil {
		return &target, nil
	}
	if translate(err) != ErrNotFound {
		return nil, fmt.Errorf("find monthly target: %w", err)
	}

	now := time.Now()
	target = entity.MonthlyTarget{
		ID:        uuid.New().String(),
		Month:     month,
		Year:      year,
		CreatedBy: userID,
		UpdatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(&target).Error; err != nil {
		return nil, fmt.Errorf("create monthly target: %w", err)
	}
	return &target, nil
}

// ReplaceDetails soft-deletes the current details of the header and inserts details.
func (r *TargetRepository) ReplaceDetails(ctx context.Context, targetID string, details []entity.MonthlyTargetDetail, userID string) error {
	err := r.db.WithContext(ctx).
		Model(&entity.MonthlyTargetDetail{}).
		Where("monthly_target_id = ? AND deletable = 0", targetID).
		Updates(map[string]interface{}{
			"deletable":  1,
			"deleted_by": userID,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("retire monthly target details: %w", err)
	}
	if len(details) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(details, 200).Error; err != nil {
		return fmt.Errorf("create monthly target details: %w", err)
	}
	return r.db.WithContext(ctx).
		Model(&entity.MonthlyTarget{}).
		Where("id = ?", targetID).
		Updates(map[string]interface{}{"updated_by": userID, "updated_at": time.Now()}).Error
}

// ListDetails returns the live details of the cycle.
func (r *TargetRepository) ListDetails(ctx context.Context, month, year int) ([]entity.MonthlyTargetDetail, error) {
	var details []entity.MonthlyTargetDetail
	err := r.db.WithContext(ctx).
		Joins("JOIN va_monthly_targets ON va_monthly_targets.id = va_monthly_target_details.monthly_target_id").
		Where("va_monthly_targets.month = ? AND va_monthly_targets.year = ? AND va_monthly_targets.deletable = 0", month, year).
		Where("va_monthly_target_details.deletable = 0").
		Order("dealer_id, category_id, forecast_month").
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("list monthly target details: %w", err)
	}
	return details, nil
}

func (r *TargetRepository) ListDealers(ctx context.Context) ([]entity.Dealer, error) {
	var dealers []entity.Dealer
	if err := r.db.WithContext(ctx).Order("id").Find(&dealers).Error; err != nil {
		return nil, fmt.Errorf("list dealers: %w", err)
	}
	return dealers, nil
}

func (r *TargetRepository) ListCategories(ctx context.Context) ([]entity.Category, error) {
	var categories []entity.Category
	if err := r.db.WithContext(ctx).Order("id").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}
