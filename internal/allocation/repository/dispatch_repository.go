package repository

import (
	"context"
	"fmt"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"gorm.io/gorm"
)

type DispatchRepository struct {
	db *gorm.DB
}

func NewDispatchRepository(db *gorm.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

func (r *DispatchRepository) Create(ctx context.Context, d *entity.AllocationDispatch) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// Latest returns the most recent dispatch attempt of the cycle.
func (r *DispatchRepository) Latest(ctx context.Context, cycleID string) (*entity.AllocationDispatch, error) {
	var d entity.AllocationDispatch
	err := r.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("attempted_at DESC").
		First(&d).Error
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}
