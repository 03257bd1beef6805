package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateCycle is returned when a cycle for the period already exists.
var ErrDuplicateCycle = errors.New("allocation cycle already exists")

type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// ListMatrix returns the approval chain ordered by step order.
func (r *ApprovalRepository) ListMatrix(ctx context.Context) ([]entity.ApprovalMatrix, error) {
	var matrix []entity.ApprovalMatrix
	err := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).Find(&matrix).Error
	if err != nil {
		return nil, fmt.Errorf("list approval matrix: %w", err)
	}
	return matrix, nil
}

// FindCycle loads the cycle for the period without locking.
func (r *ApprovalRepository) FindCycle(ctx context.Context, month, year int) (*entity.ApprovalCycle, error) {
	var cycle entity.ApprovalCycle
	err := r.db.WithContext(ctx).Where("month = ? AND year = ?", month, year).First(&cycle).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cycle, nil
}

// LockCycle loads the cycle with SELECT ... FOR UPDATE. Must run inside a unit of work.
func (r *ApprovalRepository) LockCycle(ctx context.Context, month, year int) (*entity.ApprovalCycle, error) {
	var cycle entity.ApprovalCycle
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("month = ? AND year = ?", month, year).
		First(&cycle).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cycle, nil
}

// CreateCycle inserts the cycle and its records.
func (r *ApprovalRepository) CreateCycle(ctx context.Context, cycle *entity.ApprovalCycle, records []entity.ApprovalRecord) error {
	if err := r.db.WithContext(ctx).Create(cycle).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCycle
		}
		return fmt.Errorf("create allocation cycle: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("create approval records: %w", err)
	}
	return nil
}

// ListRecords returns the cycle records in step order.
func (r *ApprovalRepository) ListRecords(ctx context.Context, cycleID string) ([]entity.ApprovalRecord, error) {
	var records []entity.ApprovalRecord
	err := r.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("step ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}

// ListRecordsByPeriod returns the records of the period in step order.
func (r *ApprovalRepository) ListRecordsByPeriod(ctx context.Context, month, year int) ([]entity.ApprovalRecord, error) {
	var records []entity.ApprovalRecord
	err := r.db.WithContext(ctx).
		Where("month = ? AND year = ?", month, year).
		Order("step ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}

// CountPending counts the unapproved records of the period.
func (r *ApprovalRepository) CountPending(ctx context.Context, month, year int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ApprovalRecord{}).
		Where("month = ? AND year = ? AND approved_at IS NULL", month, year).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending approvals: %w", err)
	}
	return count, nil
}

// SaveRecord persists the approval fields of a record.
func (r *ApprovalRepository) SaveRecord(ctx context.Context, record *entity.ApprovalRecord) error {
	err := r.db.WithContext(ctx).
		Model(record).
		Select("approver_id", "approver_name", "approved_at", "approved_comment", "approval_flag", "updated_by", "updated_at").
		Updates(record).Error
	if err != nil {
		return fmt.Errorf("save approval record: %w", err)
	}
	return nil
}

// UpdateCycle writes the cursor and state when the stored version still equals
// expectedVersion, bumping it by one. ErrStaleVersion otherwise.
func (r *ApprovalRepository) UpdateCycle(ctx context.Context, cycle *entity.ApprovalCycle, expectedVersion int) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&entity.ApprovalCycle{}).
		Where("id = ? AND version = ?", cycle.ID, expectedVersion).
		Updates(map[string]interface{}{
			"state":        cycle.State,
			"current_step": cycle.CurrentStep,
			"approved_at":  cycle.ApprovedAt,
			"version":      expectedVersion + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("update allocation cycle: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	cycle.Version = expectedVersion + 1
	cycle.UpdatedAt = now
	return nil
}
