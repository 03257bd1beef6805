package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when an optimistic update matched no row.
	ErrStaleVersion = errors.New("stale version")
)

// Repositories bundles the allocation repositories sharing one handle.
type Repositories struct {
	Input    *InputRepository
	Forecast *ForecastRepository
	Target   *TargetRepository
	Approval *ApprovalRepository
	Dispatch *DispatchRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Input:    NewInputRepository(db),
		Forecast: NewForecastRepository(db),
		Target:   NewTargetRepository(db),
		Approval: NewApprovalRepository(db),
		Dispatch: NewDispatchRepository(db),
	}
}

// WithUnitOfWork returns repositories bound to the unit of work transaction.
func (r *Repositories) WithUnitOfWork(uow *UnitOfWork) *Repositories {
	return NewRepositories(uow.Tx())
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
