package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var errUnitOfWorkClosed = errors.New("unit of work already closed")

// UnitOfWork is an explicit transaction scope passed to the code that needs
// it. It is closed by exactly one Commit or Rollback.
type UnitOfWork struct {
	tx     *gorm.DB
	closed bool
}

// Begin opens a unit of work on db.
func Begin(ctx context.Context, db *gorm.DB) (*UnitOfWork, error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Tx exposes the transaction handle to repositories.
func (u *UnitOfWork) Tx() *gorm.DB {
	return u.tx
}

func (u *UnitOfWork) Commit() error {
	if u.closed {
		return errUnitOfWorkClosed
	}
	u.closed = true
	if err := u.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op once the unit of work has been closed.
func (u *UnitOfWork) Rollback() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.tx.Rollback().Error
}

// RunInUnitOfWork commits when fn returns nil and rolls back on error or panic.
func RunInUnitOfWork(ctx context.Context, db *gorm.DB, fn func(uow *UnitOfWork) error) (err error) {
	uow, err := Begin(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			uow.Rollback()
			panic(p)
		}
		if err != nil {
			uow.Rollback()
		}
	}()

	if err = fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}
