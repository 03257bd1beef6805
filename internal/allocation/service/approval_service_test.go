package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/abascode/his-backend-abas/internal/shared/cyclelock"
	"github.com/abascode/his-backend-abas/internal/shared/hoyu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLocker struct {
	err      error
	released int
}

func (l *stubLocker) Acquire(ctx context.Context, month, year int) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.released++ }, nil
}

func TestAcquireHeldLockIsConflict(t *testing.T) {
	svc := NewApprovalService(nil, nil, Dependencies{Locker: &stubLocker{err: cyclelock.ErrLocked}})
	_, err := svc.acquire(context.Background(), 5, 2024)
	var cErr *ConflictError
	assert.True(t, errors.As(err, &cErr))
}

func TestAcquireFallsBackWhenRedisFails(t *testing.T) {
	svc := NewApprovalService(nil, nil, Dependencies{Locker: &stubLocker{err: errors.New("dial tcp: connection refused")}})
	release, err := svc.acquire(context.Background(), 5, 2024)
	require.NoError(t, err)
	require.NotNil(t, release)
	release()
}

func TestAcquireReleasesLock(t *testing.T) {
	locker := &stubLocker{}
	svc := NewApprovalService(nil, nil, Dependencies{Locker: locker})
	release, err := svc.acquire(context.Background(), 5, 2024)
	require.NoError(t, err)
	release()
	assert.Equal(t, 1, locker.released)

	noLock := NewApprovalService(nil, nil, Dependencies{})
	release, err = noLock.acquire(context.Background(), 5, 2024)
	require.NoError(t, err)
	release()
}

func TestApproveValidatesPeriod(t *testing.T) {
	svc := NewApprovalService(nil, nil, Dependencies{})
	_, err := svc.Approve(context.Background(), Actor{UserID: "u"}, &ApproveAllocationRequest{Month: 0, Year: 2024})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestDispatchCycleRequiresApproval(t *testing.T) {
	svc := NewApprovalService(nil, nil, Dependencies{})
	_, err := svc.DispatchCycle(context.Background(), &entity.ApprovalCycle{Month: 5, Year: 2024, State: entity.CycleStateInReview}, "u")
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "2024-05", periodLabel(5, 2024))
}

func TestDecideApprovalOnApprovedCycleIsNoop(t *testing.T) {
	now := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	cycle, records, err := newCycle(5, 2024, threeStepMatrix(), Actor{UserID: "u-1", RoleID: roleR1}, now)
	require.NoError(t, err)
	cycle.State = entity.CycleStateApproved
	cycle.CurrentStep = cycle.TotalSteps
	cycle.Version = 3

	stale := 1
	step, err := decideApproval(cycle, records, Actor{UserID: "u-3", RoleID: roleR3}, &ApproveAllocationRequest{Month: 5, Year: 2024, Version: &stale}, now)
	assert.ErrorIs(t, err, errCycleApproved)
	assert.Nil(t, step)
	assert.Equal(t, 3, cycle.Version)
}

func TestDecideApprovalVersionMismatchIsConflict(t *testing.T) {
	now := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	cycle, records, err := newCycle(5, 2024, threeStepMatrix(), Actor{UserID: "u-1", RoleID: roleR1}, now)
	require.NoError(t, err)

	stale := cycle.Version + 1
	_, err = decideApproval(cycle, records, Actor{UserID: "u-2", RoleID: roleR2}, &ApproveAllocationRequest{Month: 5, Year: 2024, Version: &stale}, now)
	var cErr *ConflictError
	require.True(t, errors.As(err, &cErr))
	assert.Nil(t, records[1].ApprovedAt)

	current := cycle.Version
	step, err := decideApproval(cycle, records, Actor{UserID: "u-2", RoleID: roleR2}, &ApproveAllocationRequest{Month: 5, Year: 2024, Version: &current, Comment: "ok"}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, step.Step)
	assert.Equal(t, 2, cycle.CurrentStep)
}

func TestDispatchWithoutPartnerNamesEndpoint(t *testing.T) {
	svc := NewApprovalService(nil, nil, Dependencies{})
	_, err := svc.DispatchCycle(context.Background(), &entity.ApprovalCycle{ID: "cy-1", Month: 5, Year: 2024, State: entity.CycleStateApproved}, "u")
	var outErr *hoyu.OutboundError
	require.True(t, errors.As(err, &outErr))
	assert.ErrorIs(t, err, errDispatcherMissing)
	assert.Equal(t, hoyu.AllocationPath, outErr.URL)
	assert.NotContains(t, err.Error(), "to  failed")
}

func TestWaitDrainsBackgroundDispatch(t *testing.T) {
	svc := NewApprovalService(nil, nil, Dependencies{})
	var finished atomic.Bool
	release := make(chan struct{})
	svc.background(func(ctx context.Context) {
		<-release
		finished.Store(true)
	})

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, svc.Wait(context.Background()))
	assert.True(t, finished.Load())
}

func TestSubmitAllocationHeldLockIsConflict(t *testing.T) {
	approval := NewApprovalService(nil, nil, Dependencies{Locker: &stubLocker{err: cyclelock.ErrLocked}})
	svc := NewAllocationService(nil, nil, approval, nil)
	_, err := svc.SubmitAllocation(context.Background(), Actor{UserID: "u-1"}, &SubmitAllocationRequest{
		Status: SubmitStatusDraft, Month: 5, Year: 2024,
	})
	var cErr *ConflictError
	assert.True(t, errors.As(err, &cErr))
}
