package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/engine"
	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/abascode/his-backend-abas/internal/allocation/repository"
	"github.com/abascode/his-backend-abas/internal/shared/cyclelock"
	"github.com/abascode/his-backend-abas/internal/shared/hoyu"
	"github.com/abascode/his-backend-abas/internal/shared/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher hands an encoded allocation payload to the partner system.
type Dispatcher interface {
	Endpoint() string
	SubmitAllocation(ctx context.Context, body []byte, entries int) (*hoyu.SubmitResult, error)
}

// Archiver keeps a copy of uploaded files and dispatched payloads.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// CycleLocker serializes approvals of one cycle across instances.
type CycleLocker interface {
	Acquire(ctx context.Context, month, year int) (func(), error)
}

var errDispatcherMissing = errors.New("hoyu partner is not configured")

// dispatcherMissing is returned when no partner client is wired.
func dispatcherMissing() error {
	return &hoyu.OutboundError{URL: hoyu.AllocationPath, Err: errDispatcherMissing}
}

// ApproveAllocationRequest is the body of POST /api/allocations/approve.
type ApproveAllocationRequest struct {
	Month   int    `json:"month" binding:"required"`
	Year    int    `json:"year" binding:"required"`
	Comment string `json:"comment"`
	// Version, when set, must match the cycle version the caller last read.
	Version *int `json:"version"`
}

// DispatchOutcome summarizes one partner submission attempt.
type DispatchOutcome struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	URL        string `json:"url"`
	HTTPStatus int    `json:"http_status"`
	Entries    int    `json:"entries"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// ApprovalOutcome is the cycle state after an approve call.
type ApprovalOutcome struct {
	Month           int              `json:"month"`
	Year            int              `json:"year"`
	State           string           `json:"status"`
	CurrentStep     int              `json:"current_step"`
	TotalSteps      int              `json:"total_steps"`
	Version         int              `json:"version"`
	Step            int              `json:"approved_step,omitempty"`
	AlreadyApproved bool             `json:"already_approved"`
	Dispatch        *DispatchOutcome `json:"dispatch,omitempty"`
}

func outcomeOf(cycle *entity.ApprovalCycle) *ApprovalOutcome {
	return &ApprovalOutcome{
		Month:       cycle.Month,
		Year:        cycle.Year,
		State:       cycle.State,
		CurrentStep: cycle.CurrentStep,
		TotalSteps:  cycle.TotalSteps,
		Version:     cycle.Version,
	}
}

func periodLabel(month, year int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ApprovalService drives the sequential approval of a cycle and the partner
// dispatch that follows the final step.
type ApprovalService struct {
	db         *gorm.DB
	repos      *repository.Repositories
	dispatcher Dispatcher
	archiver   Archiver
	locker     CycleLocker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time

	// background resends started by SendToPartner
	inflight sync.WaitGroup
}

func NewApprovalService(db *gorm.DB, repos *repository.Repositories, deps Dependencies) *ApprovalService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		db:         db,
		repos:      repos,
		dispatcher: deps.Dispatcher,
		archiver:   deps.Archiver,
		locker:     deps.Locker,
		metrics:    deps.Metrics,
		logger:     logger.Named("approval"),
		now:        time.Now,
	}
}

// Submit opens the approval cycle of the period inside uow. The submitter
// signs step 0; a single step matrix yields an APPROVED cycle.
func (s *ApprovalService) Submit(ctx context.Context, uow *repository.UnitOfWork, actor Actor, month, year int) (*entity.ApprovalCycle, error) {
	if err := validateCycle(month, year); err != nil {
		return nil, err
	}
	repos := s.repos.WithUnitOfWork(uow)

	if _, err := repos.Approval.FindCycle(ctx, month, year); err == nil {
		return nil, validationf("allocation %s has already been submitted", periodLabel(month, year))
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load allocation cycle: %w", err)
	}

	exists, err := repos.Forecast.ExistsForCycle(ctx, month, year)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFoundf("no forecast found for %s", periodLabel(month, year))
	}

	matrix, err := repos.Approval.ListMatrix(ctx)
	if err != nil {
		return nil, err
	}
	cycle, records, err := newCycle(month, year, matrix, actor, s.now())
	if err != nil {
		return nil, err
	}
	if err := repos.Approval.CreateCycle(ctx, cycle, records); err != nil {
		if errors.Is(err, repository.ErrDuplicateCycle) {
			s.metrics.ObserveApproval(metrics.OutcomeConflict)
			return nil, conflictf("allocation %s was submitted concurrently", periodLabel(month, year))
		}
		return nil, err
	}

	s.metrics.ObserveApproval(metrics.OutcomeSubmitted)
	s.logger.Info("allocation submitted",
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Int("total_steps", cycle.TotalSteps),
		zap.String("state", cycle.State),
		zap.String("user_id", actor.UserID),
	)
	return cycle, nil
}

// Approve signs the step under the cursor for actor. Approving an APPROVED
// cycle returns the terminal state unchanged. When the step is the last one
// the payload is dispatched after commit; a dispatch failure is returned
// together with the committed outcome.
func (s *ApprovalService) Approve(ctx context.Context, actor Actor, req *ApproveAllocationRequest) (*ApprovalOutcome, error) {
	if err := validateCycle(req.Month, req.Year); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		outcome *ApprovalOutcome
		cycleID string
	)
	err = repository.RunInUnitOfWork(ctx, s.db, func(uow *repository.UnitOfWork) error {
		repos := s.repos.WithUnitOfWork(uow)

		cycle, err := repos.Approval.LockCycle(ctx, req.Month, req.Year)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundf("allocation %s has not been submitted", periodLabel(req.Month, req.Year))
		}
		if err != nil {
			return fmt.Errorf("lock allocation cycle: %w", err)
		}

		records, err := repos.Approval.ListRecords(ctx, cycle.ID)
		if err != nil {
			return err
		}

		expected := cycle.Version
		step, err := decideApproval(cycle, records, actor, req, s.now())
		if errors.Is(err, errCycleApproved) {
			outcome = outcomeOf(cycle)
			outcome.AlreadyApproved = true
			return nil
		}
		if err != nil {
			return err
		}

		if err := repos.Approval.SaveRecord(ctx, step); err != nil {
			return err
		}
		if err := repos.Approval.UpdateCycle(ctx, cycle, expected); err != nil {
			if errors.Is(err, repository.ErrStaleVersion) {
				return conflictf("allocation %s was approved concurrently", periodLabel(req.Month, req.Year))
			}
			return err
		}

		cycleID = cycle.ID
		outcome = outcomeOf(cycle)
		outcome.Step = step.Step
		return nil
	})
	if err != nil {
		s.observeFailure(err, actor, req.Month, req.Year)
		return nil, err
	}

	if outcome.AlreadyApproved {
		s.metrics.ObserveApproval(metrics.OutcomeNoop)
		return outcome, nil
	}

	s.metrics.ObserveApproval(metrics.OutcomeApproved)
	s.logger.Info("allocation step approved",
		zap.Int("month", req.Month),
		zap.Int("year", req.Year),
		zap.Int("step", outcome.Step),
		zap.Int("role_id", actor.RoleID),
		zap.String("user_id", actor.UserID),
		zap.String("state", outcome.State),
	)

	if outcome.State != entity.CycleStateApproved {
		return outcome, nil
	}
	dispatch, err := s.dispatch(ctx, cycleID, req.Month, req.Year, actor.UserID)
	outcome.Dispatch = dispatch
	return outcome, err
}

// decideApproval applies the approve request to a cycle loaded under lock.
// errCycleApproved means the cycle is terminal and nothing changes; a version
// mismatch on a terminal cycle is ignored so retried final approvals stay
// idempotent.
func decideApproval(cycle *entity.ApprovalCycle, records []entity.ApprovalRecord, actor Actor, req *ApproveAllocationRequest, now time.Time) (*entity.ApprovalRecord, error) {
	if cycle.State == entity.CycleStateApproved {
		return nil, errCycleApproved
	}
	if req.Version != nil && *req.Version != cycle.Version {
		return nil, conflictf("allocation %s changed: version %d, expected %d",
			periodLabel(cycle.Month, cycle.Year), cycle.Version, *req.Version)
	}
	return advanceCycle(cycle, records, actor, req.Comment, now)
}

// DispatchCycle sends the frozen allocation of an approved cycle to the partner.
func (s *ApprovalService) DispatchCycle(ctx context.Context, cycle *entity.ApprovalCycle, triggeredBy string) (*DispatchOutcome, error) {
	if cycle.State != entity.CycleStateApproved {
		return nil, validationf("allocation %s is not approved", periodLabel(cycle.Month, cycle.Year))
	}
	return s.dispatch(ctx, cycle.ID, cycle.Month, cycle.Year, triggeredBy)
}

// SendToPartner re-sends the allocation of an approved cycle in the
// background. Validation happens synchronously.
func (s *ApprovalService) SendToPartner(ctx context.Context, actor Actor, month, year int) (*entity.ApprovalCycle, error) {
	if err := validateCycle(month, year); err != nil {
		return nil, err
	}
	cycle, err := s.repos.Approval.FindCycle(ctx, month, year)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("allocation %s has not been submitted", periodLabel(month, year))
	}
	if err != nil {
		return nil, fmt.Errorf("load allocation cycle: %w", err)
	}
	if cycle.State != entity.CycleStateApproved {
		return nil, validationf("allocation %s is not approved yet", periodLabel(month, year))
	}
	if s.dispatcher == nil {
		return nil, dispatcherMissing()
	}

	c := *cycle
	s.background(func(ctx context.Context) {
		// outcome and failure are logged and recorded by dispatch
		s.DispatchCycle(ctx, &c, actor.UserID)
	})
	return cycle, nil
}

// background runs fn on its own goroutine with a bounded context, tracked
// until Wait.
func (s *ApprovalService) background(fn func(ctx context.Context)) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background resends finish or ctx is done.
func (s *ApprovalService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ApprovalService) dispatch(ctx context.Context, cycleID string, month, year int, triggeredBy string) (*DispatchOutcome, error) {
	if s.dispatcher == nil {
		s.logger.Error("allocation dispatch skipped", zap.Int("month", month), zap.Int("year", year), zap.Error(errDispatcherMissing))
		return nil, dispatcherMissing()
	}

	details, err := s.repos.Forecast.ListPayloadDetails(ctx, month, year)
	if err != nil {
		return nil, err
	}
	entries, skipped := engine.BuildPayload(details)
	for _, m := range skipped {
		s.logger.Warn("forecast month left out of payload",
			zap.Int("month", month),
			zap.Int("year", year),
			zap.String("forecast_detail_id", m.ForecastDetailID),
			zap.Int("forecast_month", m.ForecastMonth),
			zap.Int64("hmsi_allocation", m.HMSIAllocation),
		)
	}
	body, err := hoyu.Encode(entries)
	if err != nil {
		return nil, fmt.Errorf("encode allocation payload: %w", err)
	}

	record := &entity.AllocationDispatch{
		ID:          uuid.New().String(),
		CycleID:     cycleID,
		Month:       month,
		Year:        year,
		URL:         s.dispatcher.Endpoint(),
		Entries:     len(entries),
		TriggeredBy: triggeredBy,
		AttemptedAt: s.now(),
	}

	if s.archiver != nil {
		key := fmt.Sprintf("allocations/%s/%s.json", periodLabel(month, year), record.ID)
		name, err := s.archiver.Put(ctx, key, body, "application/json")
		if err != nil {
			s.logger.Warn("archive allocation payload", zap.String("key", key), zap.Error(err))
		} else {
			record.ArchiveKey = name
		}
	}

	start := time.Now()
	result, sendErr := s.dispatcher.SubmitAllocation(ctx, body, len(entries))
	elapsed := time.Since(start)

	if sendErr != nil {
		record.Status = entity.DispatchStatusFailed
		record.Error = sendErr.Error()
		var outErr *hoyu.OutboundError
		if errors.As(sendErr, &outErr) {
			record.HTTPStatus = outErr.StatusCode
		}
	} else {
		record.Status = entity.DispatchStatusSent
		record.HTTPStatus = result.StatusCode
	}
	s.metrics.ObserveDispatch(record.Status, elapsed.Seconds())

	if err := s.repos.Dispatch.Create(ctx, record); err != nil {
		s.logger.Error("record allocation dispatch", zap.String("dispatch_id", record.ID), zap.Error(err))
	}

	outcome := &DispatchOutcome{
		ID:         record.ID,
		Status:     record.Status,
		URL:        record.URL,
		HTTPStatus: record.HTTPStatus,
		Entries:    record.Entries,
		ArchiveKey: record.ArchiveKey,
	}
	fields := []zap.Field{
		zap.Int("month", month),
		zap.Int("year", year),
		zap.String("url", record.URL),
		zap.Int("entries", record.Entries),
		zap.Int("http_status", record.HTTPStatus),
		zap.Duration("duration", elapsed),
		zap.String("user_id", triggeredBy),
	}
	if sendErr != nil {
		s.logger.Error("allocation dispatch failed", append(fields, zap.Error(sendErr))...)
		return outcome, sendErr
	}
	s.logger.Info("allocation dispatched", fields...)
	return outcome, nil
}

// acquire takes the redis cycle lock. A lock held elsewhere is a conflict;
// an unreachable redis falls back to the row lock alone.
func (s *ApprovalService) acquire(ctx context.Context, month, year int) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	release, err := s.locker.Acquire(ctx, month, year)
	if errors.Is(err, cyclelock.ErrLocked) {
		s.metrics.ObserveApproval(metrics.OutcomeConflict)
		return nil, conflictf("allocation %s is locked by another request", periodLabel(month, year))
	}
	if err != nil {
		s.logger.Warn("cycle lock unavailable", zap.Int("month", month), zap.Int("year", year), zap.Error(err))
		return noop, nil
	}
	return release, nil
}

func (s *ApprovalService) observeFailure(err error, actor Actor, month, year int) {
	var (
		forbidden *ForbiddenError
		conflict  *ConflictError
	)
	switch {
	case errors.As(err, &forbidden):
		s.metrics.ObserveApproval(metrics.OutcomeForbidden)
		s.logger.Warn("approval out of turn",
			zap.Int("month", month), zap.Int("year", year),
			zap.Int("role_id", actor.RoleID), zap.String("user_id", actor.UserID))
	case errors.As(err, &conflict):
		s.metrics.ObserveApproval(metrics.OutcomeConflict)
		s.logger.Warn("approval conflict",
			zap.Int("month", month), zap.Int("year", year),
			zap.String("user_id", actor.UserID), zap.Error(err))
	}
}
