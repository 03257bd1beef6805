package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/engine"
	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/abascode/his-backend-abas/internal/allocation/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Submission statuses of POST /api/allocations.
const (
	SubmitStatusDraft     = "DRAFT"
	SubmitStatusSubmitted = "SUBMITTED"
)

// TextValue is the {text, value} pair used by the back office UI.
type TextValue struct {
	Text  string      `json:"text"`
	Value interface{} `json:"value"`
}

type AdjustmentMonth struct {
	ID                   string  `json:"id"`
	Month                int     `json:"month"`
	Adjustment           int64   `json:"adjustment"`
	WS                   int64   `json:"ws"`
	WSPercentage         int64   `json:"ws_percentage"`
	UnfinishedAllocation float64 `json:"unfinished_allocation"`
	Allocation           int64   `json:"allocation"`
	ConfirmedTotalWS     int64   `json:"confirmed_total_ws"`
}

type AdjustmentModel struct {
	ForecastDetailID string            `json:"forecast_detail_id"`
	Model            TextValue         `json:"model"`
	Segment          string            `json:"segment"`
	Category         string            `json:"category"`
	RemainingStock   int64             `json:"remaining_stock"`
	Months           []AdjustmentMonth `json:"months"`
}

type AdjustmentDealer struct {
	Dealer TextValue         `json:"dealer"`
	Models []AdjustmentModel `json:"models"`
}

type TargetCategoryView struct {
	Category string               `json:"category"`
	Months   []engine.TargetMonth `json:"months"`
}

type TargetDealerView struct {
	Dealer     TextValue            `json:"dealer"`
	Categories []TargetCategoryView `json:"categories"`
}

type ApprovalView struct {
	ID              string     `json:"id"`
	Step            int        `json:"step"`
	Approver        *TextValue `json:"approver"`
	ApprovedAt      *time.Time `json:"approved_at"`
	ApprovedComment *string    `json:"approved_comment"`
	ApprovalFlag    string     `json:"approval_flag"`
	Role            TextValue  `json:"role"`
}

// AllocationsResponse is the body of GET /api/allocations.
type AllocationsResponse struct {
	Month        int                        `json:"month"`
	Year         int                        `json:"year"`
	Status       string                     `json:"status"`
	CurrentStep  int                        `json:"current_step"`
	TotalSteps   int                        `json:"total_steps"`
	Version      int                        `json:"version"`
	Adjustments  []AdjustmentDealer         `json:"adjustments"`
	Targets      []TargetDealerView         `json:"targets"`
	Approvals    []ApprovalView             `json:"approvals"`
	LastDispatch *entity.AllocationDispatch `json:"last_dispatch"`
}

type AdjustmentInput struct {
	ForecastDetailMonthID string `json:"forecast_detail_month_id" binding:"required"`
	Adjustment            int64  `json:"adjustment"`
}

// SubmitAllocationRequest is the body of POST /api/allocations.
type SubmitAllocationRequest struct {
	Status      string            `json:"status" binding:"required"`
	Month       int               `json:"month" binding:"required"`
	Year        int               `json:"year" binding:"required"`
	Adjustments []AdjustmentInput `json:"adjustments"`
}

type SubmitAllocationResult struct {
	Month       int              `json:"month"`
	Year        int              `json:"year"`
	Status      string           `json:"status"`
	Adjusted    int              `json:"adjusted"`
	State       string           `json:"state"`
	CurrentStep int              `json:"current_step"`
	TotalSteps  int              `json:"total_steps"`
	Version     int              `json:"version"`
	Dispatch    *DispatchOutcome `json:"dispatch,omitempty"`
}

// AllocationService builds the allocation view and saves operator adjustments.
type AllocationService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	approval *ApprovalService
	logger   *zap.Logger
}

func NewAllocationService(db *gorm.DB, repos *repository.Repositories, approval *ApprovalService, logger *zap.Logger) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{db: db, repos: repos, approval: approval, logger: logger.Named("allocation")}
}

// GetAllocations computes the allocation of the cycle and assembles the view.
func (s *AllocationService) GetAllocations(ctx context.Context, month, year int) (*AllocationsResponse, error) {
	if err := validateCycle(month, year); err != nil {
		return nil, err
	}

	rows, err := s.repos.Input.ListInputRows(ctx, month, year)
	if err != nil {
		return nil, err
	}
	results, totals := engine.Compute(rows)

	targetRows, err := s.repos.Input.ListTargetRows(ctx, month, year)
	if err != nil {
		return nil, err
	}
	targets := engine.Reconcile(targetRows, totals)

	names := make(map[string]string)
	var missing []string
	for _, r := range rows {
		names[r.DealerID] = r.DealerName
	}
	for _, t := range targets {
		if _, ok := names[t.DealerID]; !ok {
			missing = append(missing, t.DealerID)
		}
	}
	if len(missing) > 0 {
		extra, err := s.repos.Input.DealerNames(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, name := range extra {
			names[id] = name
		}
	}

	records, err := s.repos.Approval.ListRecordsByPeriod(ctx, month, year)
	if err != nil {
		return nil, err
	}

	resp := &AllocationsResponse{
		Month:       month,
		Year:        year,
		Status:      cycleState(records),
		Adjustments: buildAdjustments(results),
		Targets:     buildTargets(targets, names),
		Approvals:   buildApprovals(records),
	}

	cycle, err := s.repos.Approval.FindCycle(ctx, month, year)
	switch {
	case err == nil:
		resp.Status = cycle.State
		resp.CurrentStep = cycle.CurrentStep
		resp.TotalSteps = cycle.TotalSteps
		resp.Version = cycle.Version
		last, err := s.repos.Dispatch.Latest(ctx, cycle.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		resp.LastDispatch = last
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return resp, nil
}

// SubmitAllocation saves adjustments and, for SUBMITTED, freezes the final
// allocation and opens the approval cycle in the same unit of work.
func (s *AllocationService) SubmitAllocation(ctx context.Context, actor Actor, req *SubmitAllocationRequest) (*SubmitAllocationResult, error) {
	if req.Status != SubmitStatusDraft && req.Status != SubmitStatusSubmitted {
		return nil, validationf("status must be %s or %s", SubmitStatusDraft, SubmitStatusSubmitted)
	}
	if err := validateCycle(req.Month, req.Year); err != nil {
		return nil, err
	}
	for i, adj := range req.Adjustments {
		if adj.ForecastDetailMonthID == "" {
			return nil, validationf("adjustments[%d].forecast_detail_month_id is required", i)
		}
	}
	period := periodLabel(req.Month, req.Year)

	release, err := s.approval.acquire(ctx, req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	defer release()

	var cycle *entity.ApprovalCycle
	err = repository.RunInUnitOfWork(ctx, s.db, func(uow *repository.UnitOfWork) error {
		repos := s.repos.WithUnitOfWork(uow)

		// saves of the period queue here; a submit that got in first is
		// committed and visible to the cycle check below
		forecasts, err := repos.Forecast.LockForCycle(ctx, req.Month, req.Year)
		if err != nil {
			return err
		}
		if forecasts == 0 {
			return notFoundf("no forecast found for %s", period)
		}

		if _, err := repos.Approval.FindCycle(ctx, req.Month, req.Year); err == nil {
			return validationf("allocation %s is under approval and can no longer be adjusted", period)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load allocation cycle: %w", err)
		}

		for _, adj := range req.Adjustments {
			err := repos.Forecast.ApplyAdjustment(ctx, req.Month, req.Year, adj.ForecastDetailMonthID, adj.Adjustment, actor.UserID)
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundf("forecast detail month %s is not part of %s", adj.ForecastDetailMonthID, period)
			}
			if err != nil {
				return err
			}
		}

		if req.Status == SubmitStatusDraft {
			return nil
		}

		rows, err := repos.Input.ListInputRows(ctx, req.Month, req.Year)
		if err != nil {
			return err
		}
		results, _ := engine.Compute(rows)
		if err := repos.Forecast.FreezeAllocations(ctx, freezeAllocations(results), actor.UserID); err != nil {
			return err
		}

		cycle, err = s.approval.Submit(ctx, uow, actor, req.Month, req.Year)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &SubmitAllocationResult{
		Month:    req.Month,
		Year:     req.Year,
		Status:   req.Status,
		Adjusted: len(req.Adjustments),
		State:    entity.CycleStateNotSubmitted,
	}
	s.logger.Info("allocation saved",
		zap.Int("month", req.Month),
		zap.Int("year", req.Year),
		zap.String("status", req.Status),
		zap.Int("adjusted", len(req.Adjustments)),
		zap.String("user_id", actor.UserID),
	)
	if cycle == nil {
		return result, nil
	}

	result.State = cycle.State
	result.CurrentStep = cycle.CurrentStep
	result.TotalSteps = cycle.TotalSteps
	result.Version = cycle.Version
	if cycle.State == entity.CycleStateApproved {
		dispatch, err := s.approval.DispatchCycle(ctx, cycle, actor.UserID)
		result.Dispatch = dispatch
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// freezeAllocations maps every detail month to its final allocation.
func freezeAllocations(results []engine.Result) map[string]int64 {
	frozen := make(map[string]int64, len(results))
	for _, r := range results {
		if r.ForecastDetailMonthID == "" {
			continue
		}
		frozen[r.ForecastDetailMonthID] = engine.FinalAllocation(r)
	}
	return frozen
}

// buildAdjustments groups results by dealer, then forecast detail, keeping
// the order of first appearance.
func buildAdjustments(results []engine.Result) []AdjustmentDealer {
	out := make([]AdjustmentDealer, 0)
	dealerIdx := make(map[string]int)
	modelIdx := make(map[string]map[string]int)

	for _, r := range results {
		di, ok := dealerIdx[r.DealerID]
		if !ok {
			di = len(out)
			dealerIdx[r.DealerID] = di
			modelIdx[r.DealerID] = make(map[string]int)
			out = append(out, AdjustmentDealer{Dealer: TextValue{Text: r.DealerName, Value: r.DealerID}})
		}
		dealer := &out[di]

		mi, ok := modelIdx[r.DealerID][r.ForecastDetailID]
		if !ok {
			mi = len(dealer.Models)
			modelIdx[r.DealerID][r.ForecastDetailID] = mi
			variant := r.ModelVariant
			if variant == "" {
				variant = r.ModelID
			}
			dealer.Models = append(dealer.Models, AdjustmentModel{
				ForecastDetailID: r.ForecastDetailID,
				Model:            TextValue{Text: variant, Value: r.ModelID},
				Segment:          r.SegmentID,
				Category:         r.CategoryID,
				RemainingStock:   r.EndStock,
			})
		}

		model := &dealer.Models[mi]
		model.Months = append(model.Months, AdjustmentMonth{
			ID:                   r.ForecastDetailMonthID,
			Month:                r.ForecastMonth,
			Adjustment:           r.Adjustment,
			WS:                   r.WS,
			WSPercentage:         r.WSPercentage,
			UnfinishedAllocation: r.UnfinishedAllocation,
			Allocation:           r.Allocation,
			ConfirmedTotalWS:     r.ConfirmedTotalWS,
		})
	}
	return out
}

func buildTargets(targets []engine.DealerTargets, names map[string]string) []TargetDealerView {
	out := make([]TargetDealerView, 0, len(targets))
	for _, t := range targets {
		name := names[t.DealerID]
		if name == "" {
			name = "-"
		}
		view := TargetDealerView{Dealer: TextValue{Text: name, Value: t.DealerID}}
		for _, c := range t.Categories {
			view.Categories = append(view.Categories, TargetCategoryView{Category: c.CategoryID, Months: c.Months})
		}
		out = append(out, view)
	}
	return out
}

func buildApprovals(records []entity.ApprovalRecord) []ApprovalView {
	out := make([]ApprovalView, 0, len(records))
	for _, r := range records {
		view := ApprovalView{
			ID:              r.ID,
			Step:            r.Step,
			ApprovedAt:      r.ApprovedAt,
			ApprovedComment: r.ApprovedComment,
			ApprovalFlag:    r.ApprovalFlag,
			Role:            TextValue{Text: entity.RoleName(r.RoleID), Value: r.RoleID},
		}
		if r.ApproverID != nil {
			view.Approver = &TextValue{Text: r.ApproverName, Value: *r.ApproverID}
		}
		out = append(out, view)
	}
	return out
}
