package service

import (
	"errors"
	"sort"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/google/uuid"
)

// Actor is the authenticated user acting on the workflow.
type Actor struct {
	UserID string
	Name   string
	RoleID int
}

var errCycleApproved = errors.New("allocation cycle already approved")

// newCycle lays out one record per matrix entry in matrix order. The
// submitter signs the first step.
func newCycle(month, year int, matrix []entity.ApprovalMatrix, actor Actor, now time.Time) (*entity.ApprovalCycle, []entity.ApprovalRecord, error) {
	if len(matrix) == 0 {
		return nil, nil, validationf("approval matrix is empty")
	}
	ordered := make([]entity.ApprovalMatrix, len(matrix))
	copy(ordered, matrix)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Order == ordered[i-1].Order {
			return nil, nil, validationf("approval matrix order %d is assigned twice", ordered[i].Order)
		}
	}

	cycle := &entity.ApprovalCycle{
		ID:          uuid.New().String(),
		Month:       month,
		Year:        year,
		State:       entity.CycleStateInReview,
		CurrentStep: 1,
		TotalSteps:  len(ordered),
		Version:     1,
		SubmittedBy: actor.UserID,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	records := make([]entity.ApprovalRecord, len(ordered))
	for i, m := range ordered {
		records[i] = entity.ApprovalRecord{
			ID:           uuid.New().String(),
			CycleID:      cycle.ID,
			Month:        month,
			Year:         year,
			Step:         i,
			RoleID:       m.RoleID,
			ApprovalFlag: entity.ApprovalFlagWaiting,
			CreatedBy:    actor.UserID,
			UpdatedBy:    actor.UserID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	submitter := actor.UserID
	submittedAt := now
	records[0].ApprovalFlag = entity.ApprovalFlagSubmitted
	records[0].ApproverID = &submitter
	records[0].ApproverName = actor.Name
	records[0].ApprovedAt = &submittedAt

	if cycle.TotalSteps == 1 {
		cycle.State = entity.CycleStateApproved
		cycle.ApprovedAt = &submittedAt
	}
	return cycle, records, nil
}

// firstPending is the index of the first record without approval, -1 when none.
func firstPending(records []entity.ApprovalRecord) int {
	for i := range records {
		if !records[i].IsApproved() {
			return i
		}
	}
	return -1
}

// advanceCycle signs the step under the cursor for actor. It returns
// errCycleApproved for a terminal cycle and leaves everything untouched on error.
func advanceCycle(cycle *entity.ApprovalCycle, records []entity.ApprovalRecord, actor Actor, comment string, now time.Time) (*entity.ApprovalRecord, error) {
	if cycle.State == entity.CycleStateApproved {
		return nil, errCycleApproved
	}
	pending := firstPending(records)
	if pending < 0 || pending != cycle.CurrentStep {
		return nil, conflictf("approval cursor is at step %d but step %d is pending", cycle.CurrentStep, pending)
	}

	current := &records[pending]
	if current.RoleID != actor.RoleID {
		return nil, forbiddenf("step %d awaits %s approval", current.Step, entity.RoleName(current.RoleID))
	}

	approver := actor.UserID
	approvedAt := now
	current.ApproverID = &approver
	current.ApproverName = actor.Name
	current.ApprovedAt = &approvedAt
	current.ApprovalFlag = entity.ApprovalFlagApproved
	current.UpdatedBy = actor.UserID
	current.UpdatedAt = now
	if comment != "" {
		c := comment
		current.ApprovedComment = &c
	}

	cycle.CurrentStep = pending + 1
	if cycle.CurrentStep >= cycle.TotalSteps {
		cycle.State = entity.CycleStateApproved
		cycle.ApprovedAt = &approvedAt
	}
	return current, nil
}

// cycleState derives the workflow state from the records alone.
func cycleState(records []entity.ApprovalRecord) string {
	if len(records) == 0 {
		return entity.CycleStateNotSubmitted
	}
	if firstPending(records) < 0 {
		return entity.CycleStateApproved
	}
	return entity.CycleStateInReview
}
