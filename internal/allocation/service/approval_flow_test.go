package service

import (
	"errors"
	"testing"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	roleR1 = 101
	roleR2 = 102
	roleR3 = 103
)

func threeStepMatrix() []entity.ApprovalMatrix {
	// deliberately unsorted
	return []entity.ApprovalMatrix{
		{RoleID: roleR3, Order: 3},
		{RoleID: roleR1, Order: 1},
		{RoleID: roleR2, Order: 2},
	}
}

func TestNewCycleLaysOutMatrix(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	submitter := Actor{UserID: "u-1", Name: "Submitter", RoleID: roleR1}

	cycle, records, err := newCycle(5, 2024, threeStepMatrix(), submitter, now)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, entity.CycleStateInReview, cycle.State)
	assert.Equal(t, 1, cycle.CurrentStep)
	assert.Equal(t, 3, cycle.TotalSteps)
	assert.Equal(t, 1, cycle.Version)

	assert.Equal(t, []int{roleR1, roleR2, roleR3}, []int{records[0].RoleID, records[1].RoleID, records[2].RoleID})
	assert.Equal(t, entity.ApprovalFlagSubmitted, records[0].ApprovalFlag)
	require.NotNil(t, records[0].ApproverID)
	assert.Equal(t, "u-1", *records[0].ApproverID)
	assert.Equal(t, now, *records[0].ApprovedAt)

	for _, r := range records[1:] {
		assert.Equal(t, entity.ApprovalFlagWaiting, r.ApprovalFlag)
		assert.Nil(t, r.ApprovedAt)
		assert.Nil(t, r.ApproverID)
		assert.Equal(t, cycle.ID, r.CycleID)
	}
	assert.Equal(t, entity.CycleStateInReview, cycleState(records))
}

func TestNewCycleRejectsBadMatrix(t *testing.T) {
	_, _, err := newCycle(5, 2024, nil, Actor{}, time.Now())
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, _, err = newCycle(5, 2024, []entity.ApprovalMatrix{{RoleID: 1, Order: 1}, {RoleID: 2, Order: 1}}, Actor{}, time.Now())
	assert.True(t, errors.As(err, &vErr))
}

func TestNewCycleSingleStepIsTerminal(t *testing.T) {
	cycle, records, err := newCycle(5, 2024, []entity.ApprovalMatrix{{RoleID: roleR1, Order: 1}}, Actor{UserID: "u"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, entity.CycleStateApproved, cycle.State)
	assert.NotNil(t, cycle.ApprovedAt)
	assert.Equal(t, entity.CycleStateApproved, cycleState(records))
}

func TestAdvanceCycleSequence(t *testing.T) {
	now := time.Now()
	cycle, records, err := newCycle(5, 2024, threeStepMatrix(), Actor{UserID: "u-1", RoleID: roleR1}, now)
	require.NoError(t, err)

	// R3 cannot jump the queue
	_, err = advanceCycle(cycle, records, Actor{UserID: "u-3", RoleID: roleR3}, "", now)
	var fErr *ForbiddenError
	require.True(t, errors.As(err, &fErr))
	assert.Nil(t, records[1].ApprovedAt)
	assert.Equal(t, 1, cycle.CurrentStep)

	step, err := advanceCycle(cycle, records, Actor{UserID: "u-2", Name: "Second", RoleID: roleR2}, "looks fine", now)
	require.NoError(t, err)
	assert.Equal(t, 1, step.Step)
	assert.Equal(t, entity.ApprovalFlagApproved, records[1].ApprovalFlag)
	assert.Equal(t, "u-2", *records[1].ApproverID)
	assert.Equal(t, "looks fine", *records[1].ApprovedComment)
	assert.Equal(t, 2, cycle.CurrentStep)
	assert.Equal(t, entity.CycleStateInReview, cycle.State)

	// R2 again is now out of turn
	_, err = advanceCycle(cycle, records, Actor{UserID: "u-2", RoleID: roleR2}, "", now)
	require.True(t, errors.As(err, &fErr))

	_, err = advanceCycle(cycle, records, Actor{UserID: "u-3", RoleID: roleR3}, "", now)
	require.NoError(t, err)
	assert.Equal(t, entity.CycleStateApproved, cycle.State)
	assert.Equal(t, 3, cycle.CurrentStep)
	assert.Equal(t, -1, firstPending(records))
	assert.Equal(t, entity.CycleStateApproved, cycleState(records))

	_, err = advanceCycle(cycle, records, Actor{UserID: "u-3", RoleID: roleR3}, "", now)
	assert.ErrorIs(t, err, errCycleApproved)
}

func TestAdvanceCycleDetectsCursorDivergence(t *testing.T) {
	now := time.Now()
	cycle, records, err := newCycle(5, 2024, threeStepMatrix(), Actor{UserID: "u-1", RoleID: roleR1}, now)
	require.NoError(t, err)

	// another writer approved step 1 without moving the cursor
	other := "u-x"
	records[1].ApprovedAt = &now
	records[1].ApproverID = &other

	_, err = advanceCycle(cycle, records, Actor{UserID: "u-3", RoleID: roleR3}, "", now)
	var cErr *ConflictError
	assert.True(t, errors.As(err, &cErr))
}

func TestCycleStateWithoutRecords(t *testing.T) {
	assert.Equal(t, entity.CycleStateNotSubmitted, cycleState(nil))
}

func TestValidateCycle(t *testing.T) {
	assert.NoError(t, validateCycle(1, 2024))
	assert.Error(t, validateCycle(0, 2024))
	assert.Error(t, validateCycle(13, 2024))
	assert.Error(t, validateCycle(5, 0))
}
