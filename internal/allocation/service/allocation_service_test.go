package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/engine"
	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAdjustmentsGroupsByDealerAndDetail(t *testing.T) {
	results := []engine.Result{
		{InputRow: engine.InputRow{DealerID: "D1", DealerName: "Dealer One", ForecastDetailID: "fd-1", ForecastDetailMonthID: "m-1", ModelID: "M1", ModelVariant: "VARIO", CategoryID: "C1", SegmentID: "S1", ForecastMonth: 0, WS: 10, EndStock: 4}, WSPercentage: 50, Allocation: 7},
		{InputRow: engine.InputRow{DealerID: "D1", DealerName: "Dealer One", ForecastDetailID: "fd-1", ForecastDetailMonthID: "m-2", ModelID: "M1", ModelVariant: "VARIO", ForecastMonth: 1, WS: 12, Adjustment: -2}, WSPercentage: 40, Allocation: 5},
		{InputRow: engine.InputRow{DealerID: "D1", DealerName: "Dealer One", ForecastDetailID: "fd-2", ForecastDetailMonthID: "m-3", ModelID: "M2", ForecastMonth: 0}},
		{InputRow: engine.InputRow{DealerID: "D2", DealerName: "Dealer Two", ForecastDetailID: "fd-3", ForecastDetailMonthID: "m-4", ModelID: "M1", ForecastMonth: 0}},
	}

	dealers := buildAdjustments(results)
	require.Len(t, dealers, 2)
	assert.Equal(t, TextValue{Text: "Dealer One", Value: "D1"}, dealers[0].Dealer)
	require.Len(t, dealers[0].Models, 2)

	first := dealers[0].Models[0]
	assert.Equal(t, TextValue{Text: "VARIO", Value: "M1"}, first.Model)
	assert.Equal(t, "C1", first.Category)
	assert.Equal(t, int64(4), first.RemainingStock)
	require.Len(t, first.Months, 2)
	assert.Equal(t, "m-2", first.Months[1].ID)
	assert.Equal(t, int64(-2), first.Months[1].Adjustment)
	assert.Equal(t, int64(40), first.Months[1].WSPercentage)

	// variant falls back to the model id
	assert.Equal(t, "M2", dealers[0].Models[1].Model.Text)
	assert.Equal(t, "D2", dealers[1].Dealer.Value)
}

func TestBuildAdjustmentsEmpty(t *testing.T) {
	out := buildAdjustments(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestBuildTargetsUnknownDealerName(t *testing.T) {
	targets := []engine.DealerTargets{
		{DealerID: "D1", Categories: []engine.TargetCategory{{CategoryID: "C1", Months: []engine.TargetMonth{{Month: 0, Target: 200}}}}},
		{DealerID: "D9"},
	}
	views := buildTargets(targets, map[string]string{"D1": "Dealer One"})
	require.Len(t, views, 2)
	assert.Equal(t, "Dealer One", views[0].Dealer.Text)
	assert.Equal(t, "C1", views[0].Categories[0].Category)
	assert.Equal(t, int64(200), views[0].Categories[0].Months[0].Target)
	assert.Equal(t, "-", views[1].Dealer.Text)
}

func TestBuildApprovals(t *testing.T) {
	now := time.Now()
	approver := "u-1"
	records := []entity.ApprovalRecord{
		{ID: "r-0", Step: 0, RoleID: entity.RoleAdminSCMA, ApproverID: &approver, ApproverName: "Admin", ApprovedAt: &now, ApprovalFlag: entity.ApprovalFlagSubmitted},
		{ID: "r-1", Step: 1, RoleID: entity.RoleDeptHead, ApprovalFlag: entity.ApprovalFlagWaiting},
	}
	views := buildApprovals(records)
	require.Len(t, views, 2)
	assert.Equal(t, &TextValue{Text: "Admin", Value: "u-1"}, views[0].Approver)
	assert.Equal(t, TextValue{Text: "ADMIN_SCMA", Value: entity.RoleAdminSCMA}, views[0].Role)
	assert.Nil(t, views[1].Approver)
	assert.Equal(t, "DEPT_HEAD", views[1].Role.Text)
}

func TestFreezeAllocationsAppliesAdjustment(t *testing.T) {
	results := []engine.Result{
		{InputRow: engine.InputRow{ForecastDetailMonthID: "m-1", Adjustment: 3}, Allocation: 10},
		{InputRow: engine.InputRow{ForecastDetailMonthID: "m-2", Adjustment: -20}, Allocation: 10},
		{InputRow: engine.InputRow{ForecastDetailMonthID: ""}, Allocation: 10},
	}
	frozen := freezeAllocations(results)
	assert.Equal(t, map[string]int64{"m-1": 13, "m-2": 0}, frozen)
}

func TestSubmitAllocationRejectsBadRequests(t *testing.T) {
	svc := NewAllocationService(nil, nil, nil, nil)
	ctx := context.Background()
	actor := Actor{UserID: "u-1", RoleID: entity.RoleAdminSCMA}

	cases := []*SubmitAllocationRequest{
		{Status: "FINAL", Month: 5, Year: 2024},
		{Status: SubmitStatusDraft, Month: 13, Year: 2024},
		{Status: SubmitStatusSubmitted, Month: 5, Year: 2024, Adjustments: []AdjustmentInput{{Adjustment: 1}}},
	}
	for _, req := range cases {
		_, err := svc.SubmitAllocation(ctx, actor, req)
		var vErr *ValidationError
		assert.True(t, errors.As(err, &vErr), "request %+v", req)
	}
}

func TestGetAllocationsValidatesCycle(t *testing.T) {
	svc := NewAllocationService(nil, nil, nil, nil)
	_, err := svc.GetAllocations(context.Background(), 0, 2024)
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}
