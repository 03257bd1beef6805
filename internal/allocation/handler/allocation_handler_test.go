package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/abascode/his-backend-abas/internal/allocation/service"
	"github.com/abascode/his-backend-abas/internal/allocation/testutil"
	"github.com/abascode/his-backend-abas/internal/shared/hoyu"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAllocations struct {
	resp     *service.AllocationsResponse
	result   *service.SubmitAllocationResult
	err      error
	gotActor service.Actor
	gotReq   *service.SubmitAllocationRequest
}

func (f *fakeAllocations) GetAllocations(ctx context.Context, month, year int) (*service.AllocationsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeAllocations) SubmitAllocation(ctx context.Context, actor service.Actor, req *service.SubmitAllocationRequest) (*service.SubmitAllocationResult, error) {
	f.gotActor = actor
	f.gotReq = req
	return f.result, f.err
}

type fakeApprovals struct {
	outcome  *service.ApprovalOutcome
	cycle    *entity.ApprovalCycle
	err      error
	gotActor service.Actor
	gotReq   *service.ApproveAllocationRequest
}

func (f *fakeApprovals) Approve(ctx context.Context, actor service.Actor, req *service.ApproveAllocationRequest) (*service.ApprovalOutcome, error) {
	f.gotActor = actor
	f.gotReq = req
	return f.outcome, f.err
}

func (f *fakeApprovals) SendToPartner(ctx context.Context, actor service.Actor, month, year int) (*entity.ApprovalCycle, error) {
	f.gotActor = actor
	return f.cycle, f.err
}

func setupAllocationRouter(allocations *fakeAllocations, approvals *fakeApprovals) *gin.Engine {
	router := testutil.SetupRouter()
	h := &Handlers{
		Allocation: NewAllocationHandler(allocations, approvals, zap.NewNop()),
		Target:     NewTargetHandler(&fakeTargets{}, zap.NewNop()),
	}
	h.RegisterRoutes(testutil.AuthGroup(router, "/api"))
	return router
}

func TestGetAllocationsRequiresToken(t *testing.T) {
	router := setupAllocationRouter(&fakeAllocations{}, &fakeApprovals{})
	w := testutil.DoRequest(router, "GET", "/api/allocations?month=5&year=2024", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetAllocations(t *testing.T) {
	allocations := &fakeAllocations{resp: &service.AllocationsResponse{Month: 5, Year: 2024, Status: entity.CycleStateInReview, CurrentStep: 1}}
	router := setupAllocationRouter(allocations, &fakeApprovals{})

	w := testutil.DoRequest(router, "GET", "/api/allocations?month=5&year=2024", nil, testutil.DefaultTestToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.ParseResponse(w)
	assert.Equal(t, float64(0), resp["code"])
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, entity.CycleStateInReview, data["status"])
	assert.Equal(t, float64(1), data["current_step"])
}

func TestGetAllocationsBadQuery(t *testing.T) {
	router := setupAllocationRouter(&fakeAllocations{}, &fakeApprovals{})
	w := testutil.DoRequest(router, "GET", "/api/allocations?month=may&year=2024", nil, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, float64(40000), testutil.ParseResponse(w)["code"])
}

func TestSubmitAllocationPassesActor(t *testing.T) {
	allocations := &fakeAllocations{result: &service.SubmitAllocationResult{Month: 5, Year: 2024, Status: service.SubmitStatusSubmitted, State: entity.CycleStateInReview}}
	router := setupAllocationRouter(allocations, &fakeApprovals{})
	token := testutil.GenerateTestToken("u-42", "Operator", entity.RoleAdminSCMA)

	w := testutil.DoRequest(router, "POST", "/api/allocations", map[string]interface{}{
		"status": "SUBMITTED",
		"month":  5,
		"year":   2024,
		"adjustments": []map[string]interface{}{
			{"forecast_detail_month_id": "fdm-1", "adjustment": -3},
		},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.Actor{UserID: "u-42", Name: "Operator", RoleID: entity.RoleAdminSCMA}, allocations.gotActor)
	require.Len(t, allocations.gotReq.Adjustments, 1)
	assert.Equal(t, int64(-3), allocations.gotReq.Adjustments[0].Adjustment)
}

func TestSubmitAllocationDispatchFailureKeepsResult(t *testing.T) {
	allocations := &fakeAllocations{
		result: &service.SubmitAllocationResult{Month: 5, Year: 2024, State: entity.CycleStateApproved},
		err:    &hoyu.OutboundError{URL: "http://partner/x", StatusCode: 500},
	}
	router := setupAllocationRouter(allocations, &fakeApprovals{})

	w := testutil.DoRequest(router, "POST", "/api/allocations", map[string]interface{}{
		"status": "SUBMITTED", "month": 5, "year": 2024,
	}, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := testutil.ParseResponse(w)
	assert.Equal(t, float64(50200), resp["code"])
	assert.Equal(t, entity.CycleStateApproved, resp["data"].(map[string]interface{})["state"])
}

func TestApproveErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &service.ValidationError{Message: "bad"}, http.StatusBadRequest},
		{"not found", &service.NotFoundError{Message: "missing"}, http.StatusNotFound},
		{"forbidden", &service.ForbiddenError{Message: "out of turn"}, http.StatusForbidden},
		{"conflict", &service.ConflictError{Message: "stale"}, http.StatusConflict},
		{"outbound", &hoyu.OutboundError{URL: "http://partner", StatusCode: 503}, http.StatusBadGateway},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupAllocationRouter(&fakeAllocations{}, &fakeApprovals{err: tc.err})
			w := testutil.DoRequest(router, "POST", "/api/allocations/approve",
				map[string]interface{}{"month": 5, "year": 2024}, testutil.DefaultTestToken())
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, float64(tc.status*100), testutil.ParseResponse(w)["code"])
		})
	}
}

func TestApproveForwardsCommentAndVersion(t *testing.T) {
	approvals := &fakeApprovals{outcome: &service.ApprovalOutcome{Month: 5, Year: 2024, State: entity.CycleStateInReview, CurrentStep: 2, Version: 3}}
	router := setupAllocationRouter(&fakeAllocations{}, approvals)
	token := testutil.GenerateTestToken("u-head", "Head", entity.RoleDeptHead)

	w := testutil.DoRequest(router, "POST", "/api/allocations/approve",
		map[string]interface{}{"month": 5, "year": 2024, "comment": "fine", "version": 2}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, entity.RoleDeptHead, approvals.gotActor.RoleID)
	assert.Equal(t, "fine", approvals.gotReq.Comment)
	require.NotNil(t, approvals.gotReq.Version)
	assert.Equal(t, 2, *approvals.gotReq.Version)

	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["version"])
}

func TestApproveRequiresPeriod(t *testing.T) {
	router := setupAllocationRouter(&fakeAllocations{}, &fakeApprovals{})
	w := testutil.DoRequest(router, "POST", "/api/allocations/approve", map[string]interface{}{"comment": "x"}, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendToPartnerAccepted(t *testing.T) {
	approvals := &fakeApprovals{cycle: &entity.ApprovalCycle{Month: 5, Year: 2024, State: entity.CycleStateApproved}}
	router := setupAllocationRouter(&fakeAllocations{}, approvals)

	w := testutil.DoRequest(router, "POST", "/api/allocations/send-to-hoyu",
		map[string]interface{}{"month": 5, "year": 2024}, testutil.DefaultTestToken())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, entity.CycleStateApproved, data["status"])
}
