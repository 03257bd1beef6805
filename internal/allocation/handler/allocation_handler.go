package handler

import (
	"context"
	"errors"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/abascode/his-backend-abas/internal/allocation/service"
	"github.com/abascode/his-backend-abas/internal/shared/hoyu"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AllocationService interface {
	GetAllocations(ctx context.Context, month, year int) (*service.AllocationsResponse, error)
	SubmitAllocation(ctx context.Context, actor service.Actor, req *service.SubmitAllocationRequest) (*service.SubmitAllocationResult, error)
}

type ApprovalService interface {
	Approve(ctx context.Context, actor service.Actor, req *service.ApproveAllocationRequest) (*service.ApprovalOutcome, error)
	SendToPartner(ctx context.Context, actor service.Actor, month, year int) (*entity.ApprovalCycle, error)
}

type AllocationHandler struct {
	allocations AllocationService
	approvals   ApprovalService
	logger      *zap.Logger
}

func NewAllocationHandler(allocations AllocationService, approvals ApprovalService, logger *zap.Logger) *AllocationHandler {
	return &AllocationHandler{allocations: allocations, approvals: approvals, logger: logger}
}

// GetAllocations GET /api/allocations?month=&year=
func (h *AllocationHandler) GetAllocations(c *gin.Context) {
	month, year, ok := parsePeriod(c)
	if !ok {
		return
	}
	resp, err := h.allocations.GetAllocations(c.Request.Context(), month, year)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	Success(c, resp)
}

// SubmitAllocation POST /api/allocations
func (h *AllocationHandler) SubmitAllocation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		Unauthorized(c, "Authorization is required")
		return
	}
	var req service.SubmitAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.allocations.SubmitAllocation(c.Request.Context(), actor, &req)
	if err != nil {
		// a failed dispatch after submit still reports the committed cycle
		var outbound *hoyu.OutboundError
		if errors.As(err, &outbound) && result != nil {
			respondError(c, h.logger, err, result)
			return
		}
		respondError(c, h.logger, err, nil)
		return
	}
	Success(c, result)
}

// Approve POST /api/allocations/approve
func (h *AllocationHandler) Approve(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		Unauthorized(c, "Authorization is required")
		return
	}
	var req service.ApproveAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	outcome, err := h.approvals.Approve(c.Request.Context(), actor, &req)
	if err != nil {
		if outcome != nil {
			respondError(c, h.logger, err, outcome)
			return
		}
		respondError(c, h.logger, err, nil)
		return
	}
	Success(c, outcome)
}

type sendToPartnerRequest struct {
	Month int `json:"month" binding:"required"`
	Year  int `json:"year" binding:"required"`
}

// SendToPartner POST /api/allocations/send-to-hoyu
func (h *AllocationHandler) SendToPartner(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		Unauthorized(c, "Authorization is required")
		return
	}
	var req sendToPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	cycle, err := h.approvals.SendToPartner(c.Request.Context(), actor, req.Month, req.Year)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	Accepted(c, gin.H{
		"month":  cycle.Month,
		"year":   cycle.Year,
		"status": cycle.State,
	})
}
