package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abascode/his-backend-abas/internal/allocation/service"
	"github.com/abascode/his-backend-abas/internal/middleware"
	"github.com/abascode/his-backend-abas/internal/shared/hoyu"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers bundles the HTTP handlers of the allocation API.
type Handlers struct {
	Allocation *AllocationHandler
	Target     *TargetHandler
}

func NewHandlers(svc *service.Services, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Allocation: NewAllocationHandler(svc.Allocation, svc.Approval, logger),
		Target:     NewTargetHandler(svc.Target, logger),
	}
}

// RegisterRoutes mounts the allocation routes on an authenticated group.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	allocations := api.Group("/allocations")
	{
		allocations.GET("", h.Allocation.GetAllocations)
		allocations.POST("", h.Allocation.SubmitAllocation)
		allocations.POST("/approve", h.Allocation.Approve)
		allocations.POST("/send-to-hoyu", h.Allocation.SendToPartner)
		allocations.POST("/monthly-target", h.Target.Upload)
		allocations.GET("/template/monthly-target", h.Target.Template)
	}
}

// Response is the envelope of every JSON response.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    0,
		Message: "accepted",
		Data:    data,
	})
}

// Error writes code/100 as the HTTP status.
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = http.StatusInternalServerError
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// respondError maps service errors to the envelope. data, when not nil, is
// attached so callers still see what was committed.
func respondError(c *gin.Context, logger *zap.Logger, err error, data interface{}) {
	var (
		validation *service.ValidationError
		notFound   *service.NotFoundError
		forbidden  *service.ForbiddenError
		conflict   *service.ConflictError
		outbound   *hoyu.OutboundError
	)
	switch {
	case errors.As(err, &validation):
		ErrorWithData(c, 40000, validation.Message, data)
	case errors.As(err, &notFound):
		ErrorWithData(c, 40400, notFound.Message, data)
	case errors.As(err, &forbidden):
		ErrorWithData(c, 40300, forbidden.Message, data)
	case errors.As(err, &conflict):
		ErrorWithData(c, 40900, conflict.Message, data)
	case errors.As(err, &outbound):
		ErrorWithData(c, 50200, outbound.Error(), data)
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		InternalError(c, "internal server error")
	}
}

// currentActor reads the actor placed on the context by JWTAuth.
func currentActor(c *gin.Context) (service.Actor, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		return service.Actor{}, false
	}
	return service.Actor{
		UserID: userID,
		Name:   c.GetString(middleware.ContextUserName),
		RoleID: c.GetInt(middleware.ContextRoleID),
	}, true
}

// parsePeriod reads month and year from the query string, or the form for
// multipart requests.
func parsePeriod(c *gin.Context) (int, int, bool) {
	monthRaw := c.Query("month")
	if monthRaw == "" {
		monthRaw = c.PostForm("month")
	}
	yearRaw := c.Query("year")
	if yearRaw == "" {
		yearRaw = c.PostForm("year")
	}
	month, err := strconv.Atoi(monthRaw)
	if err != nil {
		BadRequest(c, "month must be an integer")
		return 0, 0, false
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		BadRequest(c, "year must be an integer")
		return 0, 0, false
	}
	return month, year, true
}
