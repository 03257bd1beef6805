package handler

import (
	"context"
	"io"

	"github.com/abascode/his-backend-abas/internal/allocation/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const maxTargetUpload = 10 << 20

type TargetService interface {
	UpsertMonthlyTarget(ctx context.Context, actor service.Actor, month, year int, filename string, content []byte) (*service.UploadTargetResult, error)
	GenerateTemplate(ctx context.Context, month, year int) (*excelize.File, string, error)
}

type TargetHandler struct {
	svc    TargetService
	logger *zap.Logger
}

func NewTargetHandler(svc TargetService, logger *zap.Logger) *TargetHandler {
	return &TargetHandler{svc: svc, logger: logger}
}

// Upload POST /api/allocations/monthly-target (multipart: file, month, year)
func (h *TargetHandler) Upload(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		Unauthorized(c, "Authorization is required")
		return
	}
	month, year, ok := parsePeriod(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	if fh.Size > maxTargetUpload {
		BadRequest(c, "file exceeds 10MB")
		return
	}
	file, err := fh.Open()
	if err != nil {
		BadRequest(c, "cannot open uploaded file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxTargetUpload+1))
	if err != nil {
		BadRequest(c, "cannot read uploaded file")
		return
	}

	result, err := h.svc.UpsertMonthlyTarget(c.Request.Context(), actor, month, year, fh.Filename, content)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	Success(c, result)
}

// Template GET /api/allocations/template/monthly-target?month=&year=
func (h *TargetHandler) Template(c *gin.Context) {
	month, year, ok := parsePeriod(c)
	if !ok {
		return
	}
	f, filename, err := h.svc.GenerateTemplate(c.Request.Context(), month, year)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	defer f.Close()

	c.Header("Content-Type", service.XLSXContentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("write monthly target template", zap.Error(err))
	}
}
