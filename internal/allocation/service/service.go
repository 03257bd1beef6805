package service

import (
	"github.com/abascode/his-backend-abas/internal/allocation/repository"
	"github.com/abascode/his-backend-abas/internal/shared/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies are the optional collaborators of the services. Nil
// interfaces disable the matching feature.
type Dependencies struct {
	Dispatcher Dispatcher
	Archiver   Archiver
	Locker     CycleLocker
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Services bundles the allocation services.
type Services struct {
	Allocation *AllocationService
	Approval   *ApprovalService
	Target     *TargetService
}

func NewServices(db *gorm.DB, repos *repository.Repositories, deps Dependencies) *Services {
	approval := NewApprovalService(db, repos, deps)
	return &Services{
		Allocation: NewAllocationService(db, repos, approval, deps.Logger),
		Approval:   approval,
		Target:     NewTargetService(db, repos, deps.Archiver, deps.Logger),
	}
}
