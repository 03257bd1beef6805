package entity

import (
	"strconv"
	"time"
)

// Approval flags of a single record.
const (
	ApprovalFlagWaiting   = "WAITING"
	ApprovalFlagSubmitted = "SUBMITTED"
	ApprovalFlagApproved  = "APPROVED"
)

// Cycle states.
const (
	CycleStateNotSubmitted = "NOT_SUBMITTED"
	CycleStateInReview     = "IN_REVIEW"
	CycleStateApproved     = "APPROVED"
)

// Dispatch statuses.
const (
	DispatchStatusSent   = "SENT"
	DispatchStatusFailed = "FAILED"
)

// Role ids used by the approval matrix.
const (
	RoleAdminSCMA         = 60
	RoleDeptHead          = 10
	RoleDivHead           = 2
	RoleDirector          = 28
	RolePresidentDirector = 19
)

var roleNames = map[int]string{
	RoleAdminSCMA:         "ADMIN_SCMA",
	RoleDeptHead:          "DEPT_HEAD",
	RoleDivHead:           "DIV_HEAD",
	RoleDirector:          "DIRECTOR",
	RolePresidentDirector: "PRESIDENT_DIRECTOR",
}

// RoleName returns the display name of a role id.
func RoleName(roleID int) string {
	if name, ok := roleNames[roleID]; ok {
		return name
	}
	return "ROLE_" + strconv.Itoa(roleID)
}

// ApprovalMatrix is the fixed approval chain shared by every cycle.
type ApprovalMatrix struct {
	RoleID int `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	Order  int `json:"order" gorm:"column:order;not null;uniqueIndex"`
}

func (ApprovalMatrix) TableName() string {
	return "va_allocation_approval_matrix"
}

// ApprovalCycle is the (month, year) partition of the workflow. CurrentStep
// indexes the next record awaiting approval; Version guards concurrent writes.
type ApprovalCycle struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	Month       int        `json:"month" gorm:"not null;uniqueIndex:uq_va_allocation_cycles_period"`
	Year        int        `json:"year" gorm:"not null;uniqueIndex:uq_va_allocation_cycles_period"`
	State       string     `json:"state" gorm:"size:20;not null"`
	CurrentStep int        `json:"current_step" gorm:"not null;default:0"`
	TotalSteps  int        `json:"total_steps" gorm:"not null"`
	Version     int        `json:"version" gorm:"not null;default:1"`
	SubmittedBy string     `json:"submitted_by" gorm:"size:255"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ApprovedAt  *time.Time `json:"approved_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (ApprovalCycle) TableName() string {
	return "va_allocation_cycles"
}

// ApprovalRecord is one matrix step of a cycle.
type ApprovalRecord struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	CycleID         string     `json:"cycle_id" gorm:"size:36;not null;index"`
	Month           int        `json:"month" gorm:"not null"`
	Year            int        `json:"year" gorm:"not null"`
	Step            int        `json:"step" gorm:"not null"`
	RoleID          int        `json:"role_id" gorm:"not null"`
	DivisionID      *int       `json:"division_id"`
	ApproverID      *string    `json:"approver_id" gorm:"size:255"`
	ApproverName    string     `json:"approver_name" gorm:"size:255"`
	ApprovedAt      *time.Time `json:"approved_at"`
	ApprovedComment *string    `json:"approved_comment" gorm:"type:text"`
	ApprovalFlag    string     `json:"approval_flag" gorm:"size:20;not null"`
	CreatedBy       string     `json:"created_by" gorm:"size:255"`
	UpdatedBy       string     `json:"updated_by" gorm:"size:255"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (ApprovalRecord) TableName() string {
	return "va_allocation_approvals"
}

// IsApproved reports whether the step has been signed off.
func (r *ApprovalRecord) IsApproved() bool {
	return r.ApprovedAt != nil
}

// AllocationDispatch logs every attempt to hand the approved allocation to the partner.
type AllocationDispatch struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	CycleID     string    `json:"cycle_id" gorm:"size:36;not null;index"`
	Month       int       `json:"month" gorm:"not null"`
	Year        int       `json:"year" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:20;not null"`
	URL         string    `json:"url" gorm:"size:512"`
	HTTPStatus  int       `json:"http_status"`
	Error       string    `json:"error" gorm:"type:text"`
	Entries     int       `json:"entries"`
	ArchiveKey  string    `json:"archive_key" gorm:"size:512"`
	TriggeredBy string    `json:"triggered_by" gorm:"size:255"`
	AttemptedAt time.Time `json:"attempted_at"`
}

func (AllocationDispatch) TableName() string {
	return "va_allocation_dispatches"
}

// AllModels lists every entity migrated by the service.
func AllModels() []interface{} {
	return []interface{}{
		&Dealer{}, &Category{}, &Segment{}, &Model{},
		&Forecast{}, &ForecastDetail{}, &ForecastDetailMonth{},
		&StockPilot{}, &OrderConfiguration{}, &SlotCalculation{}, &SlotCalculationDetail{},
		&MonthlyTarget{}, &MonthlyTargetDetail{},
		&ApprovalMatrix{}, &ApprovalCycle{}, &ApprovalRecord{}, &AllocationDispatch{},
	}
}
