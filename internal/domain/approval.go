package domain

import (
	"errors"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusRejected ApprovalStatus = "REJECTED"
)

// ExecutionStatus — исход делегированного исполнения, трекается отдельно
// от статуса апрува. APPROVED + FAILED — валидная и ожидаемая комбинация.
type ExecutionStatus string

const (
	ExecutionNone      ExecutionStatus = "NONE"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrApprovalNotFound  = errors.New("approval not found")
)

// Approval — долговременная запись о решении, заблокированном до ручного
// подтверждения. Мутируется ровно дважды: резолюция оператора, затем исход
// исполнения. Никогда не удаляется ядром.
//
// Инвариант хранилища: не более одного PENDING на пару (agent_id, item_id).
// Повторный запрос при живом PENDING подавляется, а не вставляется.
type Approval struct {
	ID       string         `json:"id"`
	AgentID  string         `json:"agent_id"`
	UserID   string         `json:"user_id"`
	ItemID   string         `json:"item_id"`
	Item     MailItem       `json:"item"` // снапшот письма на момент блокировки
	Decision Decision       `json:"decision"`
	Status   ApprovalStatus `json:"status"`

	ExecStatus ExecutionStatus `json:"execution_status"`
	ExecError  string          `json:"execution_error,omitempty"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата
func (a *Approval) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if next == StatusPending {
		return ErrInvalidTransition
	}
	return nil
}
