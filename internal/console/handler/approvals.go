package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/infra/auth"
)

// ApprovalControl Описываем, что нам нужно от оркестратора для HITL
type ApprovalControl interface {
	ApprovalQueue(ctx context.Context, userID string) ([]*domain.Approval, error)
	GetApproval(ctx context.Context, id string) (*domain.Approval, error)
	ApproveAction(ctx context.Context, approvalID, reviewerID, comment string) (*domain.Approval, error)
	RejectAction(ctx context.Context, approvalID, reviewerID, reason string) (*domain.Approval, error)
}

type ApprovalHandler struct {
	control ApprovalControl
}

func NewApprovalHandler(c ApprovalControl) *ApprovalHandler {
	return &ApprovalHandler{control: c}
}

// List — очередь ручного разбора. ?user_id= сужает выборку, по умолчанию
// показываем очередь авторизованного оператора.
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = auth.UserIDFromContext(r.Context())
	}

	list, err := h.control.ApprovalQueue(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	app, err := h.control.GetApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type DecideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Decide — единая кнопка Approve/Reject. Повторное решение по той же заявке
// вернет 409: защита от Double Decision живет в сторе.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// ReviewerID — авторизованный оператор из токена
	reviewerID := auth.UserIDFromContext(r.Context())
	if reviewerID == "" {
		http.Error(w, "reviewer_id is required", http.StatusBadRequest)
		return
	}

	// Просмотр очереди доступен всем операторам, резолюция — отдельное право
	if !auth.ScopesFromContext(r.Context())[domain.ScopeApprovalsDecide] {
		http.Error(w, "missing scope: "+domain.ScopeApprovalsDecide, http.StatusForbidden)
		return
	}

	var (
		app *domain.Approval
		err error
	)
	if req.Approved {
		app, err = h.control.ApproveAction(r.Context(), id, reviewerID, req.Comment)
	} else {
		app, err = h.control.RejectAction(r.Context(), id, reviewerID, req.Comment)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}
