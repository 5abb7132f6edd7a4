package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/infra/auth"
)

// withTestUser эмулирует auth-мидлварь: оператор с правом резолюции заявок.
func withTestUser(userID string) func(http.Handler) http.Handler {
	return withTestUserScopes(userID, map[string]bool{domain.ScopeApprovalsDecide: true})
}

func withTestUserScopes(userID string, scopes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithUserID(r.Context(), userID)
			ctx = auth.WithScopes(ctx, scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type stubApprovalControl struct {
	queue    []*domain.Approval
	approved []string
	rejected []string
	err      error
}

func (s *stubApprovalControl) ApprovalQueue(context.Context, string) ([]*domain.Approval, error) {
	return s.queue, s.err
}

func (s *stubApprovalControl) GetApproval(_ context.Context, id string) (*domain.Approval, error) {
	for _, app := range s.queue {
		if app.ID == id {
			return app, nil
		}
	}
	return nil, domain.ErrApprovalNotFound
}

func (s *stubApprovalControl) ApproveAction(_ context.Context, id, reviewerID, _ string) (*domain.Approval, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.approved = append(s.approved, id+"/"+reviewerID)
	return &domain.Approval{ID: id, Status: domain.StatusApproved}, nil
}

func (s *stubApprovalControl) RejectAction(_ context.Context, id, reviewerID, _ string) (*domain.Approval, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.rejected = append(s.rejected, id+"/"+reviewerID)
	return &domain.Approval{ID: id, Status: domain.StatusRejected}, nil
}

func newApprovalRouter(control ApprovalControl) http.Handler {
	h := NewApprovalHandler(control)
	r := chi.NewRouter()
	r.Get("/v1/approvals", h.List)
	r.Get("/v1/approvals/{id}", h.GetDetails)
	r.Post("/v1/approvals/{id}/decide", h.Decide)
	return r
}

func TestApprovalListOK(t *testing.T) {
	control := &stubApprovalControl{queue: []*domain.Approval{{ID: "ap-1", Status: domain.StatusPending}}}
	rec := httptest.NewRecorder()

	newApprovalRouter(control).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/approvals", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ap-1")
}

func TestApprovalGetUnknownIs404(t *testing.T) {
	rec := httptest.NewRecorder()

	newApprovalRouter(&stubApprovalControl{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/v1/approvals/ghost", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecideRequiresReviewer(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/approvals/ap-1/decide",
		strings.NewReader(`{"approved":true}`))

	// Без auth-контекста reviewer_id пуст — запрос отбивается
	newApprovalRouter(&stubApprovalControl{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecideApprovesWithScope(t *testing.T) {
	control := &stubApprovalControl{}
	h := NewApprovalHandler(control)

	r := chi.NewRouter()
	r.Use(withTestUser("op-1"))
	r.Post("/v1/approvals/{id}/decide", h.Decide)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/approvals/ap-1/decide",
		strings.NewReader(`{"approved":true,"comment":"ok"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ap-1/op-1"}, control.approved)
}

// Оператор без approvals.decide видит очередь, но решать не может
func TestDecideForbiddenWithoutScope(t *testing.T) {
	control := &stubApprovalControl{}
	h := NewApprovalHandler(control)

	r := chi.NewRouter()
	r.Use(withTestUserScopes("op-1", nil))
	r.Post("/v1/approvals/{id}/decide", h.Decide)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/approvals/ap-1/decide",
		strings.NewReader(`{"approved":true}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, control.approved)
}

func TestDecideConflictOnDoubleDecision(t *testing.T) {
	control := &stubApprovalControl{err: domain.ErrAlreadyProcessed}
	h := NewApprovalHandler(control)

	// Прогоняем через мидлварный хелпер напрямую, reviewer уже в контексте
	r := chi.NewRouter()
	r.Use(withTestUser("op-1"))
	r.Post("/v1/approvals/{id}/decide", h.Decide)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/approvals/ap-1/decide",
		strings.NewReader(`{"approved":false}`))
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
