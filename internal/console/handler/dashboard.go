package handler

import (
	"context"
	"net/http"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/infra/auth"
)

type StatsProvider interface {
	GetTriageStats(ctx context.Context, userID string) (*domain.TriageStats, error)
}

type DashboardHandler struct {
	stats StatsProvider
}

func NewDashboardHandler(s StatsProvider) *DashboardHandler {
	return &DashboardHandler{stats: s}
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetTriageStats(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
