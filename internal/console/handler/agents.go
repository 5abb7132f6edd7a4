package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avealis/inboxpilot/internal/domain"
)

// AgentControl Описываем, что хендлеру нужно от оркестратора
type AgentControl interface {
	AgentStatuses() []domain.AgentStatus
	AgentStatus(agentID string) (domain.AgentStatus, error)
	StartAgent(ctx context.Context, agentID string) error
	StopAgent(agentID string) error
	PauseAgent(agentID string) error
	ResumeAgent(agentID string) error
	UpdateAgentConfig(ctx context.Context, cfg domain.AgentConfig) (domain.AgentConfig, error)
}

type AgentHandler struct {
	control AgentControl
}

func NewAgentHandler(c AgentControl) *AgentHandler {
	return &AgentHandler{control: c}
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.control.AgentStatuses())
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.control.AgentStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *AgentHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.control.StartAgent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.control.StopAgent(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.control.PauseAgent(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.control.ResumeAgent(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfigUpdateRequest — тело PUT /v1/agents/{id}/config.
// Интервал принимаем в миллисекундах: фронту проще, чем Go-шные Duration.
type ConfigUpdateRequest struct {
	Name            string        `json:"name"`
	Autonomy        string        `json:"autonomy_level"`
	CheckIntervalMs int64         `json:"check_interval_ms"`
	BatchSize       int           `json:"batch_size"`
	Rules           []domain.Rule `json:"rules"`
}

func (h *AgentHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch domain.AutonomyLevel(req.Autonomy) {
	case domain.AutonomySupervised, domain.AutonomySemi, domain.AutonomyFull, "":
	default:
		http.Error(w, "unknown autonomy level", http.StatusBadRequest)
		return
	}

	cfg := domain.AgentConfig{
		ID:            chi.URLParam(r, "id"),
		Name:          req.Name,
		Autonomy:      domain.AutonomyLevel(req.Autonomy),
		CheckInterval: time.Duration(req.CheckIntervalMs) * time.Millisecond,
		BatchSize:     req.BatchSize,
		Rules:         req.Rules,
	}

	stored, err := h.control.UpdateAgentConfig(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}
