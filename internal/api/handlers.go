package api

import (
	"context"
	"net/http"
	"time"

	"palletroute/internal/instance"
)

// GenerateInstanceHandler handles POST /v1/instances/generate
func (s *Server) GenerateInstanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var opts instance.GenerateOptions
	if err := decodeJSON(w, r, &opts); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	inst, err := instance.Generate(opts)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid generator options", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// HeuristicConfigHandler returns the configured run defaults.
func (s *Server) HeuristicConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/heuristic/config" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": s.Config.Heuristic,
		"solvers": map[string]any{
			"packing": s.Config.Solvers.Packing.Engine,
			"routing": s.Config.Solvers.Routing.Engine,
		},
	})
}

// WebhookDeliveriesHandler lists queued run notifications, optionally by status.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), queryInt(r, "limit", 0))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface{ Ping(ctx context.Context) error }
	if b, ok := s.Broker.(pinger); ok {
		if err := b.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
