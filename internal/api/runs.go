package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"palletroute/internal/heuristic"
	"palletroute/internal/model"
	"palletroute/internal/opt"
	"palletroute/internal/solver"
	"palletroute/internal/store"
)

// RunsHandler handles POST/GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.createRun(w, r)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		items, next, err := s.Store.ListRuns(r.Context(), cursor, queryInt(r, "limit", 0))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req model.RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := req.Instance.Validate(); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
		return
	}
	h := s.Heuristic
	if req.Options != nil {
		cfg, err := applyRunOptions(h.Config(), req.Options)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid run options", err.Error(), r.URL.Path)
			return
		}
		if h, err = h.WithConfig(cfg); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid run options", err.Error(), r.URL.Path)
			return
		}
	}

	run := model.Run{
		ID:        uuid.NewString(),
		Instance:  req.Instance.Name,
		Status:    model.RunPending,
		CreatedAt: time.Now().UTC(),
		Options:   req.Options,
	}
	if err := s.Store.SaveRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path)
		return
	}

	if queryBool(r, "wait") {
		run = s.execute(r.Context(), h, run, req.Instance)
		writeJSON(w, http.StatusOK, run)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.WithoutCancel(r.Context()), h, run, req.Instance)
	}()
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": run.ID, "status": run.Status})
}

// execute runs the heuristic for a stored run and persists the outcome. At
// most Server.MaxConcurrentRuns executions proceed at once.
func (s *Server) execute(ctx context.Context, h *heuristic.Heuristic, run model.Run, inst model.Instance) model.Run {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return s.finish(run, nil, ctx.Err())
	}
	defer func() { <-s.slots }()

	run.Status = model.RunRunning
	if err := s.Store.SaveRun(ctx, run); err != nil {
		s.Logger.Warn("save run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	ctx = heuristic.WithRunID(ctx, run.ID)
	ctx = solver.WithLabel(ctx, run.ID)
	res, err := h.Run(ctx, inst)
	return s.finish(run, res, err)
}

func (s *Server) finish(run model.Run, res *model.HeuristicResult, err error) model.Run {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Result = res
	if err != nil {
		run.Status = model.RunFailed
		run.Error = err.Error()
	} else {
		run.Status = model.RunCompleted
	}
	if err := s.Store.SaveRun(ctx, run); err != nil {
		s.Logger.Error("save run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	if m, ok := s.RoutingMetrics.Take(run.ID); ok {
		if err := s.Store.SaveSolverMetrics(ctx, run.ID, (&opt.Router{}).Name(), routingMetricsDoc(m)); err != nil {
			s.Logger.Warn("save solver metrics failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return run
}

func routingMetricsDoc(m opt.Metrics) map[string]any {
	snaps := make([]map[string]any, len(m.Snapshots))
	for i, sn := range m.Snapshots {
		snaps[i] = map[string]any{"iteration": sn.Iteration, "removal": sn.Removal, "insertion": sn.Insertion}
	}
	return map[string]any{
		"iterations":            m.Iterations,
		"improvements":          m.Improvements,
		"acceptedWorse":         m.AcceptedWorse,
		"bestCost":              m.BestCost,
		"finalCost":             m.FinalCost,
		"removalSelects":        m.RemovalSelects,
		"insertSelects":         m.InsertSelects,
		"finalRemovalWeights":   m.FinalRemovalWeights,
		"finalInsertionWeights": m.FinalInsertionWeights,
		"snapshots":             snaps,
	}
}

// RunByIDHandler handles /v1/runs/{id} and its sub-resources.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
		return
	}
	switch sub := strings.Join(parts[1:], "/"); sub {
	case "":
		writeJSON(w, http.StatusOK, run)
	case "events/stream":
		s.streamRunEvents(w, r, run)
	case "ws":
		s.RunEventsWSHandler(w, r, run)
	case "metrics":
		items, err := s.Store.ListSolverMetrics(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List solver metrics failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runId": id, "items": items})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("unknown run resource %q", sub), r.URL.Path)
	}
}

// finishedEvent synthesizes the terminal event of a run that ended before the
// client subscribed.
func finishedEvent(run model.Run) (RunEvent, bool) {
	ev := heuristic.Event{RunID: run.ID, Instance: run.Instance}
	switch run.Status {
	case model.RunCompleted:
		ev.Type = heuristic.EventRunCompleted
		ev.Result = run.Result
	case model.RunFailed:
		ev.Type = heuristic.EventRunFailed
		ev.Error = run.Error
	default:
		return RunEvent{}, false
	}
	if run.FinishedAt != nil {
		ev.Time = *run.FinishedAt
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return RunEvent{}, false
	}
	return RunEvent{Type: ev.Type, Data: data}, true
}

// streamRunEvents serves run events as SSE until the run ends or the client
// goes away.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, run model.Run) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch := s.Broker.Subscribe(run.ID)
	defer s.Broker.Unsubscribe(run.ID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", run.ID, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	send := func(evt RunEvent) {
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", evt.Data)
		flusher.Flush()
	}
	heartbeat()

	// The run may have ended between the lookup and the subscription.
	if latest, err := s.Store.GetRun(r.Context(), run.ID); err == nil {
		run = latest
	}
	if evt, done := finishedEvent(run); done {
		send(evt)
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if terminalEvent(evt.Type) {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}
