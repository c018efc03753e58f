package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/config"
	"palletroute/internal/heuristic"
	"palletroute/internal/model"
	"palletroute/internal/opt"
	"palletroute/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	hcfg := heuristic.DefaultConfig()
	hcfg.PackingTimeLimit = time.Second
	hcfg.RoutingTimeLimit = 2 * time.Second
	broker := NewBroker()
	rm := opt.NewMetricsStore()
	h, err := heuristic.New(hcfg, opt.BinPacker{}, &opt.Router{Seed: 1, Iterations: 50, Metrics: rm},
		heuristic.WithObserver(BrokerObserver(broker)))
	require.NoError(t, err)
	s := NewServer(cfg, store.NewMemory(), broker, h, nil)
	s.RoutingMetrics = rm
	return s
}

// scenarioInstance needs 5, 1 and 2 pallets at customers 1..3 with vehicle
// capacity 2.
func scenarioInstance() model.Instance {
	return model.Instance{
		Name:     "scenario",
		N:        3,
		Capacity: 2,
		Distance: [][]int{
			{0, 4, 6, 3},
			{4, 0, 5, 7},
			{6, 5, 0, 4},
			{3, 7, 4, 0},
		},
		ItemsPerCustomer: []int{5, 1, 2},
		BinCapacity:      10,
		SizesOfItems: [][]int{
			{10, 10, 10, 10, 10},
			{10, 0, 0, 0, 0},
			{10, 10, 0, 0, 0},
		},
	}
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateRunWait(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, http.MethodPost, "/v1/runs?wait=true", model.RunRequest{Instance: scenarioInstance()})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, "scenario", run.Instance)
	require.NotNil(t, run.Result)
	assert.Equal(t, 16, run.Result.Grouping.FixedCost)
	require.NotNil(t, run.Result.Objective.TotalObjective)
	assert.Equal(t, "SATISFIED", run.Result.Status)
	require.NotNil(t, run.FinishedAt)

	rr = do(t, h, http.MethodGet, "/v1/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunCompleted, got.Status)

	rr = do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var m struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	require.Len(t, m.Items, 1)
	assert.Equal(t, "alns", m.Items[0]["solver"])
}

func TestCreateRunOptions(t *testing.T) {
	s := newTestServer(t)
	yes := true
	inst := scenarioInstance()
	inst.SizesOfItems[0] = []int{10, 10, 10, 10, 0}
	inst.ItemsPerCustomer[0] = 4
	rr := do(t, s.Routes(), http.MethodPost, "/v1/runs?wait=true", model.RunRequest{
		Instance: inst,
		Options:  &model.RunOptions{TreatEqualCapacityAsFixed: &yes, Fallback: "volume_lb"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	// customers 1 (4 pallets) and 3 (2 pallets) are served by full trips only
	assert.Equal(t, map[int]int{1: 2, 3: 1}, run.Result.Grouping.FullTrips)
	assert.Equal(t, []int{2}, run.Result.Grouping.RemainingCustomers)
	require.NotNil(t, run.Options)
	assert.Equal(t, "volume_lb", run.Options.Fallback)
}

func TestCreateRunRejects(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	bad := scenarioInstance()
	bad.Capacity = 0
	rr := do(t, h, http.MethodPost, "/v1/runs", model.RunRequest{Instance: bad})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "Invalid instance", p.Title)

	rr = do(t, h, http.MethodPost, "/v1/runs", model.RunRequest{
		Instance: scenarioInstance(),
		Options:  &model.RunOptions{Fallback: "optimistic"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/runs", model.RunRequest{
		Instance: scenarioInstance(),
		Options:  &model.RunOptions{NbVehicles: -1},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"instance":{},"bogus":1}`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// nothing was stored
	items, _, err := s.Store.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateRunAsyncAndList(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, http.MethodPost, "/v1/runs", model.RunRequest{Instance: scenarioInstance()})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	id := accepted["id"]
	require.NotEmpty(t, id)
	assert.Equal(t, "/v1/runs/"+id, rr.Header().Get("Location"))

	require.Eventually(t, func() bool {
		run, err := s.Store.GetRun(context.Background(), id)
		return err == nil && run.Status == model.RunCompleted
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Wait(context.Background()))

	rr = do(t, h, http.MethodGet, "/v1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items []model.RunSummary `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, id, list.Items[0].ID)
	assert.Equal(t, "SATISFIED", list.Items[0].SolverStatus)
	assert.NotNil(t, list.Items[0].TotalObjective)
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/", nil).Code)

	require.NoError(t, s.Store.SaveRun(context.Background(), model.Run{ID: "r1", Status: model.RunPending, CreatedAt: time.Now()}))
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/r1/unknown", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/v1/runs/r1", nil).Code)
}

func readSSE(t *testing.T, sc *bufio.Scanner) (event, data string) {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
	require.NoError(t, sc.Err())
	return event, data
}

func TestRunEventStreamLive(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	require.NoError(t, s.Store.SaveRun(context.Background(), model.Run{ID: "live", Status: model.RunRunning, CreatedAt: time.Now()}))

	resp, err := http.Get(srv.URL + "/v1/runs/live/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	sc := bufio.NewScanner(resp.Body)
	ev, _ := readSSE(t, sc)
	assert.Equal(t, "heartbeat", ev)

	obs := BrokerObserver(s.Broker)
	ctx := heuristic.WithRunID(context.Background(), "live")
	obs.Observe(ctx, heuristic.Event{Type: heuristic.EventGroupingDone, RunID: "live", Grouping: &model.GroupingResult{FixedCost: 16}})
	obs.Observe(ctx, heuristic.Event{Type: heuristic.EventRunCompleted, RunID: "live"})

	ev, data := readSSE(t, sc)
	assert.Equal(t, heuristic.EventGroupingDone, ev)
	var got heuristic.Event
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	require.NotNil(t, got.Grouping)
	assert.Equal(t, 16, got.Grouping.FixedCost)

	ev, _ = readSSE(t, sc)
	assert.Equal(t, heuristic.EventRunCompleted, ev)
	// stream ends after the terminal event
	assert.False(t, sc.Scan())
}

func TestRunEventStreamFinishedRun(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	now := time.Now()
	require.NoError(t, s.Store.SaveRun(context.Background(), model.Run{ID: "done", Status: model.RunFailed, Error: "boom", CreatedAt: now, FinishedAt: &now}))

	resp, err := http.Get(srv.URL + "/v1/runs/done/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	readSSE(t, sc)
	ev, data := readSSE(t, sc)
	assert.Equal(t, heuristic.EventRunFailed, ev)
	assert.Contains(t, data, "boom")
}

func TestRunEventsWebsocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	require.NoError(t, s.Store.SaveRun(context.Background(), model.Run{ID: "ws", Status: model.RunRunning, CreatedAt: time.Now()}))

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/ws/ws"
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.WriteJSON(wsMessage{Type: "connection_init"}))
	var msg wsMessage
	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "connection_ack", msg.Type)

	BrokerObserver(s.Broker).Observe(context.Background(), heuristic.Event{Type: heuristic.EventRunCompleted, RunID: "ws", Instance: "i"})
	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "next", msg.Type)
	assert.Equal(t, heuristic.EventRunCompleted, msg.ID)
	var ev heuristic.Event
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, "i", ev.Instance)

	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "complete", msg.Type)
}

func TestGenerateInstance(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.Routes(), http.MethodPost, "/v1/instances/generate", map[string]any{"customers": 6, "seed": 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var inst model.Instance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inst))
	assert.Equal(t, 6, inst.N)
	assert.NoError(t, inst.Validate())

	rr = do(t, s.Routes(), http.MethodPost, "/v1/instances/generate", map[string]any{"customers": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s.Routes(), http.MethodGet, "/v1/instances/generate", nil).Code)
}

func TestHeuristicConfigAndDebug(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.Routes(), http.MethodGet, "/v1/heuristic/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Defaults config.HeuristicConfig `json:"defaults"`
		Solvers  map[string]string      `json:"solvers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, s.Config.Heuristic.Fallback, body.Defaults.Fallback)
	assert.Equal(t, config.EngineBuiltin, body.Solvers["routing"])

	rr = do(t, s.Routes(), http.MethodGet, "/debug/vars", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"build"`)
	assert.NotContains(t, rr.Body.String(), "postgres://")
}

func TestWebhookDeliveriesAndMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Store.EnqueueWebhook(context.Background(), "r1", heuristic.EventRunCompleted, "http://example.invalid/hook", "s", []byte(`{}`))
	require.NoError(t, err)

	rr := do(t, s.Routes(), http.MethodGet, "/v1/admin/webhook-deliveries?status=pending", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items []store.WebhookDelivery `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "r1", list.Items[0].RunID)

	rr = do(t, s.Routes(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestApplyRunOptions(t *testing.T) {
	base := heuristic.DefaultConfig()
	got, err := applyRunOptions(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, got)

	got, err = applyRunOptions(base, &model.RunOptions{PackingTimeLimitMs: 250, RoutingTimeLimitMs: 1500, NbVehicles: 3})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, got.PackingTimeLimit)
	assert.Equal(t, 1500*time.Millisecond, got.RoutingTimeLimit)
	assert.Equal(t, 3, got.NbVehicles)
	assert.Equal(t, base.Fallback, got.Fallback)

	_, err = applyRunOptions(base, &model.RunOptions{RoutingTimeLimitMs: -1})
	assert.Error(t, err)
	_, err = applyRunOptions(base, &model.RunOptions{Fallback: "nope"})
	assert.ErrorIs(t, err, heuristic.ErrPrecondition)
}
