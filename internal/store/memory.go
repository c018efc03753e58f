package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"palletroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	runs       map[string]model.Run
	order      []string // run ids, oldest first
	metrics    map[string][]map[string]any
	deliveries map[string]*WebhookDelivery
	queue      []string // delivery ids in enqueue order
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]model.Run{},
		metrics:    map[string][]map[string]any{},
		deliveries: map[string]*WebhookDelivery{},
	}
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.order = append(m.order, run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

// ListRuns returns runs newest first. The cursor is the id of the last run
// of the previous page.
func (m *Memory) ListRuns(ctx context.Context, cursor string, limit int) ([]model.RunSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	i := len(m.order) - 1
	if cursor != "" {
		for ; i >= 0; i-- {
			if m.order[i] == cursor {
				i--
				break
			}
		}
	}
	out := []model.RunSummary{}
	for ; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[m.order[i]].Summary())
	}
	next := ""
	if len(out) == limit && i >= 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) SaveSolverMetrics(ctx context.Context, runID, solver string, metrics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := map[string]any{"solver": solver}
	for k, v := range metrics {
		item[k] = v
	}
	rows := m.metrics[runID]
	for i, r := range rows {
		if r["solver"] == solver {
			rows[i] = item
			return nil
		}
	}
	m.metrics[runID] = append(rows, item)
	return nil
}

func (m *Memory) ListSolverMetrics(ctx context.Context, runID string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]map[string]any{}, m.metrics[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i]["solver"].(string) < out[j]["solver"].(string) })
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &WebhookDelivery{ID: id, RunID: runID, EventType: eventType, URL: url, Secret: secret,
		Payload: payload, Status: DeliveryPending, NextAttemptAt: time.Now()}
	m.queue = append(m.queue, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.queue {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	if success {
		now := time.Now()
		d.Status = DeliveryDelivered
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []WebhookDelivery{}
	for _, id := range m.queue {
		d := m.deliveries[id]
		if status == "" || d.Status == status {
			out = append(out, *d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
