// Package webhooks notifies external endpoints when runs finish. Events are
// queued in the store and delivered by a background worker with retries.
package webhooks

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"go.uber.org/zap"

	"palletroute/internal/heuristic"
	"palletroute/internal/model"
	"palletroute/internal/store"
)

// Subscription is one configured endpoint. An empty Events list means
// run.completed and run.failed.
type Subscription struct {
	URL    string   `mapstructure:"url" json:"url"`
	Secret string   `mapstructure:"secret" json:"-"`
	Events []string `mapstructure:"events" json:"events,omitempty"`
}

func (s Subscription) wants(eventType string) bool {
	if len(s.Events) == 0 {
		return eventType == heuristic.EventRunCompleted || eventType == heuristic.EventRunFailed
	}
	return slices.Contains(s.Events, eventType)
}

// Publisher is a heuristic.Observer that enqueues a delivery per matching
// subscription.
type Publisher struct {
	Store  store.Store
	Subs   []Subscription
	Logger *zap.Logger
}

func NewPublisher(s store.Store, subs []Subscription, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{Store: s, Subs: subs, Logger: logger}
}

type payload struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	RunID string `json:"runId"`
	TS    string `json:"ts"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Observe ignores per-customer packing events; they are too chatty for
// external delivery.
func (p *Publisher) Observe(ctx context.Context, ev heuristic.Event) {
	if ev.Type == heuristic.EventPackingCustomer || ev.RunID == "" {
		return
	}
	var subs []Subscription
	for _, s := range p.Subs {
		if s.wants(ev.Type) {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		return
	}
	pl := payload{ID: ev.RunID + ":" + ev.Type, Type: ev.Type, RunID: ev.RunID, TS: ev.Time.UTC().Format(time.RFC3339), Error: ev.Error}
	if ev.Result != nil {
		pl.Data = summarize(ev.Result)
	}
	body, err := json.Marshal(pl)
	if err != nil {
		p.Logger.Warn("encode webhook payload", zap.Error(err))
		return
	}
	// the run context may be cancelled right after completion
	ctx = context.WithoutCancel(ctx)
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, ev.RunID, ev.Type, s.URL, s.Secret, body); err != nil {
			p.Logger.Warn("enqueue webhook", zap.String("url", s.URL), zap.String("event", ev.Type), zap.Error(err))
		}
	}
}

type resultSummary struct {
	Instance  string                   `json:"instance"`
	Status    string                   `json:"status"`
	Objective model.ObjectiveBreakdown `json:"objective"`
	TimeSec   float64                  `json:"timeSec"`
}

func summarize(r *model.HeuristicResult) resultSummary {
	return resultSummary{Instance: r.Instance, Status: r.Status, Objective: r.Objective, TimeSec: r.TimeSec}
}
