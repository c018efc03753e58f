package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"palletroute/internal/metrics"
	"palletroute/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	Logger      *zap.Logger
}

func NewWorker(s store.Store, maxAttempts int, logger *zap.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, MaxAttempts: maxAttempts, Interval: time.Second, Logger: logger}
}

// Run polls the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce attempts every due delivery once.
func (w *Worker) ProcessOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil {
		w.Logger.Warn("fetch webhook deliveries", zap.Error(err))
		return
	}
	for _, it := range items {
		code, latency, err := w.deliver(ctx, it)
		success := err == nil && code >= 200 && code < 300
		lastErr := ""
		if err != nil {
			lastErr = err.Error()
		}
		outcome := store.DeliveryRetry
		switch {
		case success:
			outcome = store.DeliveryDelivered
			err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
		case it.Attempts+1 >= w.MaxAttempts:
			outcome = store.DeliveryFailed
			w.Logger.Warn("webhook delivery failed permanently", zap.String("id", it.ID), zap.String("url", it.URL), zap.Int("code", code), zap.String("error", lastErr))
			err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
		default:
			next := time.Now().Add(nextBackoff(it.Attempts))
			err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
		}
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, outcome).Inc()
		metrics.WebhookLatency.WithLabelValues(it.EventType, outcome).Observe(float64(latency))
		if err != nil {
			w.Logger.Warn("update webhook delivery", zap.String("id", it.ID), zap.Error(err))
		}
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) (code, latencyMs int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latencyMs, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, latencyMs, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
