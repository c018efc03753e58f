package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/model"
)

func TestMemoryRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.SaveRun(ctx, model.Run{ID: fmt.Sprintf("r%d", i), Status: model.RunPending, CreatedAt: time.Now()}))
	}
	total := 12.0
	require.NoError(t, m.SaveRun(ctx, model.Run{ID: "r1", Status: model.RunCompleted,
		Result: &model.HeuristicResult{Status: "SATISFIED", Objective: model.ObjectiveBreakdown{TotalObjective: &total}}}))

	page, next, err := m.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"r4", "r3"}, ids(page))
	assert.Equal(t, "r3", next)

	page, next, err = m.ListRuns(ctx, next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1"}, ids(page))
	assert.Equal(t, model.RunCompleted, page[1].Status)
	assert.Equal(t, 12.0, *page[1].TotalObjective)

	page, next, err = m.ListRuns(ctx, next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"r0"}, ids(page))
	assert.Empty(t, next)
}

func ids(items []model.RunSummary) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.ID
	}
	return out
}

func TestMemorySolverMetrics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSolverMetrics(ctx, "r1", "alns", map[string]any{"iterations": 10}))
	require.NoError(t, m.SaveSolverMetrics(ctx, "r1", "alns", map[string]any{"iterations": 20}))
	require.NoError(t, m.SaveSolverMetrics(ctx, "r1", "bfd", map[string]any{}))
	rows, err := m.ListSolverMetrics(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 20, rows[0]["iterations"])
	assert.Equal(t, "bfd", rows[1]["solver"])
}

func TestMemoryWebhookQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueWebhook(ctx, "r1", "run.completed", "http://example.invalid", "s", []byte(`{}`))
	require.NoError(t, err)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	later := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "boom", 500, 3))
	failed, err := m.ListWebhookDeliveries(ctx, DeliveryFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)
	assert.ErrorIs(t, m.MarkWebhookDelivery(ctx, "nope", true, nil, "", 200, 1), ErrNotFound)
}
