//go:build postgres_integration

package store

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/model"
)

func TestPostgresRunRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(t.Context()))
	require.NoError(t, p.Migrate(t.Context()))

	total := 37.0
	run := model.Run{ID: uuid.NewString(), Instance: "it", Status: model.RunCompleted, CreatedAt: time.Now().UTC(),
		Result: &model.HeuristicResult{Instance: "it", Status: "SATISFIED", Objective: model.ObjectiveBreakdown{FixedCost: 16, TotalObjective: &total}}}
	require.NoError(t, p.SaveRun(t.Context(), run))

	got, err := p.GetRun(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "SATISFIED", got.Result.Status)

	items, _, err := p.ListRuns(t.Context(), "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, run.ID, items[0].ID)
	assert.Equal(t, 37.0, *items[0].TotalObjective)

	require.NoError(t, p.SaveSolverMetrics(t.Context(), run.ID, "alns", map[string]any{"iterations": 10}))
	ms, err := p.ListSolverMetrics(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, ms, 1)

	_, err = p.GetRun(t.Context(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
