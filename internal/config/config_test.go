package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/heuristic"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_URL", "DB_MIGRATE", "REDIS_URL", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, EngineBuiltin, cfg.Solvers.Packing.Engine)
	assert.Equal(t, EngineBuiltin, cfg.Solvers.Routing.Engine)

	h, err := cfg.Heuristic.Heuristic()
	require.NoError(t, err)
	assert.Equal(t, heuristic.DefaultConfig(), h)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("PALLETROUTE_HEURISTIC_FALLBACK", "volume_lb")
	t.Setenv("PALLETROUTE_HEURISTIC_PACKING_TIME_LIMIT", "2500ms")
	t.Setenv("PALLETROUTE_HEURISTIC_TREAT_EQUAL_CAPACITY_AS_FIXED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr())
	assert.Equal(t, "postgres://x", cfg.Database.URL)
	assert.False(t, cfg.Database.Migrate)

	h, err := cfg.Heuristic.Heuristic()
	require.NoError(t, err)
	assert.Equal(t, heuristic.FallbackVolumeLB, h.Fallback)
	assert.Equal(t, 2500*time.Millisecond, h.PackingTimeLimit)
	assert.True(t, h.TreatEqualCapacityAsFixed)
}

func TestFileAndPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "palletroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
heuristic:
  workers: 8
  routing_time_limit: 90s
solvers:
  routing:
    engine: minizinc
    model_path: models/cvrp.mzn
    solver_name: gecode
webhooks:
  subscriptions:
    - url: http://hooks.example/runs
      secret: s3cret
`), 0o644))
	t.Setenv("PALLETROUTE_HEURISTIC_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Heuristic.Workers, "env beats file")
	assert.Equal(t, 90*time.Second, cfg.Heuristic.RoutingTimeLimit)
	assert.Equal(t, EngineMiniZinc, cfg.Solvers.Routing.Engine)
	assert.Equal(t, "gecode", cfg.Solvers.Routing.SolverName)
	require.Len(t, cfg.Webhooks.Subscriptions, 1)
	assert.Equal(t, "s3cret", cfg.Webhooks.Subscriptions[0].Secret)

	pub := cfg.Public()
	assert.Equal(t, []string{"http://hooks.example/runs"}, pub["webhooks"])
	assert.NotContains(t, pub, "secret")
}

func TestValidateRejects(t *testing.T) {
	clearEnv(t)
	base := Default()

	cfg := base
	cfg.Heuristic.Fallback = "optimistic"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, heuristic.ErrPrecondition)

	cfg = base
	cfg.Solvers.Packing.Engine = "ortools"
	require.ErrorContains(t, cfg.Validate(), "unknown engine")

	cfg = base
	cfg.Solvers.Routing.Engine = EngineMiniZinc
	require.ErrorContains(t, cfg.Validate(), "model_path")

	cfg = base
	cfg.Log.Level = "chatty"
	require.Error(t, cfg.Validate())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
