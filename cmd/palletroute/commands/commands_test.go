package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/instance"
	"palletroute/internal/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "palletroute "))
}

func TestGenerateAndSolve(t *testing.T) {
	dir := t.TempDir()
	instPath := filepath.Join(dir, "inst.yaml")
	_, err := execute(t, "generate", "--customers", "6", "--seed", "4", "--split-fraction", "0.5", "--vehicles", "6", "--output", instPath)
	require.NoError(t, err)

	inst, err := instance.Load(instPath)
	require.NoError(t, err)
	assert.Equal(t, 6, inst.N)
	assert.Equal(t, "gen-uniform-n6-s4", inst.Name)
	assert.Equal(t, 6, inst.NbVehicles)

	resPath := filepath.Join(dir, "res.json")
	_, err = execute(t, "solve", "--instance", instPath, "--routing-time", "300ms", "--log-level", "error", "--output", resPath)
	require.NoError(t, err)
	data, err := os.ReadFile(resPath)
	require.NoError(t, err)
	var res model.HeuristicResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, "gen-uniform-n6-s4", res.Instance)
	assert.Len(t, res.Packing, 6)
	assert.True(t, res.HasSolution())
}

func TestGenerateStdoutFormats(t *testing.T) {
	out, err := execute(t, "generate", "--customers", "2", "--seed", "1", "--format", "dzn")
	require.NoError(t, err)
	assert.Contains(t, out, "N = 2;")

	out, err = execute(t, "generate", "--customers", "2", "--seed", "1")
	require.NoError(t, err)
	var inst model.Instance
	require.NoError(t, json.Unmarshal([]byte(out), &inst))
	assert.Equal(t, 2, inst.N)

	_, err = execute(t, "generate", "--geometry", "spiral")
	assert.Error(t, err)
}

func TestSolveBatchAndErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	for i, p := range []string{a, b} {
		inst, err := instance.Generate(instance.GenerateOptions{Customers: 3 + i, Seed: int64(i + 1)})
		require.NoError(t, err)
		inst.Name, inst.NbVehicles = "", 0
		require.NoError(t, instance.Save(p, inst))
	}
	out, err := execute(t, "solve", "-i", a, "-i", b, "--routing-time", "200ms", "--equal-as-fixed", "--log-level", "error")
	require.NoError(t, err)
	var entries []batchEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Instance)
	assert.Empty(t, entries[1].Error)

	_, err = execute(t, "solve", "--instance", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "solve", "--instance", a, "--fallback", "optimistic")
	assert.Error(t, err)

	_, err = execute(t, "solve")
	assert.Error(t, err)
}
