package store

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palletroute/internal/model"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	assert.Equal(t, "evt_123", computeDedupKey([]byte(`{"id":"evt_123","type":"x"}`)))
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	got := computeDedupKey([]byte(`{"notId":"x"}`))
	b, err := hex.DecodeString(got)
	require.NoError(t, err)
	assert.Len(t, b, 8)
}

func TestJSONOrNil(t *testing.T) {
	v, err := jsonOrNil[model.RunOptions](nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = jsonOrNil(&model.RunOptions{Fallback: "volume_lb"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fallback":"volume_lb"}`, v.(string))
}

func TestMigrationsEmbedded(t *testing.T) {
	body, err := migrations.ReadFile("migrations/0001_runs.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS runs")
}
