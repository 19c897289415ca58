package persistence

import (
	"context"
	"strings"
	"testing"

	"github.com/BaSui01/drama/internal/metrics"
	"github.com/BaSui01/drama/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("drama", reg, nil)
	ctx := context.Background()

	db := Instrument(NewMemoryStore(), "memory", collector)
	require.NoError(t, db.SetWorldStateEntry(ctx, "k", world.Number(1)))
	assert.ErrorIs(t, db.SetWorldStateEntry(ctx, "", world.Number(1)), ErrInvalidInput)
	_, err := db.GetChat(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	expected := `
# HELP drama_store_operations_total Total number of persistence operations
# TYPE drama_store_operations_total counter
drama_store_operations_total{backend="memory",operation="get_chat",status="ok"} 1
drama_store_operations_total{backend="memory",operation="set_world_state",status="error"} 1
drama_store_operations_total{backend="memory",operation="set_world_state",status="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "drama_store_operations_total"))
}

func TestInstrument_NilCollector(t *testing.T) {
	store := NewMemoryStore()
	assert.Same(t, store, Instrument(store, "memory", nil))
}
