package budget

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/fractal/internal/graph"
)

func newTestTracker(t *testing.T, maxAgents, maxDepth int) (*Tracker, *graph.Graph) {
	t.Helper()
	store, err := graph.NewStore(graph.Options{
		Path:              filepath.Join(t.TempDir(), "graphs.db"),
		CreateIfNotExists: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	g, err := store.CreateGraph(context.Background(), graph.CreateGraphParams{
		Seed:           "seed",
		Intensity:      graph.IntensityPulse,
		CheckpointMode: graph.ModeAutonomous,
		MaxAgents:      maxAgents,
		MaxDepth:       maxDepth,
	})
	require.NoError(t, err)
	return NewTracker(store), g
}

func TestProfiles(t *testing.T) {
	profiles := DefaultProfiles()

	pulse, err := profiles.For(graph.IntensityPulse)
	require.NoError(t, err)
	assert.Equal(t, Profile{MaxAgents: 3, MaxDepth: 2}, pulse)

	deep, err := profiles.For(graph.IntensityDeep)
	require.NoError(t, err)
	assert.Equal(t, Profile{MaxAgents: 15, MaxDepth: 6}, deep)

	_, err = profiles.For("frantic")
	require.Error(t, err)
}

func TestTryReserveAgent(t *testing.T) {
	tracker, g := newTestTracker(t, 2, 2)
	ctx := context.Background()

	require.NoError(t, tracker.TryReserveAgent(ctx, g.ID))
	require.NoError(t, tracker.TryReserveAgent(ctx, g.ID))
	require.ErrorIs(t, tracker.TryReserveAgent(ctx, g.ID), graph.ErrBudgetExceeded)

	remaining, err := tracker.Remaining(ctx, g.ID)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestRecordDepth(t *testing.T) {
	tracker, g := newTestTracker(t, 3, 2)
	ctx := context.Background()

	require.NoError(t, tracker.RecordDepth(ctx, g.ID, 1))
	require.NoError(t, tracker.RecordDepth(ctx, g.ID, 2))
	require.ErrorIs(t, tracker.RecordDepth(ctx, g.ID, 3), graph.ErrDepthExceeded)
}

func TestCheckReportsViolations(t *testing.T) {
	tracker, g := newTestTracker(t, 1, 2)
	ctx := context.Background()

	violations, err := tracker.Check(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, violations)

	require.NoError(t, tracker.TryReserveAgent(ctx, g.ID))

	violations, err = tracker.Check(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "agents", violations[0].Metric)
	assert.Equal(t, 1, violations[0].Current)
	assert.NotEmpty(t, violations[0].Error())
}
