package detect

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/fractal/internal/graph"
)

func TestPolarity(t *testing.T) {
	assert.True(t, Polarity("The migration is safe to run online."))
	assert.False(t, Polarity("The migration is not safe to run online."))
	assert.False(t, Polarity("Never run this during peak traffic."))
}

func TestCompare(t *testing.T) {
	cfg := DefaultConfig()

	a := "tenant sharding keeps queries local and simplifies isolation"
	agrees := "tenant sharding keeps queries local and simplifies isolation work"
	disagrees := "tenant sharding does not keep queries local, isolation suffers"
	unrelated := "frontend bundle splitting reduces initial page weight"

	assert.Equal(t, RelationConverges, Compare(a, agrees, cfg))
	assert.Equal(t, RelationContradicts, Compare(a, disagrees, cfg))
	assert.Equal(t, RelationNone, Compare(a, unrelated, cfg))
}

func TestSharedTopics(t *testing.T) {
	topics := SharedTopics(
		"sharding strategy for the tenant database",
		"the tenant database sharding plan",
		5)
	assert.Contains(t, topics, "sharding")
	assert.Contains(t, topics, "tenant")
	assert.Contains(t, topics, "database")
}

func TestStabilityTracker(t *testing.T) {
	tracker := NewStabilityTracker(2)

	assert.False(t, tracker.Observe("branch-1", "the index fits in memory"))
	assert.True(t, tracker.Observe("branch-1", "  The Index Fits In Memory "))

	// A different answer resets the plateau.
	assert.False(t, tracker.Observe("branch-1", "actually the index spills to disk"))
	assert.False(t, tracker.Observe("branch-2", "the index fits in memory"))

	tracker.Forget("branch-1")
	assert.False(t, tracker.Observe("branch-1", "actually the index spills to disk"))
}

func newDetectorStore(t *testing.T) (*graph.Store, *graph.Graph) {
	t.Helper()
	store, err := graph.NewStore(graph.Options{
		Path:              filepath.Join(t.TempDir(), "graphs.db"),
		CreateIfNotExists: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	g, err := store.CreateGraph(context.Background(), graph.CreateGraphParams{
		Seed:           "seed",
		Intensity:      graph.IntensityExplore,
		CheckpointMode: graph.ModeAutonomous,
		MaxAgents:      8,
		MaxDepth:       4,
	})
	require.NoError(t, err)
	return store, g
}

func answerNode(t *testing.T, store *graph.Store, graphID, parentID, question, answerText string) *graph.Node {
	t.Helper()
	ctx := context.Background()
	node, err := store.AddNode(ctx, graphID, parentID, graph.NodeQuestion, question)
	require.NoError(t, err)
	node, err = store.UpdateNode(ctx, graphID, node.ID, graph.MetadataPatch{
		Status:   graph.NodeSaturated,
		Reason:   graph.ReasonActionable,
		Metadata: map[string]any{"answer": answerText},
	})
	require.NoError(t, err)
	return node
}

func TestScanNodeConvergence(t *testing.T) {
	store, g := newDetectorStore(t)
	ctx := context.Background()

	root, err := store.AddNode(ctx, g.ID, "", graph.NodeQuestion, "root")
	require.NoError(t, err)

	a := answerNode(t, store, g.ID, root.ID, "branch a",
		"tenant sharding keeps queries local and simplifies isolation")
	answerNode(t, store, g.ID, root.ID, "branch b",
		"tenant sharding keeps queries local and simplifies isolation work")

	det := NewDetector(store, DefaultConfig())
	outcome, err := det.ScanNode(ctx, g.ID, a.ID)
	require.NoError(t, err)
	require.True(t, outcome.Found())
	assert.Len(t, outcome.ConvergedWith, 1)
	assert.NotEmpty(t, outcome.Insights)

	edges, err := store.Convergences(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestScanNodeContradiction(t *testing.T) {
	store, g := newDetectorStore(t)
	ctx := context.Background()

	root, err := store.AddNode(ctx, g.ID, "", graph.NodeQuestion, "root")
	require.NoError(t, err)

	a := answerNode(t, store, g.ID, root.ID, "branch a",
		"tenant sharding keeps queries local and simplifies isolation")
	answerNode(t, store, g.ID, root.ID, "branch b",
		"tenant sharding does not keep queries local, isolation suffers")

	det := NewDetector(store, DefaultConfig())
	outcome, err := det.ScanNode(ctx, g.ID, a.ID)
	require.NoError(t, err)
	assert.Len(t, outcome.ContradictedWith, 1)
	assert.NotEmpty(t, outcome.Tensions)

	edges, err := store.Contradictions(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, graph.ResolutionOpen, edges[0].Resolution)
}

func TestScanNodePerPairDetails(t *testing.T) {
	store, g := newDetectorStore(t)
	ctx := context.Background()

	root, err := store.AddNode(ctx, g.ID, "", graph.NodeQuestion, "root")
	require.NoError(t, err)

	a := answerNode(t, store, g.ID, root.ID, "branch a",
		"tenant sharding keeps queries local and simplifies isolation")
	answerNode(t, store, g.ID, root.ID, "branch b",
		"tenant sharding does not keep queries local, isolation suffers")
	answerNode(t, store, g.ID, root.ID, "branch c",
		"sharding does not simplify tenant isolation under load")

	det := NewDetector(store, DefaultConfig())
	outcome, err := det.ScanNode(ctx, g.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, outcome.ContradictedWith, 2)
	require.Len(t, outcome.Tensions, 2)

	// Each edge carries the tension computed for its own pair, not a single
	// summary shared across the batch.
	edges, err := store.Contradictions(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	var details []string
	for _, e := range edges {
		details = append(details, e.Detail)
	}
	assert.ElementsMatch(t, []string{
		"conflicting conclusions on: isolation, local, queries, sharding, tenant",
		"conflicting conclusions on: isolation, sharding, tenant",
	}, details)
}

func TestScanNodeIgnoresDistantBranches(t *testing.T) {
	store, g := newDetectorStore(t)
	ctx := context.Background()

	// Two identical answers four hops apart: outside the depth window, so no
	// relation is recorded.
	root, err := store.AddNode(ctx, g.ID, "", graph.NodeQuestion, "root")
	require.NoError(t, err)
	answerText := "tenant sharding keeps queries local and simplifies isolation"

	left := answerNode(t, store, g.ID, root.ID, "left", answerText)
	l2, err := store.AddNode(ctx, g.ID, left.ID, graph.NodeQuestion, "left child")
	require.NoError(t, err)
	deep := answerNode(t, store, g.ID, l2.ID, "deep question", answerText)

	right := answerNode(t, store, g.ID, root.ID, "right", answerText)
	_ = right

	det := NewDetector(store, Config{
		ConvergenceThreshold: 0.4,
		TopicThreshold:       0.25,
		DepthWindow:          1, // siblings only
		StabilityRuns:        2,
	})
	outcome, err := det.ScanNode(ctx, g.ID, deep.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Found())
}

func TestScanNodeSkipsUnanswered(t *testing.T) {
	store, g := newDetectorStore(t)
	ctx := context.Background()

	root, err := store.AddNode(ctx, g.ID, "", graph.NodeQuestion, "root")
	require.NoError(t, err)

	det := NewDetector(store, DefaultConfig())
	outcome, err := det.ScanNode(ctx, g.ID, root.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Found())
}
