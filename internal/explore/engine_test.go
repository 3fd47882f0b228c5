package explore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/fractal/internal/answer"
	"github.com/rand/fractal/internal/budget"
	"github.com/rand/fractal/internal/graph"
)

const (
	seedQuestion = "Should we build the feature?"

	// Hedged answer enumerating two sub-questions: branches, and the
	// sub-questions are extracted as children.
	branchingAnswer = "It depends on two things:\n" +
		"1. Do users actually want it?\n" +
		"2. Can we maintain it long term?"
)

func newTestEngine(t *testing.T, script map[string]string, maxAgents, maxDepth int) (*Engine, *graph.Store, *answer.ScriptedAnswerer) {
	t.Helper()

	store, err := graph.NewStore(graph.Options{
		Path:              filepath.Join(t.TempDir(), "graphs.db"),
		CreateIfNotExists: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	scripted := answer.NewScripted(script)
	cfg := DefaultConfig()
	cfg.Profiles = budget.Profiles{
		graph.IntensityExplore: {MaxAgents: maxAgents, MaxDepth: maxDepth},
	}
	cfg.RetryDelay = time.Millisecond

	return NewEngine(store, scripted, cfg), store, scripted
}

func runToEnd(t *testing.T, engine *Engine, mode graph.CheckpointMode, modeArg int) (*graph.Graph, *Result) {
	t.Helper()
	ctx := context.Background()

	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, mode, modeArg)
	require.NoError(t, err)

	res, err := engine.Run(ctx, g.ID)
	require.NoError(t, err)
	return g, res
}

func TestRunBranchesAndCompletes(t *testing.T) {
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion:                    branchingAnswer,
		"Do users actually want it?":    "Yes. Telemetry shows steady demand.",
		"Can we maintain it long term?": "Yes. The platform team owns the runtime.",
	}, 3, 2)

	g, res := runToEnd(t, engine, graph.ModeAutonomous, 0)

	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.False(t, res.Paused)
	assert.Equal(t, 3, res.Dispatches)
	assert.Equal(t, 2, res.NewQuestions)
	assert.Zero(t, res.BudgetHits)
	assert.Zero(t, res.Failures)
	assert.NotEmpty(t, res.SynthesisID)

	ctx := context.Background()
	got, err := store.GetGraph(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.AgentsSpawned)

	snap, err := store.Snapshot(ctx, g.ID)
	require.NoError(t, err)
	root := snap.Root()
	require.NotNil(t, root)
	assert.Equal(t, graph.NodeSaturated, root.Status)
	assert.Equal(t, graph.ReasonDerivable, root.Reason)
	assert.Equal(t, branchingAnswer, root.Answer())

	children := snap.Children(root.ID)
	require.Len(t, children, 3) // two sub-questions plus the synthesis node
	var questions, syntheses int
	for _, c := range children {
		switch c.Type {
		case graph.NodeQuestion:
			questions++
			assert.Equal(t, graph.NodeSaturated, c.Status)
			assert.Equal(t, graph.ReasonActionable, c.Reason)
			assert.NotEmpty(t, c.Answer())
		case graph.NodeSynthesis:
			syntheses++
			assert.Contains(t, c.Text, "Telemetry shows steady demand")
		}
	}
	assert.Equal(t, 2, questions)
	assert.Equal(t, 1, syntheses)
}

func TestRunAgentBudgetExhaustion(t *testing.T) {
	// Two agent slots: the root takes one, the first child the second, and
	// the second child is frozen rather than dropped.
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion:                 branchingAnswer,
		"Do users actually want it?": "Yes. Telemetry shows steady demand.",
	}, 2, 4)

	g, res := runToEnd(t, engine, graph.ModeAutonomous, 0)

	assert.Equal(t, graph.StatusBudgetExhausted, res.Status)
	assert.Equal(t, 2, res.Dispatches)
	assert.GreaterOrEqual(t, res.BudgetHits, 1)

	require.NotEmpty(t, res.Violations)
	assert.Equal(t, "agents", res.Violations[0].Metric)

	snap, err := store.Snapshot(context.Background(), g.ID)
	require.NoError(t, err)

	frozen := 0
	for _, n := range snap.Nodes {
		if n.Type == graph.NodeQuestion && n.Reason == graph.ReasonBudgetExhausted {
			frozen++
			assert.Equal(t, graph.NodeSaturated, n.Status)
			assert.Empty(t, n.Answer())
		}
	}
	assert.Equal(t, 1, frozen)
}

func TestRunDepthBudgetExhaustion(t *testing.T) {
	// Depth ceiling 1: the children exist, but a child that wants to branch
	// again saturates as budget_exhausted instead of creating grandchildren.
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion: branchingAnswer,
		"Do users actually want it?": "It depends on the segment:\n" +
			"1. Do enterprise accounts want it?\n" +
			"2. Do self-serve accounts want it?",
		"Can we maintain it long term?": "Yes. The platform team owns the runtime.",
	}, 5, 1)

	g, res := runToEnd(t, engine, graph.ModeAutonomous, 0)

	assert.Equal(t, graph.StatusBudgetExhausted, res.Status)
	assert.GreaterOrEqual(t, res.BudgetHits, 1)

	snap, err := store.Snapshot(context.Background(), g.ID)
	require.NoError(t, err)
	for _, n := range snap.Nodes {
		assert.LessOrEqual(t, n.Depth, 1)
	}

	hedged := 0
	for _, n := range snap.Nodes {
		if n.Type == graph.NodeQuestion && n.Text == "Do users actually want it?" {
			hedged++
			assert.Equal(t, graph.ReasonBudgetExhausted, n.Reason)
			assert.NotEmpty(t, n.Answer()) // the partial answer survives
		}
	}
	assert.Equal(t, 1, hedged)
}

func TestRunDetectsContradiction(t *testing.T) {
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion: "It depends on the branch analyses:\n" +
			"1. What does branch one conclude?\n" +
			"2. What does branch two conclude?",
		"What does branch one conclude?": "tenant sharding keeps queries local and simplifies isolation",
		"What does branch two conclude?": "tenant sharding does not keep queries local, isolation suffers",
	}, 5, 2)

	g, res := runToEnd(t, engine, graph.ModeAutonomous, 0)

	assert.Equal(t, 1, res.Contradictions)
	assert.Equal(t, graph.StatusCompleted, res.Status)

	// The contradiction is flagged for the caller, never silently resolved.
	contras, err := store.Contradictions(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, contras, 1)
	assert.Equal(t, graph.ResolutionFlagged, contras[0].Resolution)
	assert.NotEmpty(t, contras[0].Detail)

	require.NotNil(t, res.Snapshot)
	if res.SynthesisID != "" {
		synth := res.Snapshot.Node(res.SynthesisID)
		require.NotNil(t, synth)
		assert.Contains(t, synth.Text, "tensions")
	}
}

func TestRunInteractivePauseAndResume(t *testing.T) {
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion:                    branchingAnswer,
		"Do users actually want it?":    "Yes. Telemetry shows steady demand.",
		"Can we maintain it long term?": "Yes. The platform team owns the runtime.",
	}, 5, 2)

	ctx := context.Background()
	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, graph.ModeInteractive, 0)
	require.NoError(t, err)

	res, err := engine.Run(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, "interactive checkpoint", res.PauseReason)
	assert.Equal(t, graph.StatusActive, res.Status)

	// The graph stays active with its frontier open and one agent spent.
	st, err := engine.State(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, st.OpenQuestions, 2)
	assert.Equal(t, 4, st.AgentsRemaining)

	res, err = engine.Resume(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)

	got, err := store.GetGraph(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, got.Status)
}

func TestRunConvergencePauseAndResume(t *testing.T) {
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion: "It depends on three analyses:\n" +
			"1. What does analysis one say?\n" +
			"2. What does analysis two say?\n" +
			"3. What does analysis three say?",
		"What does analysis one say?": "tenant sharding keeps queries local and simplifies isolation",
		"What does analysis two say?": "tenant sharding keeps queries local and simplifies isolation work",
		"What does analysis three say?": "It depends on the rollout:\n" +
			"1. Which regions ship first?\n" +
			"2. Who staffs the migration?",
		"Which regions ship first?": "EU first. Latency budgets decide.",
		"Who staffs the migration?": "Platform rotation staffs it.",
	}, 8, 3)

	ctx := context.Background()
	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, graph.ModeConvergence, 0)
	require.NoError(t, err)

	res, err := engine.Run(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, "convergence detected", res.PauseReason)
	assert.Equal(t, 1, res.Convergences)

	convs, err := store.Convergences(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.NotEmpty(t, convs[0].Detail)

	res, err = engine.Resume(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, res.Paused)
	assert.Equal(t, graph.StatusCompleted, res.Status)
}

func TestRunDepthCheckpoint(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]string{
		seedQuestion:                    branchingAnswer,
		"Do users actually want it?":    "Yes. Telemetry shows steady demand.",
		"Can we maintain it long term?": "Yes. The platform team owns the runtime.",
	}, 5, 3)

	ctx := context.Background()
	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, graph.ModeDepth, 1)
	require.NoError(t, err)

	res, err := engine.Run(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Contains(t, res.PauseReason, "depth 1")

	res, err = engine.Resume(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, res.Paused)
	assert.Equal(t, graph.StatusCompleted, res.Status)
}

func TestResumeTerminalGraphFails(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]string{
		seedQuestion: "Yes. Ship it behind a flag.",
	}, 3, 2)

	g, res := runToEnd(t, engine, graph.ModeAutonomous, 0)
	assert.Equal(t, graph.StatusCompleted, res.Status)

	_, err := engine.Resume(context.Background(), g.ID)
	require.Error(t, err)
	assert.True(t, IsTerminalState(err))

	var tse *TerminalStateError
	require.ErrorAs(t, err, &tse)
	assert.Equal(t, g.ID, tse.GraphID)
	assert.Equal(t, graph.StatusCompleted, tse.Status)
}

func TestStateIdempotent(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]string{
		seedQuestion:                    branchingAnswer,
		"Do users actually want it?":    "Yes. Telemetry shows steady demand.",
		"Can we maintain it long term?": "Yes. The platform team owns the runtime.",
	}, 5, 2)

	ctx := context.Background()
	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, graph.ModeInteractive, 0)
	require.NoError(t, err)

	res, err := engine.Run(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, res.Paused)

	// Two loads with no intervening mutation see the same frontier.
	first, err := engine.State(ctx, g.ID)
	require.NoError(t, err)
	second, err := engine.State(ctx, g.ID)
	require.NoError(t, err)

	require.Len(t, first.OpenQuestions, 2)
	var firstIDs, secondIDs []string
	for _, q := range first.OpenQuestions {
		firstIDs = append(firstIDs, q.ID)
	}
	for _, q := range second.OpenQuestions {
		secondIDs = append(secondIDs, q.ID)
	}
	assert.Equal(t, firstIDs, secondIDs)
	assert.Equal(t, first.AgentsRemaining, second.AgentsRemaining)
}

func TestResumeReopensStrandedQuestions(t *testing.T) {
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion: "Yes. Ship it behind a flag.",
	}, 3, 2)

	ctx := context.Background()
	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, graph.ModeAutonomous, 0)
	require.NoError(t, err)

	// Simulate a crash mid-dispatch: the root was claimed but its answer
	// never came back.
	snap, err := store.Snapshot(ctx, g.ID)
	require.NoError(t, err)
	root := snap.Root()
	require.NotNil(t, root)
	_, err = store.UpdateNode(ctx, g.ID, root.ID, graph.MetadataPatch{
		Status: graph.NodeExploring,
		Owner:  "agent-1",
	})
	require.NoError(t, err)

	res, err := engine.Resume(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)

	got, err := store.GetNode(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.NodeSaturated, got.Status)
	assert.Equal(t, "Yes. Ship it behind a flag.", got.Answer())
}

func TestRunTimeoutReopensInFlightQuestions(t *testing.T) {
	store, err := graph.NewStore(graph.Options{
		Path:              filepath.Join(t.TempDir(), "graphs.db"),
		CreateIfNotExists: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// The answering capability never responds; the run deadline expires
	// while the root is in flight.
	runCtx, cancel := context.WithCancel(context.Background())
	blocked := answer.AnswerFunc(func(ctx context.Context, question string, ancestors []string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})

	cfg := DefaultConfig()
	cfg.Profiles = budget.Profiles{
		graph.IntensityExplore: {MaxAgents: 3, MaxDepth: 2},
	}
	cfg.RetryDelay = time.Millisecond
	engine := NewEngine(store, blocked, cfg)

	ctx := context.Background()
	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, graph.ModeAutonomous, 0)
	require.NoError(t, err)

	res, err := engine.Run(runCtx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusBudgetExhausted, res.Status)
	assert.Zero(t, res.Failures) // the capability never failed, the run expired

	snap, err := store.Snapshot(ctx, g.ID)
	require.NoError(t, err)
	root := snap.Root()
	require.NotNil(t, root)
	assert.Equal(t, graph.NodeOpen, root.Status)
}

func TestResumeBudgetExhaustedReturnsFrontier(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]string{
		seedQuestion: "Yes. Ship it behind a flag.",
	}, 3, 2)

	ctx := context.Background()
	g, err := engine.Create(ctx, seedQuestion, graph.IntensityExplore, graph.ModeAutonomous, 0)
	require.NoError(t, err)

	// An already-expired run context halts the graph before any dispatch,
	// leaving the root open.
	expired, cancel := context.WithCancel(ctx)
	cancel()
	res, err := engine.Run(expired, g.ID)
	require.NoError(t, err)
	require.Equal(t, graph.StatusBudgetExhausted, res.Status)

	// The persisted frontier stays loadable: budget exhaustion is not
	// a terminal-state refusal.
	st, err := engine.State(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, st.OpenQuestions, 1)
	assert.Equal(t, seedQuestion, st.OpenQuestions[0].Text)

	res, err = engine.Resume(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusBudgetExhausted, res.Status)
	require.NotNil(t, res.Snapshot)
	root := res.Snapshot.Root()
	require.NotNil(t, root)
	assert.Equal(t, graph.NodeOpen, root.Status)
}

func TestRunRetriesTransientFailure(t *testing.T) {
	engine, _, scripted := newTestEngine(t, map[string]string{
		seedQuestion: "Yes. Ship it behind a flag.",
	}, 3, 2)
	scripted.FailNext(seedQuestion, 1)

	_, res := runToEnd(t, engine, graph.ModeAutonomous, 0)

	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Retries)
	assert.Zero(t, res.Failures)
}

func TestRunContainsDispatchFailure(t *testing.T) {
	engine, store, scripted := newTestEngine(t, map[string]string{
		seedQuestion:                    branchingAnswer,
		"Do users actually want it?":    "Yes. Telemetry shows steady demand.",
		"Can we maintain it long term?": "Yes. The platform team owns the runtime.",
	}, 5, 2)
	// Both the attempt and its retry fail for one child.
	scripted.FailNext("Do users actually want it?", 2)

	g, res := runToEnd(t, engine, graph.ModeAutonomous, 0)

	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, graph.StatusCompleted, res.Status)

	snap, err := store.Snapshot(context.Background(), g.ID)
	require.NoError(t, err)
	failed := 0
	for _, n := range snap.Nodes {
		if n.Status == graph.NodeError {
			failed++
			assert.Equal(t, "Do users actually want it?", n.Text)
			assert.Equal(t, graph.ReasonError, n.Reason)
			assert.NotEmpty(t, n.Metadata["dispatch_error"])
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunRecordsOwners(t *testing.T) {
	engine, store, _ := newTestEngine(t, map[string]string{
		seedQuestion: "Yes. Ship it behind a flag.",
	}, 3, 2)

	g, _ := runToEnd(t, engine, graph.ModeAutonomous, 0)

	snap, err := store.Snapshot(context.Background(), g.ID)
	require.NoError(t, err)
	root := snap.Root()
	require.NotNil(t, root)
	assert.NotEmpty(t, root.Owner)
}
