// Package explore implements the exploration scheduler: the orchestration
// loop that pulls open questions, checks budgets, dispatches work to the
// answering capability, applies results back into the graph store, and
// decides when to halt.
//
// The scheduler owns all graph writes. Workers are pure functions from a
// question and its ancestor chain to an answer text; they never touch the
// store's mutation path, which keeps the check-then-increment budget
// operations linearizable without fine-grained locks inside the graph.
package explore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rand/fractal/internal/answer"
	"github.com/rand/fractal/internal/budget"
	"github.com/rand/fractal/internal/classify"
	"github.com/rand/fractal/internal/detect"
	"github.com/rand/fractal/internal/graph"
	"github.com/rand/fractal/internal/synthesize"
)

// Config configures the exploration engine.
type Config struct {
	// Profiles maps intensities to budget ceilings.
	Profiles budget.Profiles

	// Classifier tunes the structural-signal rule set.
	Classifier classify.Config

	// Detector tunes convergence/contradiction detection.
	Detector detect.Config

	// MaxParallel caps concurrent dispatches within a batch. Zero means the
	// batch size itself is the cap; the agent budget remains the real
	// concurrency ceiling either way.
	MaxParallel int

	// DispatchTimeout bounds one answering call (default 60s). A timed-out
	// worker takes the retry path, not a whole-graph abort.
	DispatchTimeout time.Duration

	// RetryDelay is the pause before the single dispatch retry.
	RetryDelay time.Duration

	// Synthesize adds a synthesis node when the graph halts.
	Synthesize bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Profiles:        budget.DefaultProfiles(),
		Classifier:      classify.DefaultConfig(),
		Detector:        detect.DefaultConfig(),
		DispatchTimeout: 60 * time.Second,
		RetryDelay:      500 * time.Millisecond,
		Synthesize:      true,
	}
}

// Result reports the outcome of a run: the terminal status (or pause), the
// exploration statistics, and the final snapshot. Callers always get a
// structured status plus whatever partial graph was built.
type Result struct {
	GraphID     string       `json:"graph_id"`
	Status      graph.Status `json:"status"`
	Paused      bool         `json:"paused,omitempty"`
	PauseReason string       `json:"pause_reason,omitempty"`

	Dispatches     int `json:"dispatches"`
	Retries        int `json:"retries"`
	Failures       int `json:"failures"`
	NewQuestions   int `json:"new_questions"`
	Convergences   int `json:"convergences"`
	Contradictions int `json:"contradictions"`
	BudgetHits     int `json:"budget_hits"`

	SynthesisID string             `json:"synthesis_id,omitempty"`
	Duration    time.Duration      `json:"duration"`
	Snapshot    *graph.Snapshot    `json:"snapshot,omitempty"`
	Violations  []budget.Violation `json:"violations,omitempty"`
}

// Engine drives exploration graphs to a terminal status or checkpoint.
type Engine struct {
	store     *graph.Store
	tracker   *budget.Tracker
	detector  *detect.Detector
	stability *detect.StabilityTracker
	answerer  answer.Answerer
	synth     synthesize.Synthesizer
	cfg       Config

	agentSeq atomic.Int64
}

// NewEngine creates an engine over the given store and answering capability.
func NewEngine(store *graph.Store, answerer answer.Answerer, cfg Config) *Engine {
	if cfg.Profiles == nil {
		cfg.Profiles = budget.DefaultProfiles()
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	return &Engine{
		store:     store,
		tracker:   budget.NewTracker(store),
		detector:  detect.NewDetector(store, cfg.Detector),
		stability: detect.NewStabilityTracker(cfg.Detector.StabilityRuns),
		answerer:  answerer,
		synth:     synthesize.NewConcatenateSynthesizer(),
		cfg:       cfg,
	}
}

// SetSynthesizer overrides the synthesizer, e.g. with the LLM-backed one.
func (e *Engine) SetSynthesizer(s synthesize.Synthesizer) {
	e.synth = s
}

// Create builds a new graph with its root question. The budget is fixed here
// from the intensity profile and never changes afterwards.
func (e *Engine) Create(ctx context.Context, seed string, intensity graph.Intensity, mode graph.CheckpointMode, modeArg int) (*graph.Graph, error) {
	prof, err := e.cfg.Profiles.For(intensity)
	if err != nil {
		return nil, err
	}

	g, err := e.store.CreateGraph(ctx, graph.CreateGraphParams{
		Seed:           seed,
		Intensity:      intensity,
		CheckpointMode: mode,
		CheckpointArg:  modeArg,
		MaxAgents:      prof.MaxAgents,
		MaxDepth:       prof.MaxDepth,
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.store.AddNode(ctx, g.ID, "", graph.NodeQuestion, seed); err != nil {
		return nil, fmt.Errorf("add root question: %w", err)
	}

	slog.Info("graph created", "graph", g.ID, "intensity", intensity,
		"max_agents", prof.MaxAgents, "max_depth", prof.MaxDepth)
	return g, nil
}

// Run drives the graph until a terminal status or a checkpoint pause.
func (e *Engine) Run(ctx context.Context, graphID string) (*Result, error) {
	start := time.Now()
	res := &Result{GraphID: graphID}

	g, err := e.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if g.Status.Terminal() {
		return nil, &TerminalStateError{GraphID: graphID, Status: g.Status}
	}

	for {
		// A graph-level timeout maps to budget_exhausted: partial progress
		// is preserved and reportable, never discarded.
		if ctx.Err() != nil {
			return e.finalize(ctx, res, g, graph.StatusBudgetExhausted, start)
		}

		open, err := e.store.OpenQuestions(ctx, graphID)
		if err != nil {
			return e.fatal(ctx, res, g, start, err)
		}
		if len(open) == 0 {
			status := graph.StatusCompleted
			if res.BudgetHits > 0 {
				status = graph.StatusBudgetExhausted
			}
			return e.finalize(ctx, res, g, status, start)
		}

		batch, err := e.reserveBatch(ctx, res, g, open)
		if err != nil {
			return e.fatal(ctx, res, g, start, err)
		}
		if len(batch) == 0 {
			// Budget froze every remaining open question.
			return e.finalize(ctx, res, g, graph.StatusBudgetExhausted, start)
		}

		results := e.dispatch(ctx, batch)
		res.Dispatches += len(batch)

		// Results are applied even if the run context expired mid-batch:
		// answers that did come back are partial progress worth keeping.
		converged := false
		wctx := context.WithoutCancel(ctx)
		for _, r := range results {
			res.Retries += r.Retries
			if r.Err != nil {
				// A failure after the run context expired is the run's own
				// deadline, not the capability failing: the question was
				// never answered, so it stays open for resume.
				if ctx.Err() != nil {
					if _, uerr := e.store.UpdateNode(wctx, graphID, r.Question.ID, graph.MetadataPatch{
						Status: graph.NodeOpen,
					}); uerr != nil {
						return e.fatal(ctx, res, g, start, uerr)
					}
					continue
				}
				res.Failures++
				slog.Warn("dispatch failed", "graph", graphID, "node", r.Question.ID, "error", r.Err)
				_, uerr := e.store.UpdateNode(ctx, graphID, r.Question.ID, graph.MetadataPatch{
					Status: graph.NodeError,
					Reason: graph.ReasonError,
					Metadata: map[string]any{
						"dispatch_error": r.Err.Error(),
					},
				})
				if uerr != nil {
					return e.fatal(ctx, res, g, start, uerr)
				}
				continue
			}

			if err := e.apply(wctx, res, g, r.Question, r.Answer); err != nil {
				return e.fatal(ctx, res, g, start, err)
			}

			outcome, err := e.detector.ScanNode(wctx, graphID, r.Question.ID)
			if err != nil {
				return e.fatal(ctx, res, g, start, err)
			}
			res.Convergences += len(outcome.ConvergedWith)
			res.Contradictions += len(outcome.ContradictedWith)
			if len(outcome.ConvergedWith) > 0 {
				converged = true
			}
		}

		if reason := e.pauseReason(ctx, g, converged); reason != "" {
			remaining, err := e.store.OpenQuestions(ctx, graphID)
			if err != nil {
				return e.fatal(ctx, res, g, start, err)
			}
			if len(remaining) > 0 {
				res.Paused = true
				res.PauseReason = reason
				res.Status = graph.StatusActive
				res.Duration = time.Since(start)
				res.Snapshot, err = e.store.Snapshot(ctx, graphID)
				if err != nil {
					return nil, err
				}
				slog.Info("exploration paused", "graph", graphID, "reason", reason)
				return res, nil
			}
		}
	}
}

// reserveBatch claims an agent slot per open question, in stable creation
// order. Questions that lose the race for the last slot are frozen with
// reason budget_exhausted, never dropped silently.
func (e *Engine) reserveBatch(ctx context.Context, res *Result, g *graph.Graph, open []*graph.Node) ([]*graph.Node, error) {
	var batch []*graph.Node
	for _, q := range open {
		err := e.tracker.TryReserveAgent(ctx, g.ID)
		if errors.Is(err, graph.ErrBudgetExceeded) {
			res.BudgetHits++
			if _, ferr := e.store.UpdateNode(ctx, g.ID, q.ID, graph.MetadataPatch{
				Status: graph.NodeSaturated,
				Reason: graph.ReasonBudgetExhausted,
			}); ferr != nil {
				return nil, ferr
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		owner := fmt.Sprintf("agent-%d", e.agentSeq.Add(1))
		if _, err := e.store.UpdateNode(ctx, g.ID, q.ID, graph.MetadataPatch{
			Status: graph.NodeExploring,
			Owner:  owner,
		}); err != nil {
			return nil, err
		}
		q.Owner = owner
		batch = append(batch, q)
	}
	return batch, nil
}

// pauseReason evaluates the graph's checkpoint mode after a batch.
func (e *Engine) pauseReason(ctx context.Context, g *graph.Graph, converged bool) string {
	switch g.CheckpointMode {
	case graph.ModeInteractive:
		return "interactive checkpoint"
	case graph.ModeConvergence:
		if converged {
			return "convergence detected"
		}
	case graph.ModeDepth:
		open, err := e.store.OpenQuestions(ctx, g.ID)
		if err != nil {
			return ""
		}
		for _, q := range open {
			if q.Depth >= g.CheckpointArg {
				return fmt.Sprintf("frontier reached depth %d", g.CheckpointArg)
			}
		}
	}
	return ""
}

// fatal marks the graph errored and returns the structured result alongside
// the error. Only store-level corruption and write failures land here;
// dispatch failures stay contained to their node.
func (e *Engine) fatal(ctx context.Context, res *Result, g *graph.Graph, start time.Time, cause error) (*Result, error) {
	base := context.WithoutCancel(ctx)
	if err := e.store.UpdateGraphStatus(base, g.ID, graph.StatusError); err != nil {
		slog.Error("failed to mark graph errored", "graph", g.ID, "error", err)
	}
	res.Status = graph.StatusError
	res.Duration = time.Since(start)
	if snap, err := e.store.Snapshot(base, g.ID); err == nil {
		res.Snapshot = snap
	}
	return res, cause
}

// finalize flags open contradictions for synthesis, optionally writes the
// synthesis node, and records the terminal status.
func (e *Engine) finalize(ctx context.Context, res *Result, g *graph.Graph, status graph.Status, start time.Time) (*Result, error) {
	base := context.WithoutCancel(ctx)

	contradictions, err := e.store.Contradictions(base, g.ID)
	if err != nil {
		return e.fatal(base, res, g, start, err)
	}
	for _, edge := range contradictions {
		if edge.Resolution != graph.ResolutionOpen {
			continue
		}
		if err := e.store.ResolveContradiction(base, g.ID, edge.ID, graph.ResolutionFlagged); err != nil {
			return e.fatal(base, res, g, start, err)
		}
	}

	if e.cfg.Synthesize {
		id, err := e.writeSynthesis(base, g)
		if err != nil {
			slog.Warn("synthesis failed", "graph", g.ID, "error", err)
		} else {
			res.SynthesisID = id
		}
	}

	if err := e.store.UpdateGraphStatus(base, g.ID, status); err != nil {
		return e.fatal(base, res, g, start, err)
	}

	if violations, err := e.tracker.Check(base, g.ID); err == nil {
		res.Violations = violations
	}

	res.Status = status
	res.Duration = time.Since(start)
	res.Snapshot, err = e.store.Snapshot(base, g.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("exploration halted", "graph", g.ID, "status", status,
		"dispatches", res.Dispatches, "convergences", res.Convergences,
		"contradictions", res.Contradictions)
	return res, nil
}

// writeSynthesis renders the synthesis and stores it as a child of the root.
func (e *Engine) writeSynthesis(ctx context.Context, g *graph.Graph) (string, error) {
	snap, err := e.store.Snapshot(ctx, g.ID)
	if err != nil {
		return "", err
	}
	root := snap.Root()
	if root == nil {
		return "", fmt.Errorf("graph %s has no root", g.ID)
	}

	in := synthesize.Input{Seed: g.Seed}
	for _, n := range snap.Nodes {
		if n.Type != graph.NodeQuestion {
			continue
		}
		if ans := n.Answer(); ans != "" || n.Status == graph.NodeError {
			in.Branches = append(in.Branches, synthesize.BranchResult{
				NodeID:   n.ID,
				Question: n.Text,
				Answer:   ans,
				Reason:   n.Reason,
				Failed:   n.Status == graph.NodeError,
			})
		}
	}
	for _, edge := range snap.EdgesOfKind(graph.EdgeConvergence) {
		if edge.Detail != "" {
			in.Insights = append(in.Insights, edge.Detail)
		}
	}
	for _, edge := range snap.EdgesOfKind(graph.EdgeContradiction) {
		if edge.Resolution != graph.ResolutionResolved {
			detail := edge.Detail
			if detail == "" {
				detail = "unlabeled tension"
			}
			in.Contradictions = append(in.Contradictions, detail)
		}
	}

	out, err := e.synth.Synthesize(ctx, in)
	if err != nil {
		return "", err
	}

	node, err := e.store.AddNode(ctx, g.ID, root.ID, graph.NodeSynthesis, out.Text,
		graph.WithStatus(graph.NodeSaturated, graph.ReasonActionable),
		graph.WithMetadata(map[string]any{
			"part_count":    out.PartCount,
			"open_tensions": out.OpenTensions,
		}))
	if err != nil {
		return "", err
	}
	return node.ID, nil
}
