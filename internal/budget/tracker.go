package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rand/fractal/internal/graph"
)

// Tracker enforces the per-graph agent and depth budgets. Agent reservation
// writes through the graph store, whose conditional UPDATE makes the
// check-and-increment linearizable across concurrent callers: with one slot
// left, two racing reservations yield exactly one success.
type Tracker struct {
	store *graph.Store

	mu       sync.RWMutex
	maxDepth map[string]int // graphID -> max depth, cached from the store
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store *graph.Store) *Tracker {
	return &Tracker{
		store:    store,
		maxDepth: make(map[string]int),
	}
}

// TryReserveAgent claims one agent slot. Returns graph.ErrBudgetExceeded when
// the graph's ceiling is reached; the caller must freeze the affected branch
// (saturate with reason budget_exhausted), not drop the question.
func (t *Tracker) TryReserveAgent(ctx context.Context, graphID string) error {
	err := t.store.ReserveAgent(ctx, graphID)
	if errors.Is(err, graph.ErrBudgetExceeded) {
		return graph.ErrBudgetExceeded
	}
	return err
}

// RecordDepth checks a prospective node depth against the graph's ceiling.
// Returns graph.ErrDepthExceeded when depth would exceed max_depth.
func (t *Tracker) RecordDepth(ctx context.Context, graphID string, depth int) error {
	max, err := t.graphMaxDepth(ctx, graphID)
	if err != nil {
		return err
	}
	if depth > max {
		return graph.ErrDepthExceeded
	}
	return nil
}

// Remaining reports the agent slots left on a graph.
func (t *Tracker) Remaining(ctx context.Context, graphID string) (int, error) {
	g, err := t.store.GetGraph(ctx, graphID)
	if err != nil {
		return 0, err
	}
	return g.BudgetRemaining(), nil
}

// Check returns the current violations for a graph, for reporting. An empty
// slice means both budgets have headroom.
func (t *Tracker) Check(ctx context.Context, graphID string) ([]Violation, error) {
	g, err := t.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	if g.AgentsSpawned >= g.MaxAgents {
		violations = append(violations, Violation{
			Metric:  "agents",
			Current: g.AgentsSpawned,
			Limit:   g.MaxAgents,
			Message: fmt.Sprintf("agent budget exhausted: %d/%d", g.AgentsSpawned, g.MaxAgents),
		})
	}

	snap, err := t.store.Snapshot(ctx, graphID)
	if err != nil {
		return nil, err
	}
	maxSeen := 0
	for _, n := range snap.Nodes {
		if n.Depth > maxSeen {
			maxSeen = n.Depth
		}
	}
	if maxSeen >= g.MaxDepth {
		violations = append(violations, Violation{
			Metric:  "depth",
			Current: maxSeen,
			Limit:   g.MaxDepth,
			Message: fmt.Sprintf("depth ceiling reached: %d/%d", maxSeen, g.MaxDepth),
		})
	}
	return violations, nil
}

func (t *Tracker) graphMaxDepth(ctx context.Context, graphID string) (int, error) {
	t.mu.RLock()
	max, ok := t.maxDepth[graphID]
	t.mu.RUnlock()
	if ok {
		return max, nil
	}

	g, err := t.store.GetGraph(ctx, graphID)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	t.maxDepth[graphID] = g.MaxDepth
	t.mu.Unlock()
	return g.MaxDepth, nil
}

// Forget drops cached state for a graph, e.g. after deletion.
func (t *Tracker) Forget(graphID string) {
	t.mu.Lock()
	delete(t.maxDepth, graphID)
	t.mu.Unlock()
}
