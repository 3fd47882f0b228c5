package explore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rand/fractal/internal/graph"
)

// TerminalStateError reports an attempt to continue a graph that can no
// longer change. The caller gets the status, not a silent no-op.
type TerminalStateError struct {
	GraphID string
	Status  graph.Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("graph %s is terminal (%s) and cannot be resumed", e.GraphID, e.Status)
}

// IsTerminalState reports whether err is a TerminalStateError.
func IsTerminalState(err error) bool {
	var tse *TerminalStateError
	return errors.As(err, &tse)
}

// State describes a graph's resumability: the graph record plus its open
// frontier. Everything needed to continue lives in the store, so a state can
// be loaded by a different process than the one that paused it.
type State struct {
	Graph           *graph.Graph  `json:"graph"`
	OpenQuestions   []*graph.Node `json:"open_questions"`
	AgentsRemaining int           `json:"agents_remaining"`
}

// State loads the current state of a graph. A budget-exhausted graph still
// has loadable state (its frozen frontier); only completed and error graphs
// fail with TerminalStateError.
func (e *Engine) State(ctx context.Context, graphID string) (*State, error) {
	g, err := e.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if !g.Status.Resumable() {
		return nil, &TerminalStateError{GraphID: graphID, Status: g.Status}
	}

	open, err := e.store.OpenQuestions(ctx, graphID)
	if err != nil {
		return nil, err
	}
	remaining, err := e.tracker.Remaining(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return &State{Graph: g, OpenQuestions: open, AgentsRemaining: remaining}, nil
}

// Resume continues a paused or interrupted graph from its durable state.
// Nodes left in exploring by a crash are reopened first: their dispatch
// outcome was lost, so they are simply asked again. A budget-exhausted graph
// cannot spend further agents, so its persisted frontier is returned as-is.
func (e *Engine) Resume(ctx context.Context, graphID string) (*Result, error) {
	st, err := e.State(ctx, graphID)
	if err != nil {
		return nil, err
	}

	if st.Graph.Status == graph.StatusBudgetExhausted {
		snap, err := e.store.Snapshot(ctx, graphID)
		if err != nil {
			return nil, err
		}
		return &Result{
			GraphID:  graphID,
			Status:   graph.StatusBudgetExhausted,
			Snapshot: snap,
		}, nil
	}

	if err := e.reopenStranded(ctx, graphID); err != nil {
		return nil, err
	}

	return e.Run(ctx, graphID)
}

// reopenStranded resets exploring questions back to open. Exploring is not a
// terminal status, so the transition is legal; the agent slot those nodes
// consumed stays spent, which keeps the budget honest across crashes.
func (e *Engine) reopenStranded(ctx context.Context, graphID string) error {
	snap, err := e.store.Snapshot(ctx, graphID)
	if err != nil {
		return err
	}
	for _, n := range snap.Nodes {
		if n.Type != graph.NodeQuestion || n.Status != graph.NodeExploring {
			continue
		}
		if _, err := e.store.UpdateNode(ctx, graphID, n.ID, graph.MetadataPatch{
			Status: graph.NodeOpen,
		}); err != nil {
			return err
		}
	}
	return nil
}
