package graph

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Intensity fixes the exploration budget for a graph at creation time.
type Intensity string

const (
	IntensityPulse   Intensity = "pulse"   // Quick probe: few agents, shallow
	IntensityExplore Intensity = "explore" // Default breadth
	IntensityDeep    Intensity = "deep"    // Thorough exploration
)

// Valid reports whether the intensity is a known profile.
func (i Intensity) Valid() bool {
	switch i {
	case IntensityPulse, IntensityExplore, IntensityDeep:
		return true
	}
	return false
}

// CheckpointMode controls when the scheduler pauses and returns control.
type CheckpointMode string

const (
	// ModeAutonomous runs to a terminal status without pausing.
	ModeAutonomous CheckpointMode = "autonomous"

	// ModeConvergence pauses when a convergence edge is recorded.
	ModeConvergence CheckpointMode = "convergence"

	// ModeInteractive pauses after every batch of answers.
	ModeInteractive CheckpointMode = "interactive"

	// ModeDepth pauses when the frontier first reaches a given depth.
	// Stored as "depth:N".
	ModeDepth CheckpointMode = "depth"
)

// ParseCheckpointMode parses a checkpoint mode string, including the
// "depth:N" form. The returned arg is N for depth mode and 0 otherwise.
func ParseCheckpointMode(s string) (CheckpointMode, int, error) {
	switch CheckpointMode(s) {
	case ModeAutonomous, ModeConvergence, ModeInteractive:
		return CheckpointMode(s), 0, nil
	}
	if rest, ok := strings.CutPrefix(s, "depth:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return "", 0, fmt.Errorf("invalid depth checkpoint %q: want depth:N with N >= 1", s)
		}
		return ModeDepth, n, nil
	}
	return "", 0, fmt.Errorf("unknown checkpoint mode %q", s)
}

// Status is the lifecycle state of a graph. Transitions are monotonic:
// a graph leaves StatusActive exactly once and never returns.
type Status string

const (
	StatusActive          Status = "active"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusBudgetExhausted || s == StatusCompleted || s == StatusError
}

// Resumable reports whether resume may still load the graph's state. Budget
// exhaustion freezes expansion but keeps the open frontier reportable; only
// completed and error graphs refuse resume outright.
func (s Status) Resumable() bool {
	return s == StatusActive || s == StatusBudgetExhausted
}

// Graph is one exploration session rooted at a seed question.
type Graph struct {
	ID             string         `json:"id"`
	Seed           string         `json:"seed"`
	Intensity      Intensity      `json:"intensity"`
	CheckpointMode CheckpointMode `json:"checkpoint_mode"`
	CheckpointArg  int            `json:"checkpoint_arg,omitempty"` // N for depth:N
	Status         Status         `json:"status"`
	MaxAgents      int            `json:"max_agents"`
	MaxDepth       int            `json:"max_depth"`
	AgentsSpawned  int            `json:"agents_spawned"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// BudgetRemaining returns the number of agent slots left.
func (g *Graph) BudgetRemaining() int {
	if n := g.MaxAgents - g.AgentsSpawned; n > 0 {
		return n
	}
	return 0
}

// Snapshot is a consistent view of one graph at a single instant.
type Snapshot struct {
	Graph *Graph  `json:"graph"`
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Node returns the node with the given ID, or nil.
func (s *Snapshot) Node(id string) *Node {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Root returns the root node of the snapshot, or nil for an empty graph.
func (s *Snapshot) Root() *Node {
	for _, n := range s.Nodes {
		if n.ParentID == "" {
			return n
		}
	}
	return nil
}

// Children returns the nodes whose parent is the given node, in creation order.
func (s *Snapshot) Children(id string) []*Node {
	var out []*Node
	for _, n := range s.Nodes {
		if n.ParentID == id {
			out = append(out, n)
		}
	}
	return out
}

// EdgesOfKind returns the snapshot's edges of the given kind, in creation order.
func (s *Snapshot) EdgesOfKind(kind EdgeKind) []*Edge {
	var out []*Edge
	for _, e := range s.Edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
