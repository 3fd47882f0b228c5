package graph

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a graph, node, or edge is unknown.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.ID
}

// IsNotFound returns true if the error is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// ErrInvalidTransition is returned when a caller attempts a status change the
// state machine forbids: mutating a terminal graph, resurrecting a terminal
// node, or completing a graph with unresolved contradictions.
type ErrInvalidTransition struct {
	Entity string
	From   string
	To     string
	Why    string
}

func (e *ErrInvalidTransition) Error() string {
	msg := fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
	if e.Why != "" {
		msg += " (" + e.Why + ")"
	}
	return msg
}

// IsInvalidTransition returns true if the error is an ErrInvalidTransition.
func IsInvalidTransition(err error) bool {
	var it *ErrInvalidTransition
	return errors.As(err, &it)
}

// ErrBudgetExceeded is returned by ReserveAgent when no agent slots remain.
// It is an expected outcome, not a failure: the scheduler converts it into a
// budget_exhausted saturation, never surfaces it to callers.
var ErrBudgetExceeded = errors.New("agent budget exceeded")

// ErrDepthExceeded is returned when a child node would exceed the graph's
// maximum depth. Like ErrBudgetExceeded, it drives a saturation transition.
var ErrDepthExceeded = errors.New("depth budget exceeded")

// ErrCorrupt indicates a store-level invariant violation, e.g. an edge
// referencing a missing node. Non-recoverable: the graph must be marked error.
var ErrCorrupt = errors.New("graph store corruption")
