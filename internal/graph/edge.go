package graph

import "time"

// EdgeKind defines the type of relationship between two nodes.
//
// parent_child edges form a strict tree (acyclic by construction, depth
// strictly increases). convergence and contradiction edges form a separate
// non-hierarchical relation over the same node set.
type EdgeKind string

const (
	EdgeParentChild   EdgeKind = "parent_child"
	EdgeConvergence   EdgeKind = "convergence"
	EdgeContradiction EdgeKind = "contradiction"
)

// ResolutionStatus tracks whether a contradiction has been dealt with.
// A graph cannot complete while a contradiction edge is unresolved.
type ResolutionStatus string

const (
	ResolutionOpen     ResolutionStatus = "open"
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionFlagged  ResolutionStatus = "flagged"
)

// Edge is a typed relationship between two nodes in the same graph.
// Convergence and contradiction edges are bidirectional; SourceID/TargetID
// ordering only records which node triggered detection.
type Edge struct {
	ID      string   `json:"id"`
	GraphID string   `json:"graph_id"`
	Kind    EdgeKind `json:"kind"`

	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`

	// Detail carries the insight text for convergence edges and the tension
	// text for contradiction edges.
	Detail string `json:"detail,omitempty"`

	// Resolution applies to contradiction edges only.
	Resolution ResolutionStatus `json:"resolution,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Connects reports whether the edge touches the given node.
func (e *Edge) Connects(nodeID string) bool {
	return e.SourceID == nodeID || e.TargetID == nodeID
}

// Unresolved reports whether this is a contradiction edge still awaiting
// resolution.
func (e *Edge) Unresolved() bool {
	return e.Kind == EdgeContradiction && e.Resolution == ResolutionOpen
}
