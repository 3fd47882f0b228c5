package graph

import (
	"encoding/json"
	"time"
)

// NodeType defines the role of a node in the exploration graph.
type NodeType string

const (
	NodeQuestion  NodeType = "question"  // Something to explore
	NodeAnswer    NodeType = "answer"    // A worker's answer to a question
	NodeSynthesis NodeType = "synthesis" // Combined result handed to the caller
)

// NodeStatus is the lifecycle state of a question node.
// Saturated and error are terminal; a terminal node never transitions again.
type NodeStatus string

const (
	NodeOpen      NodeStatus = "open"      // Awaiting exploration
	NodeExploring NodeStatus = "exploring" // Dispatched, awaiting an answer
	NodeSaturated NodeStatus = "saturated" // Will not expand further
	NodeError     NodeStatus = "error"     // Dispatch or processing failed
)

// Terminal reports whether the status is a terminal node state.
func (s NodeStatus) Terminal() bool {
	return s == NodeSaturated || s == NodeError
}

// SaturationReason records why a node stopped expanding. Closed set; written
// once when the node saturates and immutable thereafter.
type SaturationReason string

const (
	ReasonSemanticOverlap SaturationReason = "semantic_overlap" // Topic already covered elsewhere
	ReasonDerivable       SaturationReason = "derivable"        // Answer follows from children
	ReasonActionable      SaturationReason = "actionable"       // Direct, qualifier-free answer
	ReasonHollowQuestions SaturationReason = "hollow_questions" // Question judged low-value
	ReasonBudgetExhausted SaturationReason = "budget_exhausted" // No agent slots remained
	ReasonError           SaturationReason = "error"
)

// Node is one question, answer, or synthesis unit within a graph.
type Node struct {
	ID       string   `json:"id"`
	GraphID  string   `json:"graph_id"`
	ParentID string   `json:"parent_id,omitempty"` // empty only for the root
	Seq      int64    `json:"seq"`                 // per-store monotonic creation order
	Depth    int      `json:"depth"`               // root is 0; always parent depth + 1
	Type     NodeType `json:"type"`

	Text   string     `json:"text"`
	Owner  string     `json:"owner,omitempty"` // worker that produced the node
	Status NodeStatus `json:"status"`

	// Reason is set exactly once, when Status becomes saturated.
	Reason SaturationReason `json:"reason,omitempty"`

	// Metadata is a free-form bag used for convergence/contradiction linkage
	// and synthesis hints.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Answer returns the answer text recorded on a question node, or "" if the
// node has not been answered yet. The scheduler stores each answer in the
// question's metadata so the depth budget is consumed by questions alone.
func (n *Node) Answer() string {
	if n.Metadata == nil {
		return ""
	}
	s, _ := n.Metadata["answer"].(string)
	return s
}

// MetadataJSON marshals the metadata bag for storage. Nil maps store as NULL.
func (n *Node) MetadataJSON() ([]byte, error) {
	if len(n.Metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(n.Metadata)
}

// MetadataPatch is a partial update to a node. Metadata keys merge into the
// existing bag. ConvergenceWith/ContradictionWith create edges as a side
// effect, atomically with the metadata write, via the store's only edge-creating
// path besides the materialized parent_child edge.
type MetadataPatch struct {
	Status NodeStatus       `json:"status,omitempty"`
	Reason SaturationReason `json:"reason,omitempty"`
	Owner  string           `json:"owner,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// ConvergenceWith lists node IDs this node converges with; Insight
	// annotates the resulting edges.
	ConvergenceWith []string `json:"convergence_with,omitempty"`
	Insight         string   `json:"insight,omitempty"`

	// ContradictionWith lists node IDs this node contradicts; Tension
	// annotates the resulting edges.
	ContradictionWith []string `json:"contradiction_with,omitempty"`
	Tension           string   `json:"tension,omitempty"`
}
