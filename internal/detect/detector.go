package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/rand/fractal/internal/graph"
)

// Detector scans a newly-answered question against sibling and cousin
// answers within the same graph. It mutates the graph only through
// UpdateNode metadata patches, the store's sole edge-creating path, so the
// metadata annotation and the edge commit atomically.
type Detector struct {
	store *graph.Store
	cfg   Config
}

// NewDetector creates a detector over the given store.
func NewDetector(store *graph.Store, cfg Config) *Detector {
	if cfg.DepthWindow <= 0 {
		cfg.DepthWindow = DefaultConfig().DepthWindow
	}
	return &Detector{store: store, cfg: cfg}
}

// Outcome summarizes one scan. Insights and Tensions are index-aligned with
// ConvergedWith and ContradictedWith: each detail was computed for its pair.
type Outcome struct {
	ConvergedWith    []string `json:"converged_with,omitempty"`
	ContradictedWith []string `json:"contradicted_with,omitempty"`
	Insights         []string `json:"insights,omitempty"`
	Tensions         []string `json:"tensions,omitempty"`
}

// Found reports whether the scan detected any relation.
func (o *Outcome) Found() bool {
	return len(o.ConvergedWith) > 0 || len(o.ContradictedWith) > 0
}

// ScanNode compares one answered question node against its relatives and
// applies the detected relations via UpdateNode. Each pair of nodes yields
// exactly one relation: converges, contradicts, or none. One patch is applied
// per matched relative, so every edge carries the detail computed for its
// own pair.
func (d *Detector) ScanNode(ctx context.Context, graphID, nodeID string) (*Outcome, error) {
	snap, err := d.store.Snapshot(ctx, graphID)
	if err != nil {
		return nil, err
	}

	node := snap.Node(nodeID)
	if node == nil {
		return nil, &graph.ErrNotFound{Entity: "node", ID: nodeID}
	}
	answered := node.Answer()
	if node.Type != graph.NodeQuestion || answered == "" {
		return &Outcome{}, nil
	}

	outcome := &Outcome{}
	for _, other := range d.relatives(snap, node) {
		switch Compare(answered, other.Answer(), d.cfg) {
		case RelationConverges:
			insight := insightText(answered, other.Answer())
			if _, err := d.store.UpdateNode(ctx, graphID, nodeID, graph.MetadataPatch{
				ConvergenceWith: []string{other.ID},
				Insight:         insight,
			}); err != nil {
				return nil, fmt.Errorf("apply convergence patch: %w", err)
			}
			outcome.ConvergedWith = append(outcome.ConvergedWith, other.ID)
			outcome.Insights = append(outcome.Insights, insight)
		case RelationContradicts:
			tension := tensionText(answered, other.Answer())
			if _, err := d.store.UpdateNode(ctx, graphID, nodeID, graph.MetadataPatch{
				ContradictionWith: []string{other.ID},
				Tension:           tension,
			}); err != nil {
				return nil, fmt.Errorf("apply contradiction patch: %w", err)
			}
			outcome.ContradictedWith = append(outcome.ContradictedWith, other.ID)
			outcome.Tensions = append(outcome.Tensions, tension)
		}
	}
	return outcome, nil
}

// relatives returns the answered question nodes sharing an ancestor with the
// node within the depth window: siblings share a parent, cousins a
// grandparent, and so on up to the window.
func (d *Detector) relatives(snap *graph.Snapshot, node *graph.Node) []*graph.Node {
	mine := ancestorsWithin(snap, node, d.cfg.DepthWindow)
	if len(mine) == 0 {
		return nil
	}

	var out []*graph.Node
	for _, other := range snap.Nodes {
		if other.ID == node.ID || other.Type != graph.NodeQuestion || other.Answer() == "" {
			continue
		}
		for anc := range ancestorsWithin(snap, other, d.cfg.DepthWindow) {
			if mine[anc] {
				out = append(out, other)
				break
			}
		}
	}
	return out
}

// ancestorsWithin collects the node's ancestor IDs up to window hops.
func ancestorsWithin(snap *graph.Snapshot, node *graph.Node, window int) map[string]bool {
	set := make(map[string]bool)
	id := node.ID
	for hop := 0; hop < window; hop++ {
		n := snap.Node(id)
		if n == nil || n.ParentID == "" {
			break
		}
		set[n.ParentID] = true
		id = n.ParentID
	}
	return set
}

func insightText(a, b string) string {
	topics := SharedTopics(a, b, 5)
	if len(topics) == 0 {
		return "independent branches reached compatible conclusions"
	}
	return "compatible conclusions on: " + strings.Join(topics, ", ")
}

func tensionText(a, b string) string {
	topics := SharedTopics(a, b, 5)
	if len(topics) == 0 {
		return "branches reached opposite conclusions"
	}
	return "conflicting conclusions on: " + strings.Join(topics, ", ")
}
