package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeOption customizes node creation.
type NodeOption func(*Node)

// WithOwner records which exploration worker produced the node.
func WithOwner(owner string) NodeOption {
	return func(n *Node) { n.Owner = owner }
}

// WithMetadata seeds the node's metadata bag.
func WithMetadata(md map[string]any) NodeOption {
	return func(n *Node) { n.Metadata = md }
}

// WithStatus sets the initial status. Answer nodes are created already
// saturated; the reason must accompany a saturated status.
func WithStatus(status NodeStatus, reason SaturationReason) NodeOption {
	return func(n *Node) {
		n.Status = status
		n.Reason = reason
	}
}

// AddNode appends a node to a graph. parentID is empty only for the root.
// The materialized parent_child edge is created in the same transaction.
// Returns ErrDepthExceeded if the node would exceed the graph's max depth;
// no node is created in that case.
func (s *Store) AddNode(ctx context.Context, graphID, parentID string, typ NodeType, text string, opts ...NodeOption) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	g, err := s.getGraph(ctx, tx, graphID)
	if err != nil {
		return nil, err
	}
	if g.Status.Terminal() {
		return nil, &ErrInvalidTransition{Entity: "graph", From: string(g.Status), To: string(g.Status),
			Why: "cannot add nodes to a terminal graph"}
	}

	now := time.Now().UTC()
	node := &Node{
		ID:        uuid.New().String(),
		GraphID:   graphID,
		ParentID:  parentID,
		Type:      typ,
		Text:      text,
		Status:    NodeOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(node)
	}

	if node.Status == NodeSaturated && node.Reason == "" {
		return nil, fmt.Errorf("saturated node requires a reason")
	}

	if parentID == "" {
		var roots int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM nodes WHERE graph_id = ? AND parent_id IS NULL", graphID,
		).Scan(&roots); err != nil {
			return nil, fmt.Errorf("count roots: %w", err)
		}
		if roots > 0 {
			return nil, fmt.Errorf("graph %s already has a root node", graphID)
		}
		node.Depth = 0
	} else {
		parent, err := getNode(ctx, tx, parentID)
		if err != nil {
			return nil, err
		}
		if parent.GraphID != graphID {
			return nil, &ErrNotFound{Entity: "node", ID: parentID}
		}
		node.Depth = parent.Depth + 1
		if node.Depth > g.MaxDepth {
			return nil, ErrDepthExceeded
		}
	}

	if err := tx.QueryRowContext(ctx,
		"UPDATE node_seq SET val = val + 1 WHERE id = 1 RETURNING val",
	).Scan(&node.Seq); err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}

	md, err := node.MetadataJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, graph_id, parent_id, seq, depth, type, text, owner,
		                   status, reason, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.GraphID, nullString(node.ParentID), node.Seq, node.Depth,
		node.Type, node.Text, nullString(node.Owner), node.Status,
		nullString(string(node.Reason)), nullBytes(md), node.CreatedAt, node.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}

	if parentID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges (id, graph_id, kind, source_id, target_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.New().String(), graphID, EdgeParentChild, parentID, node.ID, now)
		if err != nil {
			return nil, fmt.Errorf("insert parent edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return node, nil
}

// GetNode retrieves a node by ID.
func (s *Store) GetNode(ctx context.Context, nodeID string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getNode(ctx, s.db, nodeID)
}

// UpdateNode applies a metadata patch to a node. This is the sole path that
// creates convergence and contradiction edges: the metadata merge and the edge
// inserts commit in one transaction, so no reader ever observes one without
// the other.
//
// Status transitions are validated against the node state machine; terminal
// node statuses (saturated, error) never transition again. A saturation reason
// is recorded exactly once.
func (s *Store) UpdateNode(ctx context.Context, graphID, nodeID string, patch MetadataPatch) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	g, err := s.getGraph(ctx, tx, graphID)
	if err != nil {
		return nil, err
	}
	if g.Status.Terminal() {
		return nil, &ErrInvalidTransition{Entity: "graph", From: string(g.Status), To: string(g.Status),
			Why: "cannot mutate nodes of a terminal graph"}
	}

	node, err := getNode(ctx, tx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.GraphID != graphID {
		return nil, &ErrNotFound{Entity: "node", ID: nodeID}
	}

	if patch.Status != "" && patch.Status != node.Status {
		if node.Status.Terminal() {
			return nil, &ErrInvalidTransition{Entity: "node", From: string(node.Status), To: string(patch.Status)}
		}
		if patch.Status == NodeSaturated && patch.Reason == "" && node.Reason == "" {
			return nil, &ErrInvalidTransition{Entity: "node", From: string(node.Status), To: string(patch.Status),
				Why: "saturation requires a reason"}
		}
		node.Status = patch.Status
	}
	if patch.Reason != "" {
		if node.Reason != "" && node.Reason != patch.Reason {
			return nil, &ErrInvalidTransition{Entity: "node", From: string(node.Status), To: string(node.Status),
				Why: "saturation reason is immutable"}
		}
		node.Reason = patch.Reason
	}
	if patch.Owner != "" {
		node.Owner = patch.Owner
	}

	if len(patch.Metadata) > 0 {
		if node.Metadata == nil {
			node.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			node.Metadata[k] = v
		}
	}

	if len(patch.ConvergenceWith) > 0 {
		linked, err := s.linkEdges(ctx, tx, node, patch.ConvergenceWith, EdgeConvergence, patch.Insight)
		if err != nil {
			return nil, err
		}
		if len(linked) > 0 {
			mergeIDList(node, "convergence_with", linked)
			if patch.Insight != "" {
				node.Metadata["insight"] = patch.Insight
			}
		}
	}
	if len(patch.ContradictionWith) > 0 {
		linked, err := s.linkEdges(ctx, tx, node, patch.ContradictionWith, EdgeContradiction, patch.Tension)
		if err != nil {
			return nil, err
		}
		if len(linked) > 0 {
			mergeIDList(node, "contradiction_with", linked)
			if patch.Tension != "" {
				node.Metadata["tension"] = patch.Tension
			}
		}
	}

	node.UpdatedAt = time.Now().UTC()
	md, err := node.MetadataJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE nodes SET status = ?, reason = ?, owner = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, node.Status, nullString(string(node.Reason)), nullString(node.Owner),
		nullBytes(md), node.UpdatedAt, node.ID)
	if err != nil {
		return nil, fmt.Errorf("update node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return node, nil
}

// linkEdges creates edges of the given kind from node to each target,
// skipping self-links and pairs already linked with the same kind.
// Returns the target IDs actually linked.
func (s *Store) linkEdges(ctx context.Context, tx *sql.Tx, node *Node, targets []string, kind EdgeKind, detail string) ([]string, error) {
	now := time.Now().UTC()
	var linked []string

	for _, targetID := range targets {
		if targetID == node.ID {
			continue
		}
		target, err := getNode(ctx, tx, targetID)
		if err != nil {
			return nil, err
		}
		if target.GraphID != node.GraphID {
			return nil, &ErrNotFound{Entity: "node", ID: targetID}
		}

		var existing int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM edges
			WHERE graph_id = ? AND kind = ?
			  AND ((source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?))
		`, node.GraphID, kind, node.ID, targetID, targetID, node.ID).Scan(&existing)
		if err != nil {
			return nil, fmt.Errorf("check existing edge: %w", err)
		}
		if existing > 0 {
			continue
		}

		var resolution any
		if kind == EdgeContradiction {
			resolution = string(ResolutionOpen)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges (id, graph_id, kind, source_id, target_id, detail, resolution, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.New().String(), node.GraphID, kind, node.ID, targetID,
			nullString(detail), resolution, now)
		if err != nil {
			return nil, fmt.Errorf("insert %s edge: %w", kind, err)
		}
		linked = append(linked, targetID)
	}
	return linked, nil
}

func mergeIDList(node *Node, key string, ids []string) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]any)
	}
	seen := make(map[string]bool)
	var merged []string
	if prev, ok := node.Metadata[key].([]any); ok {
		for _, v := range prev {
			if s, ok := v.(string); ok && !seen[s] {
				seen[s] = true
				merged = append(merged, s)
			}
		}
	} else if prev, ok := node.Metadata[key].([]string); ok {
		for _, s := range prev {
			if !seen[s] {
				seen[s] = true
				merged = append(merged, s)
			}
		}
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	node.Metadata[key] = merged
}

// OpenQuestions returns the graph's open question nodes in creation order.
// The stable ordering keeps repeated runs over recorded answers deterministic.
func (s *Store) OpenQuestions(ctx context.Context, graphID string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getGraph(ctx, s.db, graphID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, nodeColumns+`
		FROM nodes WHERE graph_id = ? AND type = 'question' AND status = 'open'
		ORDER BY seq
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("query open questions: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// AncestorTexts returns the texts of the node's ancestor chain, root first.
// Workers read this as their context instead of the whole graph.
func (s *Store) AncestorTexts(ctx context.Context, nodeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var texts []string
	id := nodeID
	for {
		node, err := getNode(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if node.ParentID == "" {
			break
		}
		parent, err := getNode(ctx, s.db, node.ParentID)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s has missing parent %s", ErrCorrupt, id, node.ParentID)
		}
		texts = append([]string{parent.Text}, texts...)
		id = parent.ID
	}
	return texts, nil
}

const nodeColumns = `
	SELECT id, graph_id, parent_id, seq, depth, type, text, owner,
	       status, reason, metadata, created_at, updated_at
`

func getNode(ctx context.Context, q querier, nodeID string) (*Node, error) {
	row := q.QueryRowContext(ctx, nodeColumns+" FROM nodes WHERE id = ?", nodeID)
	node, err := scanNodeRow(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "node", ID: nodeID}
	}
	return node, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNodeFields(sc rowScanner) (*Node, error) {
	var node Node
	var parentID, owner, reason, metadata sql.NullString

	err := sc.Scan(&node.ID, &node.GraphID, &parentID, &node.Seq, &node.Depth,
		&node.Type, &node.Text, &owner, &node.Status, &reason, &metadata,
		&node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		return nil, err
	}

	node.ParentID = parentID.String
	node.Owner = owner.String
	node.Reason = SaturationReason(reason.String)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &node.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal node metadata: %w", err)
		}
	}
	return &node, nil
}

func scanNodeRow(row *sql.Row) (*Node, error) {
	node, err := scanNodeFields(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}
	return node, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node
	for rows.Next() {
		node, err := scanNodeFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
