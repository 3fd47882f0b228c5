package graph

import (
	"context"
	"fmt"
)

// Snapshot returns a consistent view of the whole graph. The reads run in one
// transaction, so the result reflects a state that existed at a single
// instant, never a mix of pre- and post-update fields.
func (s *Store) Snapshot(ctx context.Context, graphID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	g, err := s.getGraph(ctx, tx, graphID)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, nodeColumns+`
		FROM nodes WHERE graph_id = ? ORDER BY seq
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	nodes, err := scanNodes(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, edgeColumns+`
		FROM edges WHERE graph_id = ? ORDER BY created_at, id
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	edges, err := scanEdges(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &Snapshot{Graph: g, Nodes: nodes, Edges: edges}, nil
}

// SaturationCounts summarizes node lifecycle state for one graph.
type SaturationCounts struct {
	Open      int                      `json:"open"`
	Exploring int                      `json:"exploring"`
	Saturated int                      `json:"saturated"`
	Errored   int                      `json:"errored"`
	ByReason  map[SaturationReason]int `json:"by_reason,omitempty"`
}

// SaturationStatus reports per-status and per-reason node counts for the
// graph's question nodes.
func (s *Store) SaturationStatus(ctx context.Context, graphID string) (*SaturationCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getGraph(ctx, s.db, graphID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COALESCE(reason, ''), COUNT(*)
		FROM nodes WHERE graph_id = ? AND type = 'question'
		GROUP BY status, reason
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("query saturation status: %w", err)
	}
	defer rows.Close()

	counts := &SaturationCounts{ByReason: make(map[SaturationReason]int)}
	for rows.Next() {
		var status NodeStatus
		var reason string
		var n int
		if err := rows.Scan(&status, &reason, &n); err != nil {
			return nil, fmt.Errorf("scan saturation row: %w", err)
		}
		switch status {
		case NodeOpen:
			counts.Open += n
		case NodeExploring:
			counts.Exploring += n
		case NodeSaturated:
			counts.Saturated += n
		case NodeError:
			counts.Errored += n
		}
		if reason != "" {
			counts.ByReason[SaturationReason(reason)] += n
		}
	}
	return counts, rows.Err()
}
