package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const edgeColumns = `
	SELECT id, graph_id, kind, source_id, target_id, detail, resolution, created_at
`

// Convergences returns the graph's convergence edges in creation order.
func (s *Store) Convergences(ctx context.Context, graphID string) ([]*Edge, error) {
	return s.edgesByKind(ctx, graphID, EdgeConvergence)
}

// Contradictions returns the graph's contradiction edges in creation order.
func (s *Store) Contradictions(ctx context.Context, graphID string) ([]*Edge, error) {
	return s.edgesByKind(ctx, graphID, EdgeContradiction)
}

func (s *Store) edgesByKind(ctx context.Context, graphID string, kind EdgeKind) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getGraph(ctx, s.db, graphID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, edgeColumns+`
		FROM edges WHERE graph_id = ? AND kind = ? ORDER BY created_at, id
	`, graphID, kind)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// ResolveContradiction records the resolution outcome on a contradiction edge.
// Contradictions are never resolved automatically: the synthesis stage calls
// this to mark an edge resolved or flagged before the graph can complete.
func (s *Store) ResolveContradiction(ctx context.Context, graphID, edgeID string, resolution ResolutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resolution != ResolutionResolved && resolution != ResolutionFlagged {
		return fmt.Errorf("invalid resolution: %q", resolution)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE edges SET resolution = ?
		WHERE id = ? AND graph_id = ? AND kind = 'contradiction'
	`, resolution, edgeID, graphID)
	if err != nil {
		return fmt.Errorf("resolve contradiction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &ErrNotFound{Entity: "contradiction edge", ID: edgeID}
	}
	return nil
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var edges []*Edge
	for rows.Next() {
		edge, err := scanEdgeFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func scanEdgeFields(sc rowScanner) (*Edge, error) {
	var e Edge
	var detail, resolution sql.NullString
	var createdAt time.Time

	err := sc.Scan(&e.ID, &e.GraphID, &e.Kind, &e.SourceID, &e.TargetID,
		&detail, &resolution, &createdAt)
	if err != nil {
		return nil, err
	}

	e.Detail = detail.String
	e.Resolution = ResolutionStatus(resolution.String)
	e.CreatedAt = createdAt
	return &e, nil
}
