// Package graph provides the SQLite-backed store for exploration graphs.
//
// The store is the only shared mutable state in the engine: every component
// reads and writes through it, so a crash resumes losslessly from the last
// durable write. Nodes are append-only; edges are created either when a node
// is added (the materialized parent_child edge) or as a side effect of
// UpdateNode metadata patches, never independently.
package graph

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the exploration graph database.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Options configures the graph store.
type Options struct {
	// Path to the SQLite database file.
	// If empty, uses an in-memory database.
	Path string

	// CreateIfNotExists creates the database directory if it doesn't exist.
	CreateIfNotExists bool
}

// NewStore creates a new graph store with the given options.
func NewStore(opts Options) (*Store, error) {
	var dsn string

	if opts.Path == "" {
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(ON)"
	} else {
		if opts.CreateIfNotExists {
			dir := filepath.Dir(opts.Path)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = "file:" + opts.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, path: opts.Path}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateGraphParams holds the fields fixed at graph creation.
type CreateGraphParams struct {
	Seed           string
	Intensity      Intensity
	CheckpointMode CheckpointMode
	CheckpointArg  int
	MaxAgents      int
	MaxDepth       int
}

// CreateGraph creates a new graph in the active status. The root question node
// is added separately by the scheduler via AddNode.
func (s *Store) CreateGraph(ctx context.Context, p CreateGraphParams) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !p.Intensity.Valid() {
		return nil, fmt.Errorf("unknown intensity: %q", p.Intensity)
	}
	if p.MaxAgents <= 0 || p.MaxDepth <= 0 {
		return nil, fmt.Errorf("budget not set: max_agents=%d max_depth=%d", p.MaxAgents, p.MaxDepth)
	}

	now := time.Now().UTC()
	g := &Graph{
		ID:             uuid.New().String(),
		Seed:           p.Seed,
		Intensity:      p.Intensity,
		CheckpointMode: p.CheckpointMode,
		CheckpointArg:  p.CheckpointArg,
		Status:         StatusActive,
		MaxAgents:      p.MaxAgents,
		MaxDepth:       p.MaxDepth,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graphs (id, seed, intensity, checkpoint_mode, checkpoint_arg,
		                    status, max_agents, max_depth, agents_spawned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, g.ID, g.Seed, g.Intensity, g.CheckpointMode, g.CheckpointArg,
		g.Status, g.MaxAgents, g.MaxDepth, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert graph: %w", err)
	}

	return g, nil
}

// GetGraph retrieves a graph header by ID.
func (s *Store) GetGraph(ctx context.Context, graphID string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getGraph(ctx, s.db, graphID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) getGraph(ctx context.Context, q querier, graphID string) (*Graph, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, seed, intensity, checkpoint_mode, checkpoint_arg,
		       status, max_agents, max_depth, agents_spawned, created_at, updated_at
		FROM graphs WHERE id = ?
	`, graphID)

	var g Graph
	err := row.Scan(&g.ID, &g.Seed, &g.Intensity, &g.CheckpointMode, &g.CheckpointArg,
		&g.Status, &g.MaxAgents, &g.MaxDepth, &g.AgentsSpawned, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "graph", ID: graphID}
	}
	if err != nil {
		return nil, fmt.Errorf("scan graph: %w", err)
	}
	return &g, nil
}

// ListGraphs returns all graph headers, newest first.
func (s *Store) ListGraphs(ctx context.Context) ([]*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seed, intensity, checkpoint_mode, checkpoint_arg,
		       status, max_agents, max_depth, agents_spawned, created_at, updated_at
		FROM graphs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query graphs: %w", err)
	}
	defer rows.Close()

	var graphs []*Graph
	for rows.Next() {
		var g Graph
		err := rows.Scan(&g.ID, &g.Seed, &g.Intensity, &g.CheckpointMode, &g.CheckpointArg,
			&g.Status, &g.MaxAgents, &g.MaxDepth, &g.AgentsSpawned, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		graphs = append(graphs, &g)
	}
	return graphs, rows.Err()
}

// ReserveAgent atomically claims one agent slot on an active graph. The
// check-and-increment is a single conditional UPDATE, so two callers racing
// for the last slot see exactly one success and one ErrBudgetExceeded.
func (s *Store) ReserveAgent(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE graphs SET agents_spawned = agents_spawned + 1, updated_at = ?
		WHERE id = ? AND status = 'active' AND agents_spawned < max_agents
	`, time.Now().UTC(), graphID)
	if err != nil {
		return fmt.Errorf("reserve agent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Reservation failed; distinguish why.
	g, err := s.getGraph(ctx, s.db, graphID)
	if err != nil {
		return err
	}
	if g.Status.Terminal() {
		return &ErrInvalidTransition{Entity: "graph", From: string(g.Status), To: string(StatusActive),
			Why: "cannot reserve agents on a terminal graph"}
	}
	return ErrBudgetExceeded
}

// UpdateGraphStatus transitions a graph to a new status. Transitions are
// monotonic: only active graphs may move, and only to a terminal status.
// Completion additionally requires every contradiction edge to be resolved
// or flagged.
func (s *Store) UpdateGraphStatus(ctx context.Context, graphID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	g, err := s.getGraph(ctx, tx, graphID)
	if err != nil {
		return err
	}

	if g.Status == status {
		return tx.Commit() // idempotent
	}
	if g.Status.Terminal() {
		return &ErrInvalidTransition{Entity: "graph", From: string(g.Status), To: string(status)}
	}
	if !status.Terminal() {
		return &ErrInvalidTransition{Entity: "graph", From: string(g.Status), To: string(status),
			Why: "graphs only transition to terminal statuses"}
	}

	if status == StatusCompleted {
		var unresolved int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM edges
			WHERE graph_id = ? AND kind = 'contradiction' AND resolution = 'open'
		`, graphID).Scan(&unresolved)
		if err != nil {
			return fmt.Errorf("count unresolved contradictions: %w", err)
		}
		if unresolved > 0 {
			return &ErrInvalidTransition{Entity: "graph", From: string(g.Status), To: string(status),
				Why: fmt.Sprintf("%d unresolved contradiction(s)", unresolved)}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE graphs SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), graphID)
	if err != nil {
		return fmt.Errorf("update graph status: %w", err)
	}

	return tx.Commit()
}

// DeleteGraph removes a graph and all of its nodes and edges.
func (s *Store) DeleteGraph(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM graphs WHERE id = ?", graphID)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &ErrNotFound{Entity: "graph", ID: graphID}
	}
	return nil
}
