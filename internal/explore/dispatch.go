package explore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rand/fractal/internal/graph"
)

// dispatchResult carries one worker's outcome back to the scheduler.
type dispatchResult struct {
	Question *graph.Node
	Answer   string
	Retries  int
	Err      error
}

// dispatch runs the batch concurrently and returns results in batch order.
// Workers only read (the ancestor chain) and call the answering capability;
// every graph write stays in the scheduler goroutine.
func (e *Engine) dispatch(ctx context.Context, batch []*graph.Node) []dispatchResult {
	results := make([]dispatchResult, len(batch))

	var eg errgroup.Group
	limit := e.cfg.MaxParallel
	if limit <= 0 {
		limit = len(batch)
	}
	eg.SetLimit(limit)

	for i, q := range batch {
		eg.Go(func() error {
			results[i] = e.work(ctx, q)
			return nil
		})
	}
	eg.Wait()

	return results
}

// work answers one question, retrying once on failure. Failures are contained:
// the error lands in the result and only that node is affected.
func (e *Engine) work(ctx context.Context, q *graph.Node) dispatchResult {
	res := dispatchResult{Question: q}

	ancestors, err := e.store.AncestorTexts(ctx, q.ID)
	if err != nil {
		res.Err = err
		return res
	}

	res.Answer, err = e.ask(ctx, q.Text, ancestors)
	if err == nil {
		return res
	}

	slog.Debug("dispatch retrying", "node", q.ID, "error", err)
	select {
	case <-ctx.Done():
		res.Err = ctx.Err()
		return res
	case <-time.After(e.cfg.RetryDelay):
	}

	res.Retries = 1
	res.Answer, err = e.ask(ctx, q.Text, ancestors)
	if err != nil {
		res.Err = fmt.Errorf("dispatch failed after retry: %w", err)
	}
	return res
}

func (e *Engine) ask(ctx context.Context, question string, ancestors []string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
	defer cancel()
	return e.answerer.Answer(callCtx, question, ancestors)
}
