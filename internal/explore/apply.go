package explore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rand/fractal/internal/answer"
	"github.com/rand/fractal/internal/classify"
	"github.com/rand/fractal/internal/graph"
)

// apply processes one answered question: record the answer, classify it, and
// either saturate the question or expand it into sub-questions. Runs in the
// scheduler goroutine; it is the only caller mutating the graph here.
func (e *Engine) apply(ctx context.Context, res *Result, g *graph.Graph, q *graph.Node, answerText string) error {
	existing, err := e.otherTexts(ctx, g.ID, q)
	if err != nil {
		return err
	}

	decision := classify.Classify(answerText, existing, e.cfg.Classifier)

	// Stability is tracked per branch: if the branch's answers stopped
	// changing, the topic is exhausted regardless of what the classifier says.
	branchKey := q.ParentID
	if branchKey == "" {
		branchKey = q.ID
	}
	plateau := e.stability.Observe(branchKey, answerText)

	md := map[string]any{
		"answer":  answerText,
		"route":   string(decision.Route),
		"signals": decision.Signals,
	}

	saturate := func(reason graph.SaturationReason) error {
		_, err := e.store.UpdateNode(ctx, g.ID, q.ID, graph.MetadataPatch{
			Status:   graph.NodeSaturated,
			Reason:   reason,
			Metadata: md,
		})
		return err
	}

	if decision.Route == classify.RouteInline {
		return saturate(decision.Reason)
	}
	if plateau {
		md["plateau"] = true
		return saturate(graph.ReasonSemanticOverlap)
	}

	if err := e.tracker.RecordDepth(ctx, g.ID, q.Depth+1); err != nil {
		if errors.Is(err, graph.ErrDepthExceeded) {
			res.BudgetHits++
			return saturate(graph.ReasonBudgetExhausted)
		}
		return err
	}

	subs := e.subQuestions(ctx, q, answerText)
	if len(subs) == 0 {
		// Branch-worthy by signal but nothing decomposable: the answer
		// stands on its own.
		return saturate(graph.ReasonActionable)
	}

	for _, sub := range subs {
		child, err := e.store.AddNode(ctx, g.ID, q.ID, graph.NodeQuestion, sub)
		if errors.Is(err, graph.ErrDepthExceeded) {
			res.BudgetHits++
			break
		}
		if err != nil {
			return err
		}
		res.NewQuestions++
		slog.Debug("sub-question created", "graph", g.ID, "parent", q.ID,
			"node", child.ID, "depth", child.Depth)
	}

	return saturate(graph.ReasonDerivable)
}

// subQuestions asks the capability to decompose the answer; on failure it
// falls back to extracting enumerated questions from the answer text itself.
func (e *Engine) subQuestions(ctx context.Context, q *graph.Node, answerText string) []string {
	max := e.cfg.Classifier.MaxSubQuestions
	if max <= 0 {
		max = classify.DefaultConfig().MaxSubQuestions
	}

	prompt := answer.DecomposePrompt(q.Text, answerText, max)
	reply, err := e.ask(ctx, prompt, nil)
	if err == nil {
		if subs := classify.ExtractQuestions(reply, max); len(subs) > 0 {
			return subs
		}
	} else {
		slog.Debug("decomposition call failed, extracting from answer",
			"node", q.ID, "error", err)
	}
	return classify.ExtractQuestions(answerText, max)
}

// otherTexts collects the texts and answers of the graph's other question
// nodes, excluding the node itself and its ancestor chain. Ancestors share
// vocabulary with their descendants by construction, so they would make the
// topic-overlap signal fire on every child.
func (e *Engine) otherTexts(ctx context.Context, graphID string, q *graph.Node) ([]string, error) {
	snap, err := e.store.Snapshot(ctx, graphID)
	if err != nil {
		return nil, err
	}

	skip := map[string]bool{q.ID: true}
	for id := q.ParentID; id != ""; {
		skip[id] = true
		n := snap.Node(id)
		if n == nil {
			break
		}
		id = n.ParentID
	}

	var texts []string
	for _, n := range snap.Nodes {
		if skip[n.ID] || n.Type != graph.NodeQuestion {
			continue
		}
		texts = append(texts, n.Text)
		if ans := n.Answer(); ans != "" {
			texts = append(texts, ans)
		}
	}
	return texts, nil
}
