// Package synthesize combines a halted graph's terminal answers into a single
// synthesis result, surfacing convergence insights and leaving contradictions
// explicitly flagged, never silently resolved.
package synthesize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rand/fractal/internal/answer"
	"github.com/rand/fractal/internal/graph"
)

// BranchResult is one terminal question/answer pair feeding synthesis.
type BranchResult struct {
	NodeID   string                 `json:"node_id"`
	Question string                 `json:"question"`
	Answer   string                 `json:"answer,omitempty"`
	Reason   graph.SaturationReason `json:"reason,omitempty"`
	Failed   bool                   `json:"failed,omitempty"`
}

// Input collects everything the synthesizer sees.
type Input struct {
	Seed           string
	Branches       []BranchResult
	Insights       []string // convergence edge details
	Contradictions []string // unresolved/flagged tension details
}

// Result is the synthesized output.
type Result struct {
	// Text is the combined synthesis, stored as the graph's synthesis node.
	Text string `json:"text"`

	// PartCount is the number of branch results synthesized.
	PartCount int `json:"part_count"`

	// OpenTensions is the number of contradictions surfaced for the caller.
	OpenTensions int `json:"open_tensions"`
}

// Synthesizer combines branch results into a unified result.
type Synthesizer interface {
	Synthesize(ctx context.Context, in Input) (*Result, error)
}

// ConcatenateSynthesizer renders the synthesis deterministically, without
// calling the answering capability.
type ConcatenateSynthesizer struct{}

// NewConcatenateSynthesizer creates a concatenation-based synthesizer.
func NewConcatenateSynthesizer() *ConcatenateSynthesizer {
	return &ConcatenateSynthesizer{}
}

// Synthesize implements Synthesizer.
func (s *ConcatenateSynthesizer) Synthesize(ctx context.Context, in Input) (*Result, error) {
	var sb strings.Builder
	parts := 0

	sb.WriteString("Exploration of: ")
	sb.WriteString(in.Seed)
	sb.WriteString("\n")

	for _, b := range in.Branches {
		if b.Failed || b.Answer == "" {
			continue
		}
		sb.WriteString("\nQ: ")
		sb.WriteString(b.Question)
		sb.WriteString("\nA: ")
		sb.WriteString(b.Answer)
		sb.WriteString("\n")
		parts++
	}

	if len(in.Insights) > 0 {
		sb.WriteString("\nConverging findings:\n")
		for _, ins := range in.Insights {
			sb.WriteString("- ")
			sb.WriteString(ins)
			sb.WriteString("\n")
		}
	}

	if len(in.Contradictions) > 0 {
		sb.WriteString("\nUnreconciled tensions (flagged, not resolved):\n")
		for _, t := range in.Contradictions {
			sb.WriteString("- ")
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	}

	return &Result{
		Text:         strings.TrimSpace(sb.String()),
		PartCount:    parts,
		OpenTensions: len(in.Contradictions),
	}, nil
}

// LLMSynthesizer asks the answering capability for a coherent summary,
// falling back to concatenation if the call fails.
type LLMSynthesizer struct {
	answerer answer.Answerer
	fallback *ConcatenateSynthesizer
}

// NewLLMSynthesizer creates an LLM-backed synthesizer.
func NewLLMSynthesizer(a answer.Answerer) *LLMSynthesizer {
	return &LLMSynthesizer{
		answerer: a,
		fallback: NewConcatenateSynthesizer(),
	}
}

// Synthesize implements Synthesizer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, in Input) (*Result, error) {
	base, err := s.fallback.Synthesize(ctx, in)
	if err != nil {
		return nil, err
	}
	if base.PartCount == 0 {
		return base, nil
	}

	prompt := fmt.Sprintf(
		"Synthesize the exploration below into a coherent summary. "+
			"Keep every flagged tension visible; do not pick a side on any of them.\n\n%s",
		base.Text,
	)

	text, err := s.answerer.Answer(ctx, prompt, nil)
	if err != nil || strings.TrimSpace(text) == "" {
		return base, nil
	}

	return &Result{
		Text:         strings.TrimSpace(text),
		PartCount:    base.PartCount,
		OpenTensions: base.OpenTensions,
	}, nil
}
