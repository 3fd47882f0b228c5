package answer

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedAnswerer plays back canned answers keyed by question text. Used in
// tests and for deterministic offline runs: with a fixed script, repeated
// runs produce the same graph shape.
type ScriptedAnswerer struct {
	mu           sync.Mutex
	script       map[string]string
	fallbackText string
	failures     map[string]int // question -> remaining failures to inject
	calls        []string
}

// NewScripted creates a scripted answerer from a question->answer map.
func NewScripted(script map[string]string) *ScriptedAnswerer {
	return &ScriptedAnswerer{
		script:   script,
		failures: make(map[string]int),
	}
}

// SetFallback sets the answer returned for unscripted questions. Without a
// fallback, unscripted questions fail.
func (s *ScriptedAnswerer) SetFallback(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbackText = text
}

// FailNext makes the next n calls for the given question fail, for exercising
// the dispatch-failure retry path.
func (s *ScriptedAnswerer) FailNext(question string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[question] = n
}

// Calls returns the questions asked so far, in order.
func (s *ScriptedAnswerer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Answer implements Answerer.
func (s *ScriptedAnswerer) Answer(ctx context.Context, question string, ancestors []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, question)

	if n := s.failures[question]; n > 0 {
		s.failures[question] = n - 1
		return "", fmt.Errorf("scripted failure for %q", question)
	}

	if text, ok := s.script[question]; ok {
		return text, nil
	}
	if s.fallbackText != "" {
		return s.fallbackText, nil
	}
	return "", fmt.Errorf("no scripted answer for %q", question)
}
