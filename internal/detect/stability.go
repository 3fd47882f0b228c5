package detect

import (
	"strings"
	"sync"
)

// StabilityTracker watches successive answers per branch and reports when a
// branch plateaus: the last N normalized answers are identical, meaning
// further expansion only restates what the graph already holds. The scheduler
// turns a plateau into a semantic_overlap saturation.
type StabilityTracker struct {
	mu      sync.Mutex
	answers map[string][]string // branch root node ID -> normalized answers
	runs    int
}

// NewStabilityTracker creates a tracker requiring runs identical answers.
func NewStabilityTracker(runs int) *StabilityTracker {
	if runs < 2 {
		runs = 2
	}
	return &StabilityTracker{
		answers: make(map[string][]string),
		runs:    runs,
	}
}

// Observe records an answer for a branch and reports whether the branch has
// plateaued.
func (t *StabilityTracker) Observe(branchID, answer string) bool {
	norm := normalizeAnswer(answer)
	if norm == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.answers[branchID] = append(t.answers[branchID], norm)
	history := t.answers[branchID]
	if len(history) < t.runs {
		return false
	}

	recent := history[len(history)-t.runs:]
	first := recent[0]
	for _, s := range recent[1:] {
		if s != first {
			return false
		}
	}
	return true
}

// Forget drops tracked history for a branch.
func (t *StabilityTracker) Forget(branchID string) {
	t.mu.Lock()
	delete(t.answers, branchID)
	t.mu.Unlock()
}

// normalizeAnswer normalizes an answer for comparison: trimmed, newline
// normalized, truncated so huge outputs compare on their head.
func normalizeAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ToLower(s)
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
