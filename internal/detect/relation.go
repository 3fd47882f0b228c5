// Package detect scans sibling and cousin answers for semantic agreement or
// conflict using structural signals: lexical overlap, negation patterns, and
// shared topic keywords with differing conclusions.
//
// The detector never resolves a contradiction by picking a side. It records
// the tension and leaves it open for the synthesis stage; the graph cannot
// complete while any contradiction edge is unresolved.
package detect

import (
	"sort"
	"strings"

	"github.com/rand/fractal/internal/classify"
)

// Relation classifies how two answers relate.
type Relation string

const (
	RelationNone        Relation = "none"
	RelationConverges   Relation = "converges"
	RelationContradicts Relation = "contradicts"
)

// Config tunes the detector. The similarity metric and thresholds are
// configurable policy, not hidden assumptions.
type Config struct {
	// ConvergenceThreshold is the minimum keyword overlap (Jaccard) for two
	// same-conclusion answers to converge (default 0.4).
	ConvergenceThreshold float64 `json:"convergence_threshold" yaml:"convergence_threshold"`

	// TopicThreshold is the minimum keyword overlap for two answers to be
	// considered on the same topic at all (default 0.25).
	TopicThreshold float64 `json:"topic_threshold" yaml:"topic_threshold"`

	// DepthWindow bounds how far apart two questions' shared ancestor may
	// be for their answers to be compared (default 2: siblings and cousins).
	DepthWindow int `json:"depth_window" yaml:"depth_window"`

	// StabilityRuns is how many near-identical successive answers mark a
	// branch as plateaued (default 2).
	StabilityRuns int `json:"stability_runs" yaml:"stability_runs"`
}

// DefaultConfig returns the default detector thresholds.
func DefaultConfig() Config {
	return Config{
		ConvergenceThreshold: 0.4,
		TopicThreshold:       0.25,
		DepthWindow:          2,
		StabilityRuns:        2,
	}
}

var negators = []string{
	"not", "no", "never", "cannot", "can't", "won't", "doesn't",
	"isn't", "aren't", "shouldn't", "don't", "false", "incorrect",
}

// Polarity reports whether a text states a negative conclusion. The check is
// word-based: any standalone negator flips polarity.
func Polarity(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		for _, n := range negators {
			if w == n {
				return false
			}
		}
	}
	return true
}

// Compare classifies the relation between two answer texts.
//
// Shared topic + same conclusion polarity + overlap above the convergence
// threshold -> converges. Shared topic + opposite polarity -> contradicts.
// Anything else -> none.
func Compare(a, b string, cfg Config) Relation {
	kwA, kwB := classify.Keywords(a), classify.Keywords(b)
	overlap := jaccard(kwA, kwB)
	if overlap < cfg.TopicThreshold {
		return RelationNone
	}

	if Polarity(a) != Polarity(b) {
		return RelationContradicts
	}
	if overlap >= cfg.ConvergenceThreshold {
		return RelationConverges
	}
	return RelationNone
}

// SharedTopics returns the sorted keywords two texts have in common, capped
// at limit, for use in insight/tension summaries.
func SharedTopics(a, b string, limit int) []string {
	kwA, kwB := classify.Keywords(a), classify.Keywords(b)
	var shared []string
	for w := range kwA {
		if kwB[w] {
			shared = append(shared, w)
		}
	}
	sort.Strings(shared)
	if len(shared) > limit {
		shared = shared[:limit]
	}
	return shared
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
