package classify

import (
	"github.com/rand/fractal/internal/graph"
)

// Route is the classification outcome for an answered question.
type Route string

const (
	// RouteInline saturates the question immediately: the answer is a short,
	// qualifier-free, single-claim response.
	RouteInline Route = "inline"

	// RouteBranch generates sub-questions: at least one structural signal
	// fired.
	RouteBranch Route = "branch"
)

// Config tunes the classifier thresholds. All values are policy, not
// hidden assumptions.
type Config struct {
	// OverlapThreshold is the minimum keyword Jaccard similarity for the
	// topic-overlap signal (default 0.5).
	OverlapThreshold float64 `json:"overlap_threshold" yaml:"overlap_threshold"`

	// MaxInlineLength is the maximum answer length (runes) still considered
	// a short single-claim answer (default 400).
	MaxInlineLength int `json:"max_inline_length" yaml:"max_inline_length"`

	// MaxSubQuestions caps the children generated per branch (default 3).
	MaxSubQuestions int `json:"max_sub_questions" yaml:"max_sub_questions"`
}

// DefaultConfig returns the default classifier thresholds.
func DefaultConfig() Config {
	return Config{
		OverlapThreshold: 0.5,
		MaxInlineLength:  400,
		MaxSubQuestions:  3,
	}
}

// Decision is the outcome of classifying one answer.
type Decision struct {
	Route   Route
	Signals Signals

	// Reason is the saturation reason to record on the question node when
	// the route is inline (actionable or hollow_questions), or derivable
	// when branching completes.
	Reason graph.SaturationReason
}

// Classify measures the structural signals of an answer and decides
// inline vs. branch. existingTexts are the texts of other nodes already in
// the graph, used for the topic-overlap signal.
//
// Any signal firing routes to branch; a short, qualifier-free, single-claim
// answer routes to inline with reason actionable. A hollow answer routes to
// inline with reason hollow_questions regardless of other signals: there is
// nothing worth expanding under a question declared low-value.
func Classify(answer string, existingTexts []string, cfg Config) Decision {
	sig := Signals{
		Hedging:      DetectHedging(answer),
		Alternatives: DetectAlternatives(answer),
		Assumptions:  CountAssumptions(answer),
		TopicOverlap: DetectTopicOverlap(answer, existingTexts, cfg.OverlapThreshold),
		Hollow:       DetectHollow(answer),
	}

	if sig.Hollow {
		return Decision{Route: RouteInline, Signals: sig, Reason: graph.ReasonHollowQuestions}
	}

	if sig.Hedging || sig.Alternatives || sig.Assumptions > 0 || sig.TopicOverlap {
		return Decision{Route: RouteBranch, Signals: sig, Reason: graph.ReasonDerivable}
	}

	if len([]rune(answer)) <= cfg.MaxInlineLength {
		return Decision{Route: RouteInline, Signals: sig, Reason: graph.ReasonActionable}
	}

	// Long but unhedged: treat as branch-worthy, the length suggests the
	// question packs several claims.
	return Decision{Route: RouteBranch, Signals: sig, Reason: graph.ReasonDerivable}
}
