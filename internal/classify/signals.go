// Package classify implements the structural-signal rule set that decides
// whether an answer saturates its question inline or branches into
// sub-questions. Every signal is a measurable property of the answer text,
// independently testable; there is no black-box judgment anywhere in the
// decision.
package classify

import (
	"regexp"
	"strings"
)

// Signals holds the measured structural signals for one answer.
type Signals struct {
	// Hedging is true when the answer contains hedging qualifiers
	// ("maybe", "probably", "it depends", ...).
	Hedging bool `json:"hedging"`

	// Alternatives is true when the answer enumerates alternatives
	// (numbered/bulleted options, "either ... or", "alternatively").
	Alternatives bool `json:"alternatives"`

	// Assumptions counts unverifiable assumptions stated in the answer.
	Assumptions int `json:"assumptions"`

	// TopicOverlap is true when the answer's topic already has nodes
	// elsewhere in the graph.
	TopicOverlap bool `json:"topic_overlap"`

	// Hollow is true when the answer declares the question low-value or
	// unanswerable rather than answering it.
	Hollow bool `json:"hollow"`
}

// Fired lists the names of the branch-triggering signals that fired.
func (s Signals) Fired() []string {
	var fired []string
	if s.Hedging {
		fired = append(fired, "hedging")
	}
	if s.Alternatives {
		fired = append(fired, "alternatives")
	}
	if s.Assumptions > 0 {
		fired = append(fired, "assumptions")
	}
	if s.TopicOverlap {
		fired = append(fired, "topic_overlap")
	}
	return fired
}

var hedgingPhrases = []string{
	"maybe", "probably", "perhaps", "possibly", "it depends",
	"hard to say", "unclear", "uncertain", "might be", "could be",
	"not sure", "difficult to determine",
}

var hollowPhrases = []string{
	"not a meaningful question", "cannot be answered", "not applicable",
	"question is too vague", "no answer exists", "trivially",
	"does not need exploring", "nothing to explore",
}

var assumptionPhrases = []string{
	"assuming", "assume that", "if we suppose", "provided that",
	"presumably", "under the assumption", "on the premise",
}

var (
	// Numbered or bulleted list items: "1. ...", "2) ...", "- ...", "* ...".
	listItemRe = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+\S`)

	// "either X or Y" style alternative phrasing.
	eitherOrRe = regexp.MustCompile(`(?i)\beither\b.{1,80}\bor\b`)
)

// DetectHedging reports whether the text contains hedging qualifiers.
func DetectHedging(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range hedgingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DetectAlternatives reports whether the text enumerates alternatives.
func DetectAlternatives(text string) bool {
	if len(listItemRe.FindAllStringIndex(text, 2)) >= 2 {
		return true
	}
	if eitherOrRe.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "alternatively") ||
		strings.Contains(lower, "on the other hand")
}

// CountAssumptions counts unverifiable assumptions stated in the text.
func CountAssumptions(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, p := range assumptionPhrases {
		count += strings.Count(lower, p)
	}
	return count
}

// DetectHollow reports whether the answer declares the question low-value.
func DetectHollow(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range hollowPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DetectTopicOverlap reports whether the text's keyword set overlaps any of
// the existing texts above the given threshold (Jaccard over keyword sets).
func DetectTopicOverlap(text string, existing []string, threshold float64) bool {
	kw := Keywords(text)
	if len(kw) == 0 {
		return false
	}
	for _, other := range existing {
		if jaccard(kw, Keywords(other)) >= threshold {
			return true
		}
	}
	return false
}

var commonWords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"the": true, "this": true, "that": true, "about": true, "with": true,
	"from": true, "have": true, "does": true, "tell": true, "explain": true,
	"which": true, "would": true, "should": true, "could": true, "there": true,
	"their": true, "been": true, "will": true, "because": true, "into": true,
}

// Keywords extracts the significant lowercase words of a text: length >= 4,
// punctuation stripped, stopwords removed.
func Keywords(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	kw := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) >= 4 && !commonWords[w] {
			kw[w] = true
		}
	}
	return kw
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
