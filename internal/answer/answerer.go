// Package answer defines the contract with the external answering capability
// and provides an OpenRouter-backed client plus a scripted client for tests
// and offline playback.
//
// The engine treats the capability as opaque: possibly slow, possibly
// failing, no assumptions about its internal reasoning.
package answer

import (
	"context"
	"strconv"
	"strings"
)

// Answerer is the external answering capability: submit a question with its
// ancestor context, receive a text answer.
type Answerer interface {
	Answer(ctx context.Context, question string, ancestors []string) (string, error)
}

// AnswerFunc adapts a function to the Answerer interface.
type AnswerFunc func(ctx context.Context, question string, ancestors []string) (string, error)

// Answer implements Answerer.
func (f AnswerFunc) Answer(ctx context.Context, question string, ancestors []string) (string, error) {
	return f(ctx, question, ancestors)
}

// BuildPrompt renders a question and its ancestor chain into a single prompt.
// Workers receive only the ancestor chain, never the whole graph.
func BuildPrompt(question string, ancestors []string) string {
	if len(ancestors) == 0 {
		return question
	}

	var sb strings.Builder
	sb.WriteString("Context, from the original question down to the current branch:\n")
	for _, a := range ancestors {
		sb.WriteString("- ")
		sb.WriteString(a)
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

// DecomposePrompt asks the capability to break a hedged or multi-claim answer
// into independently explorable sub-questions.
func DecomposePrompt(question, priorAnswer string, max int) string {
	var sb strings.Builder
	sb.WriteString("The question below received an answer with open threads. ")
	sb.WriteString("List the distinct sub-questions (at most ")
	sb.WriteString(strconv.Itoa(max))
	sb.WriteString(") that must be answered to settle it. ")
	sb.WriteString("One per line, numbered.\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer so far: ")
	sb.WriteString(priorAnswer)
	return sb.String()
}
