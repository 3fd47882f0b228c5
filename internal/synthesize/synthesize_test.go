package synthesize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/fractal/internal/answer"
	"github.com/rand/fractal/internal/graph"
)

func testInput() Input {
	return Input{
		Seed: "Should we adopt a message queue?",
		Branches: []BranchResult{
			{NodeID: "n1", Question: "Is the workload async?", Answer: "Yes, mostly.", Reason: graph.ReasonActionable},
			{NodeID: "n2", Question: "Can ops run a broker?", Answer: "Yes, with managed Kafka.", Reason: graph.ReasonActionable},
			{NodeID: "n3", Question: "Failed branch", Failed: true},
		},
		Insights:       []string{"both branches recommend a managed broker"},
		Contradictions: []string{"conflicting conclusions on operational cost"},
	}
}

func TestConcatenateSynthesizer(t *testing.T) {
	out, err := NewConcatenateSynthesizer().Synthesize(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 2, out.PartCount) // the failed branch is excluded
	assert.Equal(t, 1, out.OpenTensions)
	assert.Contains(t, out.Text, "Should we adopt a message queue?")
	assert.Contains(t, out.Text, "Q: Is the workload async?")
	assert.Contains(t, out.Text, "A: Yes, mostly.")
	assert.Contains(t, out.Text, "both branches recommend a managed broker")
	assert.Contains(t, out.Text, "conflicting conclusions on operational cost")
	assert.NotContains(t, out.Text, "Failed branch")
}

func TestConcatenateSynthesizerEmpty(t *testing.T) {
	out, err := NewConcatenateSynthesizer().Synthesize(context.Background(), Input{Seed: "seed"})
	require.NoError(t, err)
	assert.Zero(t, out.PartCount)
	assert.Zero(t, out.OpenTensions)
}

func TestLLMSynthesizer(t *testing.T) {
	a := answer.AnswerFunc(func(ctx context.Context, q string, ancestors []string) (string, error) {
		assert.Contains(t, q, "do not pick a side")
		return "Adopt the queue; the cost tension remains flagged.", nil
	})

	out, err := NewLLMSynthesizer(a).Synthesize(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "Adopt the queue; the cost tension remains flagged.", out.Text)
	assert.Equal(t, 2, out.PartCount)
	assert.Equal(t, 1, out.OpenTensions)
}

func TestLLMSynthesizerFallsBack(t *testing.T) {
	a := answer.AnswerFunc(func(ctx context.Context, q string, ancestors []string) (string, error) {
		return "", errors.New("model unavailable")
	})

	out, err := NewLLMSynthesizer(a).Synthesize(context.Background(), testInput())
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Q: Is the workload async?")
}
