package answer

import (
	"context"
	"fmt"
	"os"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/openrouter"
)

// OpenRouterConfig configures the OpenRouter-backed answerer.
type OpenRouterConfig struct {
	// APIKey is the OpenRouter API key. Falls back to OPENROUTER_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the model used for exploration answers.
	Model string `yaml:"model"`

	// FallbackModel is used when the primary model is unavailable.
	FallbackModel string `yaml:"fallback_model"`

	// MaxOutputTokens bounds each answer (default 1024).
	MaxOutputTokens int64 `yaml:"max_output_tokens"`
}

// OpenRouterAnswerer implements Answerer against the OpenRouter API.
type OpenRouterAnswerer struct {
	provider  fantasy.Provider
	model     string
	fallback  string
	maxTokens int64
}

// NewOpenRouterAnswerer creates an OpenRouter-backed answerer.
func NewOpenRouterAnswerer(cfg OpenRouterConfig) (*OpenRouterAnswerer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key not provided (set OPENROUTER_API_KEY)")
	}

	provider, err := openrouter.New(openrouter.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create OpenRouter provider: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "anthropic/claude-sonnet-4.5"
	}
	fallback := cfg.FallbackModel
	if fallback == "" {
		fallback = "anthropic/claude-haiku-4.5"
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &OpenRouterAnswerer{
		provider:  provider,
		model:     model,
		fallback:  fallback,
		maxTokens: maxTokens,
	}, nil
}

// Answer implements Answerer.
func (a *OpenRouterAnswerer) Answer(ctx context.Context, question string, ancestors []string) (string, error) {
	prompt := BuildPrompt(question, ancestors)

	lm, err := a.provider.LanguageModel(ctx, a.model)
	if err != nil {
		lm, err = a.provider.LanguageModel(ctx, a.fallback)
		if err != nil {
			return "", fmt.Errorf("get language model: %w", err)
		}
	}

	maxTokens := a.maxTokens
	call := fantasy.Call{
		Prompt:          fantasy.Prompt{fantasy.NewUserMessage(prompt)},
		MaxOutputTokens: &maxTokens,
	}

	resp, err := lm.Generate(ctx, call)
	if err != nil {
		return "", fmt.Errorf("openrouter generate: %w", err)
	}

	text := resp.Content.Text()
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}
