// Package llm talks to hosted generative-text APIs.
package llm

import (
	"context"
	"fmt"
	"strings"

	"answergen/internal/config"
)

// Provider is a generative API that can answer text prompts and read images.
// Implementations return errors as *GenerationError.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
	ReadImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)
}

// New builds the provider selected by cfg.
func New(ctx context.Context, cfg config.Config) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint, cfg.VisionModel()), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.VisionModel())
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// StripCodeFences removes a wrapping ``` fence that some models put around the whole reply.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	// Only unwrap when the fence is the outermost and only one.
	if strings.Contains(inner, "```") {
		return s
	}
	if nl := strings.Index(inner, "\n"); nl != -1 {
		first := strings.TrimSpace(inner[:nl])
		if first == "" || first == "markdown" || first == "md" || first == "text" {
			inner = inner[nl+1:]
		} else {
			return s
		}
	}
	return strings.TrimSpace(inner)
}
