package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

// Gemini talks to the Google Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	visionModel string
	timeout     time.Duration
}

// NewGemini returns an unconfigured provider when apiKey is empty; calls then fail as Fatal.
func NewGemini(ctx context.Context, apiKey, model, visionModel string) (*Gemini, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if visionModel == "" {
		visionModel = model
	}
	g := &Gemini{model: model, visionModel: visionModel, timeout: 2 * time.Minute}
	if apiKey == "" {
		return g, nil
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = c
	return g, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", Classify(ErrNotConfigured)
	}
	return g.generate(ctx, g.model, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
}

func (g *Gemini) ReadImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	if g.client == nil {
		return "", Classify(ErrNotConfigured)
	}
	return g.generate(ctx, g.visionModel, []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			},
		},
	})
}

func (g *Gemini) generate(ctx context.Context, model string, contents []*genai.Content) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", Classify(err)
	}
	if res == nil {
		return "", Classify(ErrEmptyCompletion)
	}
	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return "", Classify(ErrEmptyCompletion)
	}
	return text, nil
}
