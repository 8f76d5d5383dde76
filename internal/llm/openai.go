package llm

import (
	"context"
	"encoding/base64"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are an expert academic assistant who writes accurate, well-structured college-level answers."

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	visionModel string
	timeout     time.Duration
}

func NewOpenAI(apiKey, model, apiEndpoint, visionModel string) *OpenAI {
	if apiKey == "" {
		return &OpenAI{model: model, visionModel: visionModel}
	}

	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}
	if visionModel == "" {
		visionModel = model
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		visionModel: visionModel,
		timeout:     2 * time.Minute,
	}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) disabled() bool {
	return p.client == nil || p.model == ""
}

func (p *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if p.disabled() {
		return "", Classify(ErrNotConfigured)
	}
	return p.complete(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   4096,
	})
}

func (p *OpenAI) ReadImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	if p.disabled() {
		return "", Classify(ErrNotConfigured)
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return p.complete(ctx, openai.ChatCompletionRequest{
		Model: p.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURI},
					},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   4096,
	})
}

func (p *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", Classify(ErrEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}
