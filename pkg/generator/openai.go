// Package generator produces answers from a question and retrieved context.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/perbu/omniquery/internal/logging"
	"github.com/perbu/omniquery/pkg/imagedesc"
)

// Generator answers a question from assembled context and image descriptions.
type Generator interface {
	Generate(ctx context.Context, question, contextText string, images []imagedesc.Image) (string, error)
}

// Ensure OpenAIGenerator implements the interface.
var _ Generator = (*OpenAIGenerator)(nil)

// Defaults for OpenAIConfig.
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.7
)

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Logger      *zap.Logger
}

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIGenerator creates a generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logging.OrNop(cfg.Logger),
	}, nil
}

// Generate sends the system prompt and a user turn carrying the question,
// context and image list, and returns the model's reply.
func (g *OpenAIGenerator) Generate(ctx context.Context, question, contextText string, images []imagedesc.Image) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserMessage(question, contextText, images)},
		},
		Temperature: g.temperature,
	}
	if g.maxTokens > 0 {
		req.MaxTokens = g.maxTokens
	}

	g.logger.Debug("requesting completion",
		zap.String("model", g.model),
		zap.Int("context_bytes", len(contextText)),
		zap.Int("images", len(images)))

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no response choices returned")
	}

	g.logger.Debug("completion received",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return resp.Choices[0].Message.Content, nil
}
