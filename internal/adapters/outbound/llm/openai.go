// Package llm adapts an OpenAI-compatible chat completion endpoint to the
// domain.TextGenerator port.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/domain"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY missing")

const systemPrompt = "You are a senior Java engineer refactoring Spring applications so that business " +
	"logic lives in the service layer. You answer with a single JSON object and nothing else."

// OpenAIClient implements domain.TextGenerator.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient builds a client for the configured endpoint and model.
func NewOpenAIClient(cfg domain.GenerationConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = domain.DefaultConfig().Generation.Model
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("text generator configured", zap.String("model", model), zap.String("base_url", oc.BaseURL))
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), model: model, logger: logger}, nil
}

// Generate sends the context and instructions as one user message and returns
// the first choice. The caller owns retries.
func (c *OpenAIClient) Generate(ctx context.Context, contextText, instructions string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: contextText + "\n\n" + instructions},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	c.logger.Debug("chat completion",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}
