package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/llm"
	"github.com/abdidvp/layerfix/internal/domain"
)

func TestNewOpenAIClient_MissingKey(t *testing.T) {
	_, err := llm.NewOpenAIClient(domain.GenerationConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
	assert.EqualError(t, err, "OPENAI_API_KEY missing")
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: `{"relocated_method": "x"}`},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient(domain.GenerationConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "test-model"}, zap.NewNop())
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "the context", "the instructions")
	require.NoError(t, err)
	assert.Equal(t, `{"relocated_method": "x"}`, out)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "the context")
	assert.Contains(t, got.Messages[1].Content, "the instructions")
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient(domain.GenerationConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "c", "i")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion")
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient(domain.GenerationConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "c", "i")
	assert.EqualError(t, err, "chat completion returned no choices")
}
