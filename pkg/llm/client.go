package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds what a client needs to talk to one model.
type Config struct {
	Provider    string  // "openai" or "anthropic"
	Model       string  // model name, e.g. "gpt-4o"
	Endpoint    string  // optional OpenAI-compatible base URL
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// OpenAIClient talks to OpenAI or any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, NewError(ErrorTypeModel, "model is required", false, nil)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger.Named("llm"),
	}, nil
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, systemMessage string) (*GenerateResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: systemMessage,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prompt,
	})

	c.logger.Debug("LLM request",
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", c.cfg.Temperature))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeEmpty, "no choices in response", true, nil)
	}

	choice := resp.Choices[0]
	if err := classifyFinishReason(string(choice.FinishReason), c.cfg.Model); err != nil {
		return nil, err
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, NewError(ErrorTypeEmpty, "empty completion", true, nil)
	}

	elapsed := time.Since(start)
	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResult{
		Content:          choice.Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		ElapsedSeconds:   elapsed.Seconds(),
	}, nil
}

// classifyFinishReason turns a truncated or refused completion into a
// structured error. Both cases are retryable: truncation because a retry
// at a lower temperature sometimes fits, refusal because it is usually
// prompt-order dependent.
func classifyFinishReason(reason, model string) *Error {
	switch strings.ToLower(reason) {
	case "length", "max_tokens":
		e := NewError(ErrorTypeMaxTokens, "completion hit the output token limit", true, nil)
		e.Model = model
		return e
	case "content_filter", "recitation":
		e := NewError(ErrorTypeRecitation, "completion refused by provider filter", true, nil)
		e.Model = model
		return e
	}
	return nil
}

// GetModel implements Client.
func (c *OpenAIClient) GetModel() string { return c.cfg.Model }

// GetProvider implements Client.
func (c *OpenAIClient) GetProvider() string { return "openai" }

// Ensure OpenAIClient implements Client at compile time.
var _ Client = (*OpenAIClient)(nil)
