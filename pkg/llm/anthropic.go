package llm

import (
	"context"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	cfg    Config
	logger *zap.Logger
}

// NewAnthropicClient creates a client for the Anthropic API.
func NewAnthropicClient(cfg Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, NewError(ErrorTypeModel, "model is required", false, nil)
	}
	if cfg.APIKey == "" {
		return nil, NewError(ErrorTypeAuth, "api key is required", false, nil)
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey),
		cfg:    cfg,
		logger: logger.Named("llm"),
	}, nil
}

// Generate implements Client.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, systemMessage string) (*GenerateResult, error) {
	temperature := float32(c.cfg.Temperature)
	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	}
	if systemMessage != "" {
		req.System = systemMessage
	}

	c.logger.Debug("LLM request",
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	if err := classifyFinishReason(string(resp.StopReason), c.cfg.Model); err != nil {
		return nil, err
	}

	content := resp.GetFirstContentText()
	if strings.TrimSpace(content) == "" {
		return nil, NewError(ErrorTypeEmpty, "empty completion", true, nil)
	}

	elapsed := time.Since(start)
	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResult{
		Content:          content,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		ElapsedSeconds:   elapsed.Seconds(),
	}, nil
}

// GetModel implements Client.
func (c *AnthropicClient) GetModel() string { return c.cfg.Model }

// GetProvider implements Client.
func (c *AnthropicClient) GetProvider() string { return "anthropic" }

// Ensure AnthropicClient implements Client at compile time.
var _ Client = (*AnthropicClient)(nil)
