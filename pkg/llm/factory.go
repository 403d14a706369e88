package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
)

// NewClient creates a Client from model configuration. The generation and
// judgment capabilities are built through the same factory; only their
// config blocks differ.
func NewClient(mc config.ModelConfig, logger *zap.Logger) (Client, error) {
	cfg := Config{
		Provider:    mc.Provider,
		Model:       mc.Name,
		Endpoint:    mc.Endpoint,
		APIKey:      mc.APIKey,
		Temperature: mc.Temperature,
		MaxTokens:   mc.MaxTokens,
	}

	switch mc.Provider {
	case "openai":
		return NewOpenAIClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q", mc.Provider)
	}
}
