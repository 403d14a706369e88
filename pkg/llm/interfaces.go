// Package llm provides the generation and judgment capabilities behind the
// mapping pipeline: an OpenAI-compatible client, an Anthropic client, and
// the shared plumbing for extracting structured JSON from noisy model
// output.
package llm

import "context"

// GenerateResult carries the model output plus usage accounting.
type GenerateResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ElapsedSeconds   float64
}

// Client is the capability consumed by the orchestrator and the semantic
// evaluator: generate(prompt, config) -> structured response or failure.
// Model selection and sampling parameters are fixed at construction.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// Generate produces a completion for the prompt. systemMessage may be
	// empty when the model is not configured for system instructions.
	Generate(ctx context.Context, prompt string, systemMessage string) (*GenerateResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetProvider returns the provider identifier ("openai", "anthropic").
	GetProvider() string
}
