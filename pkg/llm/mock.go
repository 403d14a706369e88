package llm

import "context"

// MockClient is a configurable mock for testing callers of the generation
// and judgment capabilities. Set GenerateFunc to control behavior.
type MockClient struct {
	// GenerateFunc is called when Generate is invoked. If nil, returns an
	// empty result and nil error.
	GenerateFunc func(ctx context.Context, prompt string, systemMessage string) (*GenerateResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// GenerateCalls counts invocations for verification.
	GenerateCalls int

	// Prompts records every prompt passed to Generate.
	Prompts []string
}

// NewMockClient creates a mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{Model: "mock-model"}
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, prompt string, systemMessage string) (*GenerateResult, error) {
	m.GenerateCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, systemMessage)
	}
	return &GenerateResult{}, nil
}

// GetModel implements Client.
func (m *MockClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetProvider implements Client.
func (m *MockClient) GetProvider() string { return "mock" }

// Ensure MockClient implements Client at compile time.
var _ Client = (*MockClient)(nil)
