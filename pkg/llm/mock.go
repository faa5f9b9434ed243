package llm

import (
	"context"
)

// MockClient is a configurable fake provider for tests.
// Set GenerateFunc to control behavior; calls are counted.
type MockClient struct {
	// GenerateFunc is called when Generate is invoked. If nil, returns
	// an empty string and nil error.
	GenerateFunc func(ctx context.Context, prompt, systemMessage string) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	GenerateCalls int
	// Prompts records every prompt passed to Generate.
	Prompts []string
}

// NewMockClient creates a mock with defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, prompt, systemMessage string) (string, error) {
	m.GenerateCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, systemMessage)
	}
	return "", nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	return m.ModelName
}

var _ Client = (*MockClient)(nil)
