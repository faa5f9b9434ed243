package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/logging"
)

// systemMessage frames every generation request. The corrective context on
// retries travels in the prompt body, not here.
const systemMessage = "You are a SQL expert. Convert the user's natural-language question " +
	"into a single read-only SQL query for the schema provided. Output only the SQL."

// Generator bounds a provider call with a timeout and classifies its
// failures. It never retries internally; retry policy belongs to the
// pipeline coordinator.
type Generator struct {
	client  Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewGenerator wraps a provider client.
func NewGenerator(client Client, timeout time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("generator"),
	}
}

// Generate runs one bounded generation call. The provider call is treated
// as idempotent and side-effect-free; on deadline expiry the in-flight
// request is cancelled before the timeout error propagates.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.client.Generate(ctx, prompt, systemMessage)
	if err != nil {
		classified := ClassifyError(err)
		g.logger.Warn("generation failed",
			zap.String("model", g.client.Model()),
			zap.String("error", logging.SanitizeError(classified)))
		return "", classified
	}

	return text, nil
}

// NewClient builds a provider client for the configured provider name.
func NewClient(provider string, cfg *Config, logger *zap.Logger) (Client, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		// "openai" and "ollama" both speak the OpenAI chat API.
		return NewOpenAIClient(cfg, logger)
	}
}
