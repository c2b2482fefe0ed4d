// Package llm provides single-credential clients for external analysis
// providers. A Client is bound to exactly one credential; rotation across
// credentials is owned by the gateway, not by this package.
package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usecase-cli/internal/model"
)

// Provider names accepted by the credential pool and factory.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config carries per-request generation settings shared by all providers.
type Config struct {
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// Client performs one prompt/response round trip against an analysis provider.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Factory builds a Client for a credential. The gateway calls this once per
// credential per rotation pass.
type Factory func(ctx context.Context, cred model.Credential, cfg Config) (Client, error)

// NewClient dispatches on the credential's provider name.
func NewClient(ctx context.Context, cred model.Credential, cfg Config) (Client, error) {
	switch cred.Provider {
	case ProviderAnthropic:
		return newAnthropicClient(cred.Secret, cfg), nil
	case ProviderGemini:
		return newGeminiClient(ctx, cred.Secret, cfg)
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cred.Provider)
	}
}
