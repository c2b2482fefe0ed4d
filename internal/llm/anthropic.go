package llm

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/usecase-cli/internal/resilience"
)

// anthropicClient implements Client using the official anthropic-sdk-go.
type anthropicClient struct {
	client sdk.Client
	cfg    Config
}

func newAnthropicClient(apiKey string, cfg Config) *anthropicClient {
	return &anthropicClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
	}
}

func (c *anthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = sdk.Float(c.cfg.Temperature)
	}

	// Network-level transients retry in place; auth and rate-limit errors
	// surface immediately so the gateway can rotate credentials.
	msg, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*sdk.Message, error) {
		m, callErr := c.client.Messages.New(ctx, params)
		if callErr != nil {
			return nil, classifyAnthropicError(callErr)
		}
		return m, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// classifyAnthropicError maps SDK errors onto the gateway's taxonomy.
func classifyAnthropicError(err error) error {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case 401, 403:
		return &AuthError{Err: err}
	case 429:
		rl := &RateLimitError{Err: err}
		if apiErr.Response != nil {
			rl.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return rl
	}
	return err
}
