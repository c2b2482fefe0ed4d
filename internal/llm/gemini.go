package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/usecase-cli/internal/resilience"
)

// geminiClient implements Client using Google's GenAI SDK.
type geminiClient struct {
	client *genai.Client
	cfg    Config
}

func newGeminiClient(ctx context.Context, apiKey string, cfg Config) (*geminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &geminiClient{client: client, cfg: cfg}, nil
}

func (c *geminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	var genCfg *genai.GenerateContentConfig
	if c.cfg.Temperature > 0 || c.cfg.MaxTokens > 0 {
		genCfg = &genai.GenerateContentConfig{}
		if c.cfg.Temperature > 0 {
			temp := float32(c.cfg.Temperature)
			genCfg.Temperature = &temp
		}
		if c.cfg.MaxTokens > 0 {
			genCfg.MaxOutputTokens = int32(c.cfg.MaxTokens)
		}
	}

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		r, callErr := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
		if callErr != nil {
			return nil, classifyGeminiError(callErr)
		}
		return r, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "gemini: generate content")
	}

	return resp.Text(), nil
}

// classifyGeminiError maps GenAI API errors onto the gateway's taxonomy.
// Gemini's 429 responses carry a RetryInfo detail whose retryDelay survives
// in the error message, which RetryDelay knows how to read.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case 401, 403:
		return &AuthError{Err: err}
	case 429:
		rl := &RateLimitError{Err: err}
		if d, ok := RetryDelay(fmt.Errorf("rate limit: %s", apiErr.Message)); ok {
			rl.RetryAfter = d
		}
		return rl
	}
	return err
}
