package gateway

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/llm"
	"github.com/sells-group/usecase-cli/internal/model"
)

// ErrNoCredentials means the pool has no active credentials for the
// configured provider. Fatal: there is nothing to rotate to.
var ErrNoCredentials = eris.New("gateway: no active credentials")

// CredentialPool is the credential surface the gateway rotates over.
// The store satisfies it.
type CredentialPool interface {
	ListActiveCredentials(ctx context.Context, provider string) ([]model.Credential, error)
	DeactivateCredential(ctx context.Context, credentialID string) error
}

// Options tunes batching and rotation.
type Options struct {
	BatchSize     int
	MaxBatches    int
	// MaxPasses bounds full sweeps over the credential list without
	// progress before a call is abandoned.
	MaxPasses     int
	MaxRetryDelay time.Duration
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		BatchSize:     20,
		MaxBatches:    100,
		MaxPasses:     2,
		MaxRetryDelay: 60 * time.Second,
	}
}

// Gateway calls the external analysis service with credential rotation and
// tolerant response parsing.
type Gateway struct {
	pool     CredentialPool
	factory  llm.Factory
	provider string
	llmCfg   llm.Config
	prompts  PromptPack
	opts     Options
	logger   *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway over the given credential pool.
func New(pool CredentialPool, factory llm.Factory, provider string, llmCfg llm.Config, prompts PromptPack, opts Options) *Gateway {
	if factory == nil {
		factory = llm.NewClient
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = DefaultOptions().MaxBatches
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultOptions().MaxPasses
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = DefaultOptions().MaxRetryDelay
	}
	return &Gateway{
		pool:     pool,
		factory:  factory,
		provider: provider,
		llmCfg:   llmCfg,
		prompts:  prompts,
		opts:     opts,
		logger:   zap.L().With(zap.String("component", "gateway"), zap.String("provider", provider)),
		sleep:    sleepCtx,
	}
}

// generate sends one prompt, rotating through active credentials. An auth
// failure deactivates the credential; a rate-limit failure sleeps the hinted
// delay before moving on; anything else moves on immediately. Exhausting the
// pool MaxPasses times surfaces the last error.
func (g *Gateway) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for pass := 0; pass < g.opts.MaxPasses; pass++ {
		creds, err := g.pool.ListActiveCredentials(ctx, g.provider)
		if err != nil {
			return "", eris.Wrap(err, "gateway: list credentials")
		}
		if len(creds) == 0 {
			if lastErr != nil {
				return "", lastErr
			}
			return "", ErrNoCredentials
		}

		for _, cred := range creds {
			client, err := g.factory(ctx, cred, g.llmCfg)
			if err != nil {
				lastErr = err
				g.logger.Warn("credential client init failed",
					zap.String("credential", cred.Redacted()), zap.Error(err))
				continue
			}

			raw, err := client.Generate(ctx, prompt)
			if err == nil {
				return raw, nil
			}
			lastErr = err

			switch {
			case llm.IsAuth(err):
				g.logger.Warn("deactivating credential after auth failure",
					zap.String("credential", cred.Redacted()), zap.Error(err))
				if derr := g.pool.DeactivateCredential(ctx, cred.ID); derr != nil {
					g.logger.Error("credential deactivation failed",
						zap.String("credential", cred.Redacted()), zap.Error(derr))
				}
			case isRateLimited(err):
				delay, _ := llm.RetryDelay(err)
				if delay <= 0 {
					delay = time.Second
				}
				if delay > g.opts.MaxRetryDelay {
					delay = g.opts.MaxRetryDelay
				}
				g.logger.Info("rate limited, backing off before next credential",
					zap.String("credential", cred.Redacted()), zap.Duration("delay", delay))
				if serr := g.sleep(ctx, delay); serr != nil {
					return "", serr
				}
			default:
				g.logger.Warn("generation failed, trying next credential",
					zap.String("credential", cred.Redacted()), zap.Error(err))
			}

			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrNoCredentials
	}
	return "", lastErr
}

func isRateLimited(err error) bool {
	_, ok := llm.RetryDelay(err)
	return ok
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
