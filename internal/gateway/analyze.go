package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/model"
)

// Analyze extracts use cases from one text chunk. Results arrive in batches
// of at most BatchSize items; a truncated or full batch triggers another
// call continuing at the new offset, up to MaxBatches. A chunk that fails
// after some items have been accumulated returns the partial set rather
// than an error.
func (g *Gateway) Analyze(ctx context.Context, chunk string) ([]model.UseCase, error) {
	var (
		acc     []model.UseCase
		offset  int
		stalled int
		lastErr error
	)

	for batch := 0; batch < g.opts.MaxBatches; batch++ {
		prompt := g.prompts.analysisPrompt(chunk, offset, g.opts.BatchSize)

		raw, err := g.generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return acc, ctx.Err()
			}
			lastErr = err
			break
		}

		result := ParseItems(raw)
		if len(result.Items) == 0 {
			if isEndOfData(raw) {
				// The service had nothing at or past this offset.
				return acc, nil
			}
			// Unparseable non-empty response. Retry the same offset a
			// bounded number of times before giving up on the chunk.
			stalled++
			g.logger.Warn("unparseable analysis response",
				zap.Int("offset", offset), zap.Int("stalled", stalled))
			if stalled >= g.opts.MaxPasses {
				break
			}
			continue
		}

		stalled = 0
		acc = append(acc, result.Items...)
		offset += len(result.Items)

		if !result.Incomplete && len(result.Items) < g.opts.BatchSize {
			// Clean finish with room to spare: the service is done.
			return acc, nil
		}
		// Either the response was truncated or the batch came back full;
		// assume more items remain and continue at the new offset.
	}

	if len(acc) == 0 && lastErr != nil {
		return nil, lastErr
	}
	if lastErr != nil {
		g.logger.Warn("returning partial analysis after failure",
			zap.Int("items", len(acc)), zap.Error(lastErr))
	}
	return acc, nil
}

// isEndOfData reports whether a response with no parseable items is a
// legitimate "nothing left" signal rather than garbage.
func isEndOfData(raw string) bool {
	s := StripFences(raw)
	return s == "" || s == "[]"
}
