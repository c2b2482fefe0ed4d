package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/store"
)

// Default extraction wait settings.
const (
	DefaultPollTimeout  = 120 * time.Second
	DefaultPollInterval = 1500 * time.Millisecond
)

// AwaitCompletion polls the named units until every one reaches a terminal
// status or the timeout elapses. On timeout it returns the last fetched
// snapshot: a unit still mid-extraction simply contributes no text
// downstream. This is the only blocking wait below the orchestrator.
func AwaitCompletion(ctx context.Context, st store.Store, unitIDs []string, timeout, interval time.Duration) ([]model.ExtractionUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger := zap.L().With(zap.String("component", "poller"))
	deadline := time.Now().Add(timeout)

	var last []model.ExtractionUnit
	for {
		units, err := st.GetUnits(ctx, unitIDs)
		if err != nil {
			return last, err
		}
		last = units

		if allTerminal(units) {
			return units, nil
		}
		if time.Now().After(deadline) {
			logger.Warn("extraction wait timed out, continuing with partial results",
				zap.Int("units", len(units)),
				zap.Int("pending", countPending(units)),
				zap.Duration("timeout", timeout))
			return units, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func allTerminal(units []model.ExtractionUnit) bool {
	for _, u := range units {
		if !u.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func countPending(units []model.ExtractionUnit) int {
	n := 0
	for _, u := range units {
		if !u.Status.IsTerminal() {
			n++
		}
	}
	return n
}
