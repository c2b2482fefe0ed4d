package extract

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/usecase-cli/internal/model"
)

// UnitStore is the persistence surface extraction writes through.
type UnitStore interface {
	UpdateUnitExtraction(ctx context.Context, unitID, rawText, cleanedText string, status model.ProcessingStatus, extractErr string) error
}

// Dispatcher extracts a batch of units concurrently and records each
// outcome. Extraction failures land on the unit as a failed status, never
// as a batch error; only store failures abort the batch.
type Dispatcher struct {
	registry    *Registry
	store       UnitStore
	concurrency int
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher. Concurrency below 1 defaults to 4.
func NewDispatcher(registry *Registry, store UnitStore, concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Dispatcher{
		registry:    registry,
		store:       store,
		concurrency: concurrency,
		logger:      zap.L().With(zap.String("component", "extract")),
	}
}

// Dispatch runs extraction for each unit against its file content.
func (d *Dispatcher) Dispatch(ctx context.Context, units []model.ExtractionUnit, files map[string]File) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, unit := range units {
		g.Go(func() error {
			file, ok := files[unit.ID]
			if !ok {
				file = File{Name: unit.Filename}
			}

			if err := d.store.UpdateUnitExtraction(ctx, unit.ID, "", "", model.StatusProcessing, ""); err != nil {
				return err
			}

			raw, cleaned, err := d.registry.Extract(ctx, unit.Kind, file)
			if err != nil {
				d.logger.Warn("extraction failed",
					zap.String("unit", unit.ID),
					zap.String("kind", string(unit.Kind)),
					zap.String("file", unit.Filename),
					zap.Error(err))
				return d.store.UpdateUnitExtraction(ctx, unit.ID, "", "", model.StatusFailed, err.Error())
			}

			d.logger.Debug("extraction completed",
				zap.String("unit", unit.ID),
				zap.Int("raw_len", len(raw)))
			return d.store.UpdateUnitExtraction(ctx, unit.ID, raw, cleaned, model.StatusCompleted, "")
		})
	}
	return g.Wait()
}
