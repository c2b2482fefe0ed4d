package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/store"
)

// DefaultChunkSize bounds the text submitted per analysis call.
const DefaultChunkSize = 12000

// relatedThreshold: below this many items the related-links pass is not
// worth the extra call.
const relatedThreshold = 10

// AnalysisGateway is the external analysis surface the merge engine drives.
type AnalysisGateway interface {
	Analyze(ctx context.Context, chunk string) ([]model.UseCase, error)
	CheckConflict(ctx context.Context, a, b string) (bool, error)
	LinkRelated(ctx context.Context, items []model.UseCase, incremental bool) ([]model.UseCase, error)
}

// Engine turns extracted unit text into the version's requirement model,
// merging against the existing set in incremental mode.
type Engine struct {
	st        store.Store
	gw        AnalysisGateway
	detector  *Detector
	chunkSize int
	// limiter spaces external analysis calls; chunk analysis is
	// deliberately sequential per unit and per chunk.
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewEngine creates a merge engine. A nil limiter disables call spacing;
// chunkSize below 1 takes the default.
func NewEngine(st store.Store, gw AnalysisGateway, detector *Detector, chunkSize int, limiter *rate.Limiter) *Engine {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	if detector == nil {
		detector = NewDetector(gw, Thresholds{})
	}
	return &Engine{
		st:        st,
		gw:        gw,
		detector:  detector,
		chunkSize: chunkSize,
		limiter:   limiter,
		logger:    zap.L().With(zap.String("component", "merge")),
	}
}

// Finalize runs the merge over the in-scope units and persists the outcome.
// Chunk-level analysis failures are recorded as processing errors and do
// not abort the run.
func (e *Engine) Finalize(ctx context.Context, versionID string, mode model.RunMode, units []model.ExtractionUnit) (*model.RunSummary, error) {
	version, err := e.st.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{
		VersionID:  versionID,
		Mode:       mode,
		UnitsCount: len(units),
	}

	merged := mergeUnitText(units)
	if err := e.st.SetMergedText(ctx, versionID, merged); err != nil {
		return nil, err
	}
	if strings.TrimSpace(merged) == "" {
		// Nothing to analyze. Consume the scope and keep the existing set.
		if err := e.markProcessed(ctx, units); err != nil {
			return nil, err
		}
		summary.ProcessedCount = len(units)
		summary.RequirementModel = version.RequirementModel
		return summary, nil
	}

	derived, procErrors := e.analyzeUnits(ctx, units)
	derived = model.NormalizeIDs(model.Dedupe(derived))

	final := derived
	var conflicts []model.Conflict
	if mode == model.ModeIncremental {
		final, conflicts = e.mergeIncremental(ctx, version.RequirementModel, derived)
		summary.NewUsecases = derived
	}
	final = model.NormalizeIDs(final)

	if len(final) > relatedThreshold {
		linked, lerr := e.gw.LinkRelated(ctx, final, mode == model.ModeIncremental)
		if lerr != nil {
			e.logger.Warn("related-links pass failed, keeping set unlinked",
				zap.String("version", versionID), zap.Error(lerr))
		} else {
			final = linked
		}
	}

	if err := e.markProcessed(ctx, units); err != nil {
		return nil, err
	}
	if err := e.st.SaveRequirementModel(ctx, versionID, final, conflicts, procErrors); err != nil {
		return nil, err
	}

	summary.ProcessedCount = len(units)
	summary.RequirementModel = final
	summary.Conflicts = conflicts
	summary.Errors = procErrors
	return summary, nil
}

// analyzeUnits runs chunked analysis sequentially over every unit,
// accumulating failures as error strings.
func (e *Engine) analyzeUnits(ctx context.Context, units []model.ExtractionUnit) ([]model.UseCase, []string) {
	var derived []model.UseCase
	var procErrors []string

	for _, unit := range units {
		text := unit.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		for ci, chunk := range splitChunks(text, e.chunkSize) {
			if e.limiter != nil {
				if err := e.limiter.Wait(ctx); err != nil {
					procErrors = append(procErrors, fmt.Sprintf("unit %s chunk %d: %v", unit.ID, ci+1, err))
					return derived, procErrors
				}
			}
			items, err := e.gw.Analyze(ctx, chunk)
			if err != nil {
				e.logger.Warn("chunk analysis failed",
					zap.String("unit", unit.ID), zap.Int("chunk", ci+1), zap.Error(err))
				procErrors = append(procErrors, fmt.Sprintf("unit %s chunk %d: %v", unit.ID, ci+1, err))
				continue
			}
			derived = append(derived, items...)
		}
	}
	return derived, procErrors
}

// mergeIncremental folds candidates into the existing set. A candidate that
// the conflict gate matches against an existing item becomes a pending
// conflict; the existing item stays and the candidate is held back.
func (e *Engine) mergeIncremental(ctx context.Context, existing, candidates []model.UseCase) ([]model.UseCase, []model.Conflict) {
	final := make([]model.UseCase, len(existing))
	copy(final, existing)

	var conflicts []model.Conflict
	for _, cand := range candidates {
		matched := false
		for _, ex := range existing {
			if e.detector.IsConflict(ctx, ex, cand) {
				conflicts = append(conflicts, model.Conflict{
					ID:       uuid.New().String(),
					Existing: ex,
					New:      cand,
				})
				matched = true
				break
			}
		}
		if !matched {
			final = append(final, cand)
		}
	}
	return final, conflicts
}

func (e *Engine) markProcessed(ctx context.Context, units []model.ExtractionUnit) error {
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return eris.Wrap(e.st.MarkUnitsProcessed(ctx, ids), "merge: mark units processed")
}

// mergeUnitText concatenates unit text, blank-line separated, preferring
// cleaned text.
func mergeUnitText(units []model.ExtractionUnit) string {
	var parts []string
	for _, u := range units {
		if t := strings.TrimSpace(u.Text()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// splitChunks slices text into bounded pieces, cutting at line boundaries
// where possible.
func splitChunks(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var chunks []string
	for len(text) > size {
		cut := size
		if idx := strings.LastIndexByte(text[:size], '\n'); idx > size/2 {
			cut = idx + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if strings.TrimSpace(text) != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
