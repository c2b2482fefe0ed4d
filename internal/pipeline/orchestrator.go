package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/extract"
	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/store"
)

// RunRequest triggers one pipeline run against a version.
type RunRequest struct {
	VersionID string
	Files     []extract.File
	RawText   string
	Mode      model.RunMode
	// ForceRetry reprocesses even when the intake accepted nothing new.
	ForceRetry bool
}

// Orchestrator sequences intake, extraction wait, and merge for one run.
// Concurrent runs against the same version are not safe; the caller
// serializes per version.
type Orchestrator struct {
	st           store.Store
	intake       *Intake
	engine       *Engine
	pollTimeout  time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewOrchestrator wires the pipeline components. Zero poll settings take
// the defaults.
func NewOrchestrator(st store.Store, intake *Intake, engine *Engine, pollTimeout, pollInterval time.Duration) *Orchestrator {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		st:           st,
		intake:       intake,
		engine:       engine,
		pollTimeout:  pollTimeout,
		pollInterval: pollInterval,
		logger:       zap.L().With(zap.String("component", "orchestrator")),
	}
}

// Run executes one pipeline run synchronously.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*model.RunSummary, error) {
	version, err := o.st.GetVersion(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = model.ModeIncremental
	}

	logger := o.logger.With(
		zap.String("version", req.VersionID),
		zap.String("mode", string(req.Mode)))
	logger.Info("run started",
		zap.Int("files", len(req.Files)),
		zap.Bool("has_text", req.RawText != ""))

	if err := o.st.SetRunning(ctx, req.VersionID, true); err != nil {
		return nil, err
	}
	defer func() {
		// Clearing the running flag uses a fresh context so a cancelled
		// run does not leave the version stuck in processing.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := o.st.SetRunning(stopCtx, req.VersionID, false); err != nil {
			logger.Error("failed to clear running flag", zap.Error(err))
		}
	}()

	// Errors accumulate per run; each new run starts clean.
	if err := o.st.ClearProcessingErrors(ctx, req.VersionID); err != nil {
		return nil, err
	}

	accepted, err := o.intake.Handle(ctx, req.VersionID, req.Files, req.RawText)
	if err != nil {
		return nil, err
	}

	if req.Mode == model.ModeIncremental && accepted.Empty() && !req.ForceRetry {
		logger.Info("nothing new, returning current state")
		return currentSummary(version, req.Mode), nil
	}

	if len(accepted.NewUnitIDs) > 0 {
		if _, err := AwaitCompletion(ctx, o.st, accepted.NewUnitIDs, o.pollTimeout, o.pollInterval); err != nil {
			return nil, err
		}
	}

	scope, err := o.collectScope(ctx, req.VersionID, req.Mode)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		// A run that finds nothing to process is a valid terminal outcome.
		logger.Info("no units in scope, returning current state")
		return currentSummary(version, req.Mode), nil
	}

	summary, err := o.engine.Finalize(ctx, req.VersionID, req.Mode, scope)
	if err != nil {
		return nil, err
	}
	logger.Info("run finished",
		zap.Int("units", summary.UnitsCount),
		zap.Int("usecases", len(summary.RequirementModel)),
		zap.Int("conflicts", len(summary.Conflicts)),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

// RunAsync schedules a run in the background and returns immediately.
// Failures are captured onto the version's processing-error list.
func (o *Orchestrator) RunAsync(ctx context.Context, req RunRequest) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := o.Run(bg, req); err != nil {
			o.logger.Error("background run failed",
				zap.String("version", req.VersionID), zap.Error(err))
			if aerr := o.st.AppendProcessingError(bg, req.VersionID, fmt.Sprintf("run failed: %v", err)); aerr != nil {
				o.logger.Error("failed to record run error",
					zap.String("version", req.VersionID), zap.Error(aerr))
			}
		}
	}()
}

// collectScope gathers the units a run will analyze. Full mode takes every
// completed unit; incremental takes only completed units not yet folded
// into a requirement model.
func (o *Orchestrator) collectScope(ctx context.Context, versionID string, mode model.RunMode) ([]model.ExtractionUnit, error) {
	filter := store.UnitFilter{Status: model.StatusCompleted}
	if mode == model.ModeIncremental {
		filter.UnprocessedOnly = true
	}
	return o.st.ListUnits(ctx, versionID, filter)
}

func currentSummary(version *model.Version, mode model.RunMode) *model.RunSummary {
	return &model.RunSummary{
		VersionID:        version.ID,
		Mode:             mode,
		RequirementModel: version.RequirementModel,
		Conflicts:        version.PendingConflicts,
		Errors:           version.ProcessingErrors,
	}
}
