package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/extract"
	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/store"
	"github.com/sells-group/usecase-cli/internal/textutil"
)

// IntakeResult reports what a version accepted. Zero new files and no new
// text is the orchestrator's "nothing new" short-circuit in incremental mode.
type IntakeResult struct {
	// NewUnitIDs are the freshly created file units awaiting extraction.
	NewUnitIDs []string
	NewFiles   int
	NewText    bool
}

// Empty reports whether the intake accepted nothing.
func (r IntakeResult) Empty() bool {
	return r.NewFiles == 0 && !r.NewText
}

// Intake admits new files and raw text into a version, fingerprinting each
// against what the version already holds. Duplicates are skipped silently;
// accepted files are handed to the extraction dispatcher as one batch.
type Intake struct {
	st         store.Store
	dispatcher *extract.Dispatcher
	logger     *zap.Logger
}

// NewIntake creates an Intake over the given store and dispatcher.
func NewIntake(st store.Store, dispatcher *extract.Dispatcher) *Intake {
	return &Intake{
		st:         st,
		dispatcher: dispatcher,
		logger:     zap.L().With(zap.String("component", "intake")),
	}
}

// Handle fingerprints and admits the given content. File and text
// fingerprints live in separate namespaces: a file whose text matches
// previously submitted raw text is still new, and vice versa.
func (i *Intake) Handle(ctx context.Context, versionID string, files []extract.File, rawText string) (IntakeResult, error) {
	var result IntakeResult

	fps, err := i.st.ListFingerprints(ctx, versionID)
	if err != nil {
		return result, eris.Wrap(err, "intake: load fingerprints")
	}

	var (
		units    []model.ExtractionUnit
		contents = map[string]extract.File{}
	)
	for _, file := range files {
		fp := textutil.FileFingerprint(file.Content, file.Name, file.Size())
		if fps.HasFile(fp) {
			i.logger.Debug("skipping duplicate file",
				zap.String("version", versionID), zap.String("file", file.Name))
			continue
		}
		fps.Files[fp] = struct{}{}

		unit := model.ExtractionUnit{
			VersionID: versionID,
			Kind:      extract.KindForFile(file.Name),
			Filename:  file.Name,
			FileHash:  fp,
			Status:    model.StatusPending,
		}
		if err := i.st.CreateUnit(ctx, &unit); err != nil {
			return result, eris.Wrap(err, "intake: create file unit")
		}
		units = append(units, unit)
		contents[unit.ID] = file
		result.NewUnitIDs = append(result.NewUnitIDs, unit.ID)
	}
	result.NewFiles = len(units)

	if strings.TrimSpace(rawText) != "" {
		fp := textutil.TextFingerprint(rawText)
		if fps.HasText(fp) {
			i.logger.Debug("skipping duplicate text", zap.String("version", versionID))
		} else {
			// Raw text needs no extraction collaborator: it is admitted
			// already completed.
			unit := model.ExtractionUnit{
				VersionID:   versionID,
				Kind:        model.SourceText,
				RawText:     rawText,
				CleanedText: extract.CleanText(rawText),
				TextHash:    fp,
				Status:      model.StatusCompleted,
			}
			if err := i.st.CreateUnit(ctx, &unit); err != nil {
				return result, eris.Wrap(err, "intake: create text unit")
			}
			result.NewText = true
		}
	}

	if len(units) > 0 {
		i.logger.Info("dispatching extraction batch",
			zap.String("version", versionID), zap.Int("files", len(units)))
		go func() {
			if err := i.dispatcher.Dispatch(ctx, units, contents); err != nil {
				i.logger.Error("extraction batch failed",
					zap.String("version", versionID), zap.Error(err))
			}
		}()
	}
	return result, nil
}
