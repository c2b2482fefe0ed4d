package store

import (
	"context"

	"github.com/sells-group/usecase-cli/internal/model"
)

// UnitFilter narrows ListUnits results. Zero values mean "no constraint".
type UnitFilter struct {
	Status          model.ProcessingStatus
	UnprocessedOnly bool
}

// Fingerprints holds the existing content hashes for a version, split by
// namespace so file and text dedup never interfere.
type Fingerprints struct {
	Files map[string]struct{}
	Texts map[string]struct{}
}

// HasFile reports whether the file-namespace hash is already known.
func (f Fingerprints) HasFile(hash string) bool {
	_, ok := f.Files[hash]
	return ok
}

// HasText reports whether the text-namespace hash is already known.
func (f Fingerprints) HasText(hash string) bool {
	_, ok := f.Texts[hash]
	return ok
}

// Store defines persistence for versions, extraction units, and credentials.
type Store interface {
	// Versions
	CreateVersion(ctx context.Context, projectID string) (*model.Version, error)
	GetVersion(ctx context.Context, versionID string) (*model.Version, error)
	SetMergedText(ctx context.Context, versionID, text string) error
	SetRunning(ctx context.Context, versionID string, running bool) error
	// SaveRequirementModel persists the model snapshot, replacing the prior
	// pending-conflict list and processing errors wholesale.
	SaveRequirementModel(ctx context.Context, versionID string, items []model.UseCase, conflicts []model.Conflict, procErrors []string) error
	AppendProcessingError(ctx context.Context, versionID, message string) error
	ClearProcessingErrors(ctx context.Context, versionID string) error

	// Units
	CreateUnit(ctx context.Context, unit *model.ExtractionUnit) error
	GetUnits(ctx context.Context, unitIDs []string) ([]model.ExtractionUnit, error)
	ListUnits(ctx context.Context, versionID string, filter UnitFilter) ([]model.ExtractionUnit, error)
	ListFingerprints(ctx context.Context, versionID string) (Fingerprints, error)
	UpdateUnitExtraction(ctx context.Context, unitID, rawText, cleanedText string, status model.ProcessingStatus, extractErr string) error
	MarkUnitsProcessed(ctx context.Context, unitIDs []string) error

	// Credentials
	AddCredential(ctx context.Context, provider, secret string) (*model.Credential, error)
	ListCredentials(ctx context.Context, provider string) ([]model.Credential, error)
	ListActiveCredentials(ctx context.Context, provider string) ([]model.Credential, error)
	DeactivateCredential(ctx context.Context, credentialID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
