package model

import "time"

// VersionStatus is the coarse state derived from a version's contents.
type VersionStatus string

const (
	VersionProcessing   VersionStatus = "processing"
	VersionCompleted    VersionStatus = "completed"
	VersionFailed       VersionStatus = "failed"
	VersionHasConflicts VersionStatus = "has_conflicts"
)

// Conflict pairs an existing use case with a newly-derived candidate that is
// suspected to denote the same real-world use case. Created by the merge
// engine during incremental runs; consumed exactly once by resolution.
type Conflict struct {
	ID       string  `json:"conflict_id"`
	Existing UseCase `json:"existing"`
	New      UseCase `json:"new"`
}

// Version is the aggregate root for one requirement-model snapshot.
// Mutated only by the orchestrator and the merge/conflict engine.
type Version struct {
	ID               string     `json:"id"`
	ProjectID        string     `json:"project_id"`
	RequirementModel []UseCase  `json:"requirement_model"`
	PendingConflicts []Conflict `json:"pending_conflicts"`
	ProcessingErrors []string   `json:"processing_errors"`
	MergedText       string     `json:"merged_text"`
	Running          bool       `json:"running"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Status derives the coarse version state: a running analysis wins, then
// pending conflicts, then accumulated errors, then completed.
func (v Version) Status() VersionStatus {
	switch {
	case v.Running:
		return VersionProcessing
	case len(v.PendingConflicts) > 0:
		return VersionHasConflicts
	case len(v.ProcessingErrors) > 0 && len(v.RequirementModel) == 0:
		return VersionFailed
	default:
		return VersionCompleted
	}
}

// RunMode selects full re-analysis or incremental delta processing.
type RunMode string

const (
	ModeFull        RunMode = "full"
	ModeIncremental RunMode = "incremental"
)

// RunSummary is returned by a pipeline run.
type RunSummary struct {
	VersionID        string     `json:"version_id"`
	Mode             RunMode    `json:"mode"`
	UnitsCount       int        `json:"units_count"`
	ProcessedCount   int        `json:"processed_count"`
	RequirementModel []UseCase  `json:"requirement_model"`
	NewUsecases      []UseCase  `json:"new_usecases,omitempty"`
	Conflicts        []Conflict `json:"conflicts,omitempty"`
	Errors           []string   `json:"errors,omitempty"`
}

// HasConflicts reports whether the run surfaced pending conflicts.
func (s RunSummary) HasConflicts() bool { return len(s.Conflicts) > 0 }
