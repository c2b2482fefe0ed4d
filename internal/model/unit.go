package model

import "time"

// SourceKind identifies the origin of an extraction unit.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceImage    SourceKind = "image"
	SourceAudio    SourceKind = "audio"
	SourceText     SourceKind = "text"
)

// ProcessingStatus tracks an extraction unit through its lifecycle.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusExtracted  ProcessingStatus = "extracted"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// IsTerminal reports whether the status is a terminal extraction state.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExtractionUnit is one piece of extracted content belonging to a version.
// FileHash and TextHash are mutually exclusive: file-derived units carry a
// FileHash, raw-text units a TextHash. A hash is unique within its version
// and namespace; duplicate hashes never trigger re-extraction.
type ExtractionUnit struct {
	ID          string           `json:"id"`
	VersionID   string           `json:"version_id"`
	Kind        SourceKind       `json:"kind"`
	Filename    string           `json:"filename,omitempty"`
	RawText     string           `json:"raw_text"`
	CleanedText string           `json:"cleaned_text"`
	FileHash    string           `json:"file_hash,omitempty"`
	TextHash    string           `json:"text_hash,omitempty"`
	Status      ProcessingStatus `json:"processing_status"`
	// Processed means the unit has already been folded into a requirement
	// model; set only by the merge engine.
	Processed bool      `json:"is_processed"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Text returns the cleaned text, falling back to the raw extraction.
func (u ExtractionUnit) Text() string {
	if u.CleanedText != "" {
		return u.CleanedText
	}
	return u.RawText
}
