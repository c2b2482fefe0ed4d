// Package extract turns uploaded source material into text. One Extractor
// per source kind; selection is by kind tag, and kinds without a real
// extractor fail their unit instead of blocking the pipeline.
package extract

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usecase-cli/internal/model"
)

// File is one uploaded file awaiting extraction.
type File struct {
	Name    string
	Content []byte
}

// Size returns the content length in bytes.
func (f File) Size() int64 { return int64(len(f.Content)) }

// Extractor produces raw and cleaned text for one source kind.
type Extractor interface {
	Kind() model.SourceKind
	Extract(ctx context.Context, file File) (raw, cleaned string, err error)
}

// Registry dispatches files to the extractor for their kind.
type Registry struct {
	byKind map[model.SourceKind]Extractor
}

// NewRegistry builds a registry from the given extractors. Later entries
// with the same kind win.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byKind: make(map[model.SourceKind]Extractor, len(extractors))}
	for _, e := range extractors {
		r.byKind[e.Kind()] = e
	}
	return r
}

// DefaultRegistry returns the production extractor set: documents and text
// are handled inline, images and audio are declared unsupported until a
// transcription collaborator exists.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&DocumentExtractor{},
		&UnsupportedExtractor{SourceKind: model.SourceImage, Hint: "image OCR"},
		&UnsupportedExtractor{SourceKind: model.SourceAudio, Hint: "audio transcription"},
	)
}

// Extract runs the extractor registered for the given kind.
func (r *Registry) Extract(ctx context.Context, kind model.SourceKind, file File) (string, string, error) {
	e, ok := r.byKind[kind]
	if !ok {
		return "", "", eris.Errorf("extract: no extractor for kind %q", kind)
	}
	return e.Extract(ctx, file)
}

// KindForFile infers the source kind from the filename extension.
func KindForFile(name string) model.SourceKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
		return model.SourceImage
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
		return model.SourceAudio
	default:
		return model.SourceDocument
	}
}

// UnsupportedExtractor fails every unit of its kind with a stable message.
type UnsupportedExtractor struct {
	SourceKind model.SourceKind
	Hint       string
}

func (e *UnsupportedExtractor) Kind() model.SourceKind { return e.SourceKind }

func (e *UnsupportedExtractor) Extract(_ context.Context, file File) (string, string, error) {
	return "", "", eris.Errorf("extract: %s for %q not supported yet (requires %s)", e.SourceKind, file.Name, e.Hint)
}
