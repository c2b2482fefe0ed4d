package extract

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/usecase-cli/internal/model"
)

func TestKindForFile(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.SourceDocument, KindForFile("notes.md"))
	assert.Equal(t, model.SourceDocument, KindForFile("requirements.xlsx"))
	assert.Equal(t, model.SourceImage, KindForFile("diagram.PNG"))
	assert.Equal(t, model.SourceAudio, KindForFile("meeting.mp3"))
	assert.Equal(t, model.SourceDocument, KindForFile("noextension"))
}

func TestDocumentExtractor_PlainText(t *testing.T) {
	t.Parallel()

	e := &DocumentExtractor{}
	raw, cleaned, err := e.Extract(context.Background(), File{
		Name:    "notes.txt",
		Content: []byte("Login flow\r\n\r\n\r\n  users   sign in  \r\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Login flow\r\n\r\n\r\n  users   sign in  \r\n", raw)
	assert.Equal(t, "Login flow\n\nusers sign in", cleaned)
}

func TestDocumentExtractor_RejectsBinary(t *testing.T) {
	t.Parallel()

	e := &DocumentExtractor{}
	_, _, err := e.Extract(context.Background(), File{
		Name:    "blob.txt",
		Content: []byte{0xff, 0xfe, 0x00, 0x01},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid UTF-8")
}

func TestUnsupportedExtractor(t *testing.T) {
	t.Parallel()

	e := &UnsupportedExtractor{SourceKind: model.SourceImage, Hint: "image OCR"}
	_, _, err := e.Extract(context.Background(), File{Name: "diagram.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestRegistry_UnknownKind(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, _, err := r.Extract(context.Background(), model.SourceDocument, File{Name: "a.txt"})
	require.Error(t, err)
}

// recordingStore captures extraction outcomes per unit.
type recordingStore struct {
	mu      sync.Mutex
	updates map[string][]model.ProcessingStatus
	raws    map[string]string
	errs    map[string]string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		updates: map[string][]model.ProcessingStatus{},
		raws:    map[string]string{},
		errs:    map[string]string{},
	}
}

func (s *recordingStore) UpdateUnitExtraction(_ context.Context, unitID, rawText, _ string, status model.ProcessingStatus, extractErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[unitID] = append(s.updates[unitID], status)
	if rawText != "" {
		s.raws[unitID] = rawText
	}
	if extractErr != "" {
		s.errs[unitID] = extractErr
	}
	return nil
}

func TestDispatcher_MixedBatch(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	d := NewDispatcher(DefaultRegistry(), store, 2)

	units := []model.ExtractionUnit{
		{ID: "u1", Kind: model.SourceDocument, Filename: "a.txt"},
		{ID: "u2", Kind: model.SourceImage, Filename: "b.png"},
	}
	files := map[string]File{
		"u1": {Name: "a.txt", Content: []byte("Checkout flow")},
		"u2": {Name: "b.png", Content: []byte{0x89, 0x50}},
	}

	require.NoError(t, d.Dispatch(context.Background(), units, files))

	assert.Equal(t, []model.ProcessingStatus{model.StatusProcessing, model.StatusCompleted}, store.updates["u1"])
	assert.Equal(t, "Checkout flow", store.raws["u1"])

	assert.Equal(t, []model.ProcessingStatus{model.StatusProcessing, model.StatusFailed}, store.updates["u2"])
	assert.Contains(t, store.errs["u2"], "not supported")
}
