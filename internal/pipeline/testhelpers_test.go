package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/store"
)

// memStore is an in-memory store.Store for pipeline tests.
type memStore struct {
	mu       sync.Mutex
	versions map[string]*model.Version
	units    map[string]*model.ExtractionUnit
	order    []string
	creds    []model.Credential
}

func newMemStore() *memStore {
	return &memStore{
		versions: map[string]*model.Version{},
		units:    map[string]*model.ExtractionUnit{},
	}
}

func (m *memStore) addVersion(id string) *model.Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &model.Version{ID: id, ProjectID: "p1", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.versions[id] = v
	return v
}

func (m *memStore) CreateVersion(_ context.Context, projectID string) (*model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &model.Version{ID: uuid.New().String(), ProjectID: projectID}
	m.versions[v.ID] = v
	return v, nil
}

func (m *memStore) GetVersion(_ context.Context, versionID string) (*model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return nil, eris.Errorf("version not found: %s", versionID)
	}
	cp := *v
	cp.RequirementModel = append([]model.UseCase(nil), v.RequirementModel...)
	cp.PendingConflicts = append([]model.Conflict(nil), v.PendingConflicts...)
	cp.ProcessingErrors = append([]string(nil), v.ProcessingErrors...)
	return &cp, nil
}

func (m *memStore) SetMergedText(_ context.Context, versionID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return eris.Errorf("version not found: %s", versionID)
	}
	v.MergedText = text
	return nil
}

func (m *memStore) SetRunning(_ context.Context, versionID string, running bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return eris.Errorf("version not found: %s", versionID)
	}
	v.Running = running
	return nil
}

func (m *memStore) SaveRequirementModel(_ context.Context, versionID string, items []model.UseCase, conflicts []model.Conflict, procErrors []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return eris.Errorf("version not found: %s", versionID)
	}
	v.RequirementModel = items
	v.PendingConflicts = conflicts
	v.ProcessingErrors = procErrors
	return nil
}

func (m *memStore) AppendProcessingError(_ context.Context, versionID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return eris.Errorf("version not found: %s", versionID)
	}
	v.ProcessingErrors = append(v.ProcessingErrors, message)
	return nil
}

func (m *memStore) ClearProcessingErrors(_ context.Context, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return eris.Errorf("version not found: %s", versionID)
	}
	v.ProcessingErrors = nil
	return nil
}

func (m *memStore) CreateUnit(_ context.Context, unit *model.ExtractionUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if unit.ID == "" {
		unit.ID = uuid.New().String()
	}
	if unit.Status == "" {
		unit.Status = model.StatusPending
	}
	cp := *unit
	m.units[unit.ID] = &cp
	m.order = append(m.order, unit.ID)
	return nil
}

func (m *memStore) GetUnits(_ context.Context, unitIDs []string) ([]model.ExtractionUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExtractionUnit
	for _, id := range m.order {
		for _, want := range unitIDs {
			if id == want {
				out = append(out, *m.units[id])
			}
		}
	}
	return out, nil
}

func (m *memStore) ListUnits(_ context.Context, versionID string, filter store.UnitFilter) ([]model.ExtractionUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExtractionUnit
	for _, id := range m.order {
		u := m.units[id]
		if u.VersionID != versionID {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.UnprocessedOnly && u.Processed {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) ListFingerprints(_ context.Context, versionID string) (store.Fingerprints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp := store.Fingerprints{Files: map[string]struct{}{}, Texts: map[string]struct{}{}}
	for _, u := range m.units {
		if u.VersionID != versionID {
			continue
		}
		if u.FileHash != "" {
			fp.Files[u.FileHash] = struct{}{}
		}
		if u.TextHash != "" {
			fp.Texts[u.TextHash] = struct{}{}
		}
	}
	return fp, nil
}

func (m *memStore) UpdateUnitExtraction(_ context.Context, unitID, rawText, cleanedText string, status model.ProcessingStatus, extractErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[unitID]
	if !ok {
		return eris.Errorf("unit not found: %s", unitID)
	}
	u.RawText = rawText
	u.CleanedText = cleanedText
	u.Status = status
	u.Error = extractErr
	return nil
}

func (m *memStore) MarkUnitsProcessed(_ context.Context, unitIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range unitIDs {
		if u, ok := m.units[id]; ok {
			u.Processed = true
		}
	}
	return nil
}

func (m *memStore) AddCredential(_ context.Context, provider, secret string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := model.Credential{ID: uuid.New().String(), Provider: provider, Secret: secret, Active: true}
	m.creds = append(m.creds, c)
	return &c, nil
}

func (m *memStore) ListCredentials(_ context.Context, provider string) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Credential
	for _, c := range m.creds {
		if c.Provider == provider {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveCredentials(_ context.Context, provider string) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Credential
	for _, c := range m.creds {
		if c.Provider == provider && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) DeactivateCredential(_ context.Context, credentialID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.creds {
		if m.creds[i].ID == credentialID {
			m.creds[i].Active = false
		}
	}
	return nil
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

// failingStore wraps memStore to force failures on selected reads.
type failingStore struct {
	*memStore
	failFingerprints bool
}

func (f *failingStore) ListFingerprints(ctx context.Context, versionID string) (store.Fingerprints, error) {
	if f.failFingerprints {
		return store.Fingerprints{}, eris.New("store unavailable")
	}
	return f.memStore.ListFingerprints(ctx, versionID)
}

func storeUnitFilterAll() store.UnitFilter { return store.UnitFilter{} }

// fakeGateway scripts the analysis surface.
type fakeGateway struct {
	mu            sync.Mutex
	analyzeFn     func(chunk string) ([]model.UseCase, error)
	conflictFn    func(a, b string) (bool, error)
	analyzeCalls  []string
	conflictCalls int
	relatedCalls  int
	relatedFail   bool
}

func (g *fakeGateway) Analyze(_ context.Context, chunk string) ([]model.UseCase, error) {
	g.mu.Lock()
	g.analyzeCalls = append(g.analyzeCalls, chunk)
	g.mu.Unlock()
	if g.analyzeFn == nil {
		return nil, nil
	}
	return g.analyzeFn(chunk)
}

func (g *fakeGateway) CheckConflict(_ context.Context, a, b string) (bool, error) {
	g.mu.Lock()
	g.conflictCalls++
	g.mu.Unlock()
	if g.conflictFn == nil {
		return false, nil
	}
	return g.conflictFn(a, b)
}

func (g *fakeGateway) LinkRelated(_ context.Context, items []model.UseCase, _ bool) ([]model.UseCase, error) {
	g.mu.Lock()
	g.relatedCalls++
	g.mu.Unlock()
	if g.relatedFail {
		return nil, eris.New("related failed")
	}
	return items, nil
}
