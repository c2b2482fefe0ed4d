package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/usecase-cli/internal/llm"
	"github.com/sells-group/usecase-cli/internal/model"
)

// fakePool serves a fixed credential list and records deactivations.
type fakePool struct {
	creds       []model.Credential
	deactivated []string
}

func (p *fakePool) ListActiveCredentials(_ context.Context, _ string) ([]model.Credential, error) {
	var active []model.Credential
	for _, c := range p.creds {
		if c.Active {
			active = append(active, c)
		}
	}
	return active, nil
}

func (p *fakePool) DeactivateCredential(_ context.Context, id string) error {
	p.deactivated = append(p.deactivated, id)
	for i := range p.creds {
		if p.creds[i].ID == id {
			p.creds[i].Active = false
		}
	}
	return nil
}

// scriptedClient returns canned responses keyed by credential, in order.
type scriptedClient struct {
	responses *[]scriptedResponse
}

type scriptedResponse struct {
	raw string
	err error
}

func (c *scriptedClient) Generate(_ context.Context, _ string) (string, error) {
	rs := *c.responses
	if len(rs) == 0 {
		return "", eris.New("script exhausted")
	}
	next := rs[0]
	*c.responses = rs[1:]
	return next.raw, next.err
}

func newTestGateway(t *testing.T, pool *fakePool, responses ...scriptedResponse) *Gateway {
	t.Helper()
	script := responses
	factory := func(_ context.Context, _ model.Credential, _ llm.Config) (llm.Client, error) {
		return &scriptedClient{responses: &script}, nil
	}
	g := New(pool, factory, llm.ProviderGemini, llm.Config{}, DefaultPromptPack(), Options{BatchSize: 2})
	g.sleep = func(_ context.Context, _ time.Duration) error { return nil }
	return g
}

func activeCred(id string) model.Credential {
	return model.Credential{ID: id, Provider: llm.ProviderGemini, Secret: "k-" + id, Active: true}
}

func TestAnalyze_SingleBatch(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool, scriptedResponse{raw: `[{"name":"Login"}]`})

	items, err := g.Analyze(context.Background(), "some requirements")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Login", items[0].Name)
}

func TestAnalyze_ContinuesOnFullBatch(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	// Batch size is 2: a full first batch means more may remain.
	g := newTestGateway(t, pool,
		scriptedResponse{raw: `[{"name":"A"},{"name":"B"}]`},
		scriptedResponse{raw: `[{"name":"C"}]`},
	)

	items, err := g.Analyze(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "C", items[2].Name)
}

func TestAnalyze_ContinuesOnTruncation(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool,
		scriptedResponse{raw: `[{"name":"A"},{"name":"B`},
		scriptedResponse{raw: `[]`},
	)

	items, err := g.Analyze(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].Name)
}

func TestAnalyze_EmptyResponseIsEndOfData(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool, scriptedResponse{raw: `[]`})

	items, err := g.Analyze(context.Background(), "text")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAnalyze_AuthFailureDeactivatesAndRotates(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1"), activeCred("c2")}}
	g := newTestGateway(t, pool,
		scriptedResponse{err: &llm.AuthError{Err: eris.New("API key not valid")}},
		scriptedResponse{raw: `[{"name":"Login"}]`},
	)

	items, err := g.Analyze(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"c1"}, pool.deactivated)
}

func TestAnalyze_RateLimitSleepsNotDeactivates(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1"), activeCred("c2")}}
	var slept []time.Duration

	g := newTestGateway(t, pool,
		scriptedResponse{err: &llm.RateLimitError{Err: eris.New("quota exceeded"), RetryAfter: 3 * time.Second}},
		scriptedResponse{raw: `[{"name":"Login"}]`},
	)
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	items, err := g.Analyze(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, pool.deactivated)
	assert.Equal(t, []time.Duration{3 * time.Second}, slept)
}

func TestAnalyze_NoCredentials(t *testing.T) {
	pool := &fakePool{}
	g := newTestGateway(t, pool)

	_, err := g.Analyze(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAnalyze_AllCredentialsFail(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool,
		scriptedResponse{err: eris.New("boom")},
		scriptedResponse{err: eris.New("boom again")},
	)

	_, err := g.Analyze(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAnalyze_PartialAccumulationSurvivesLaterFailure(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool,
		scriptedResponse{raw: `[{"name":"A"},{"name":"B"}]`},
		scriptedResponse{err: eris.New("boom")},
		scriptedResponse{err: eris.New("boom")},
	)

	items, err := g.Analyze(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCheckConflict(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool, scriptedResponse{raw: `{"duplicate": true}`})

	got, err := g.CheckConflict(context.Background(), "login", "user login")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCheckConflict_UnparseableIsError(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool,
		scriptedResponse{raw: "maybe?"},
	)

	_, err := g.CheckConflict(context.Background(), "a", "b")
	require.Error(t, err)
}

func TestLinkRelated_SkipsSmallSets(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool)

	items := []model.UseCase{{ID: "UC1", Name: "Login"}}
	out, err := g.LinkRelated(context.Background(), items, false)
	require.NoError(t, err)
	assert.Equal(t, items, out)
}

func TestLinkRelated_MergesByID(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool, scriptedResponse{
		raw: `[{"id":"UC1","related_usecases":[{"id":"UC2","name":"Checkout"},{"id":"UC9","name":"Ghost"}]}]`,
	})

	items := []model.UseCase{{ID: "UC1", Name: "Login"}, {ID: "UC2", Name: "Checkout"}}
	out, err := g.LinkRelated(context.Background(), items, false)
	require.NoError(t, err)
	require.Len(t, out[0].RelatedUsecases, 1, "links to unknown ids are dropped")
	assert.Equal(t, "UC2", out[0].RelatedUsecases[0].ID)
	assert.Empty(t, out[1].RelatedUsecases)
}

func TestLinkRelated_IncrementalUnionsExistingLinks(t *testing.T) {
	pool := &fakePool{creds: []model.Credential{activeCred("c1")}}
	g := newTestGateway(t, pool, scriptedResponse{
		raw: `[{"id":"UC1","related_usecases":[{"id":"UC3","name":"Report"}]}]`,
	})

	items := []model.UseCase{
		{ID: "UC1", Name: "Login", RelatedUsecases: []model.RelatedRef{{ID: "UC2", Name: "Checkout"}}},
		{ID: "UC2", Name: "Checkout"},
		{ID: "UC3", Name: "Report"},
	}
	out, err := g.LinkRelated(context.Background(), items, true)
	require.NoError(t, err)
	require.Len(t, out[0].RelatedUsecases, 2, "existing links survive")
	assert.Equal(t, "UC2", out[0].RelatedUsecases[0].ID)
	assert.Equal(t, "UC3", out[0].RelatedUsecases[1].ID)
}
