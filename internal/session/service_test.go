package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/redpen/internal/analysis"
	"github.com/abhisek/redpen/internal/extract"
	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/llm"
	"github.com/abhisek/redpen/internal/revision"
	"github.com/abhisek/redpen/internal/store"
)

const essay = "This is a test this is bad."

const findingsJSON = `[{"name":"run-on sentence","status":"yes","location":"S1","excerpt":"This is a test this is bad.","explanation":"x","suggestion":"split"},
{"name":"tense","status":"no","location":"","excerpt":"","explanation":"","suggestion":""}]`

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store *store.Store
	mock  *llm.MockProvider
	clock *fakeClock
	svc   *Service
}

func newFixture(t *testing.T, responses ...llm.MockResponse) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "redpen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store: s,
		mock:  llm.NewMockProvider(responses...),
		clock: &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = f.service()
	return f
}

// service returns a fresh Service over the fixture's store, as after a
// process restart.
func (f *fixture) service() *Service {
	ids := 0
	return NewService(Deps{
		Sessions: f.store.SessionRepo(),
		Journal:  f.store.EventRepo(),
		Analyzer: analysis.New(llm.NewGateway(f.mock), analysis.Config{StepModel: "ft:step", ErrorModel: "ft:error"}),
		Now:      f.clock.Now,
		NewID: func() string {
			ids++
			return "sess-" + string(rune('0'+ids))
		},
	})
}

func upload() Upload {
	return Upload{Filename: "essay.txt", Content: []byte(essay), Student: ledger.Student{Name: "ana", ID: "s1"}}
}

func TestRevisionRoundTrip(t *testing.T) {
	f := newFixture(t,
		llm.TextResponse(`{"steps":[]}`),
		llm.TextResponse(findingsJSON),
		llm.TextResponse(`{"fixed":"yes","comment":"ok"}`),
	)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, upload())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rec.ID)
	assert.Equal(t, essay, rec.OriginalText)

	rec, res, err := f.svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.FindingsParsed)
	require.Len(t, rec.Findings, 2)

	st, err := f.svc.Start(ctx, rec.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.PhaseEditing, st.Phase)
	assert.Equal(t, essay, st.Draft)

	f.clock.Advance(5 * time.Second)
	_, err = f.svc.SetDraft(ctx, rec.ID, 0, "This is a test.")
	require.NoError(t, err)

	entry, err := f.svc.Submit(ctx, rec.ID, 0, "This is a test. This is bad.")
	require.NoError(t, err)
	require.NotNil(t, entry.TimeUsedS)
	assert.Equal(t, 5.0, *entry.TimeUsedS)
	assert.Equal(t, ledger.FixedYes, entry.AICheck.Fixed)

	// A new service sees the persisted state.
	rec, err = f.service().Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, rec.Logs, 1)
	assert.Equal(t, ledger.ActionSubmit, rec.Logs[0].Action)
	assert.Equal(t, ledger.PhaseIdle, rec.States[0].Phase)
	assert.Nil(t, rec.States[0].StartTime)

	journal, err := f.store.EventRepo().QueryEditLogs(ctx, rec.ID, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, journal, 1)
	assert.Equal(t, "run-on sentence", journal[0].Entry.ErrorName)

	models := []string{}
	for _, c := range f.mock.Calls {
		assert.NotEmpty(t, c.Model)
		models = append(models, c.Model)
	}
	assert.Equal(t, []string{"ft:step", "ft:error", "ft:error"}, models)
}

func TestEditSurvivesRestart(t *testing.T) {
	f := newFixture(t, llm.TextResponse("steps"), llm.TextResponse(findingsJSON))
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, upload())
	require.NoError(t, err)
	_, _, err = f.svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, rec.ID, 1)
	require.NoError(t, err)

	f.clock.Advance(1230 * time.Millisecond)
	entry, err := f.service().Abandon(ctx, rec.ID, 1, "edited")
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionAbandon, entry.Action)
	assert.Equal(t, 1.23, *entry.TimeUsedS)
	assert.Nil(t, entry.AICheck)
}

func TestSubmitWithoutStart(t *testing.T) {
	f := newFixture(t, llm.TextResponse("steps"), llm.TextResponse(findingsJSON))
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, upload())
	require.NoError(t, err)
	_, _, err = f.svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, rec.ID, 0, "x")
	assert.ErrorIs(t, err, revision.ErrNotEditing)
	_, err = f.svc.Abandon(ctx, rec.ID, 0, "x")
	assert.ErrorIs(t, err, revision.ErrNotEditing)
	_, err = f.svc.Start(ctx, rec.ID, 7)
	assert.ErrorIs(t, err, ledger.ErrNoFinding)

	rec, err = f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.Logs)
	assert.Equal(t, 2, f.mock.CallCount(), "no verification call without an edit")
}

func TestSubmitGatewayFailureIsLogged(t *testing.T) {
	f := newFixture(t,
		llm.TextResponse("steps"),
		llm.TextResponse(findingsJSON),
		llm.ErrorResponse(&llm.ErrProviderUnavailable{Err: errors.New("connection reset")}),
	)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, upload())
	require.NoError(t, err)
	_, _, err = f.svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, rec.ID, 0)
	require.NoError(t, err)

	entry, err := f.svc.Submit(ctx, rec.ID, 0, "This is a test. This is bad.")
	require.NoError(t, err)
	assert.Equal(t, ledger.FixedError, entry.AICheck.Fixed)
	assert.Contains(t, entry.AICheck.Comment, "connection reset")
}

func TestCreateRejectsBadUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, Upload{Filename: "essay.odt", Content: []byte("x")})
	assert.ErrorIs(t, err, extract.ErrUnsupported)

	_, err = f.svc.Create(ctx, Upload{Filename: "essay.txt", Content: []byte("\xff\xfe")})
	assert.ErrorIs(t, err, ErrEmptyText)
	var ee *extract.Error
	assert.ErrorAs(t, err, &ee)

	list, err := f.svc.List(ctx, store.QueryOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAnalyzeFailureKeepsSession(t *testing.T) {
	f := newFixture(t,
		llm.TextResponse("raw steps"),
		llm.ErrorResponse(&llm.ErrNotConfigured{Provider: "openai"}),
	)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, upload())
	require.NoError(t, err)

	_, _, err = f.svc.Analyze(ctx, rec.ID)
	var se *analysis.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, analysis.StageErrorScan, se.Stage)

	stored, err := f.service().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "raw steps", stored.StepOutput)
	assert.Equal(t, essay, stored.OriginalText)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshotsPruned(t *testing.T) {
	f := newFixture(t, llm.TextResponse("steps"), llm.TextResponse(findingsJSON))
	f.svc.deps.SnapshotKeep = 2
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, upload())
	require.NoError(t, err)
	_, _, err = f.svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.svc.Start(ctx, rec.ID, 0)
		require.NoError(t, err)
	}

	var n int
	require.NoError(t, f.store.DB().QueryRow(`SELECT COUNT(*) FROM session_snapshots WHERE session_id = ?`, rec.ID).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestExport(t *testing.T) {
	f := newFixture(t, llm.TextResponse("steps"), llm.TextResponse("not json at all"))
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, upload())
	require.NoError(t, err)
	_, res, err := f.svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, res.FindingsParsed)

	b, err := f.svc.Export(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "not json at all", b.ErrorOutput)
	assert.Empty(t, b.Findings)
	assert.NotNil(t, b.Findings)
}

// gatedAnalyzer holds every verification until release is closed.
type gatedAnalyzer struct {
	*analysis.Analyzer
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAnalyzer) Verify(ctx context.Context, f ledger.Finding, revised string) ledger.VerifyResult {
	close(g.entered)
	<-g.release
	return ledger.VerifyResult{Fixed: ledger.FixedYes, Comment: "split"}
}

func newGatedService(f *fixture) (*Service, *gatedAnalyzer) {
	g := &gatedAnalyzer{
		Analyzer: analysis.New(llm.NewGateway(f.mock), analysis.Config{StepModel: "ft:step", ErrorModel: "ft:error"}),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	svc := NewService(Deps{
		Sessions: f.store.SessionRepo(),
		Analyzer: g,
		Now:      f.clock.Now,
		NewID:    func() string { return "sess-g" },
	})
	return svc, g
}

type submitResult struct {
	entry ledger.EditLogEntry
	err   error
}

func startPendingSubmit(t *testing.T, svc *Service, g *gatedAnalyzer, id string) <-chan submitResult {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Start(ctx, id, 0)
	require.NoError(t, err)

	done := make(chan submitResult, 1)
	go func() {
		entry, err := svc.Submit(ctx, id, 0, "This is a test. This is bad.")
		done <- submitResult{entry, err}
	}()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("verification never started")
	}
	return done
}

func TestAbandonDuringPendingSubmit(t *testing.T) {
	f := newFixture(t, llm.TextResponse(`{"steps":[]}`), llm.TextResponse(findingsJSON))
	svc, g := newGatedService(f)
	ctx := context.Background()

	rec, err := svc.Create(ctx, upload())
	require.NoError(t, err)
	_, _, err = svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)

	done := startPendingSubmit(t, svc, g, rec.ID)

	st, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PhaseIdle, st.States[0].Phase)

	_, err = svc.Abandon(ctx, rec.ID, 0, "gave up")
	assert.ErrorIs(t, err, revision.ErrNotEditing)
	_, err = svc.Submit(ctx, rec.ID, 0, "again")
	assert.ErrorIs(t, err, revision.ErrNotEditing)

	close(g.release)
	res := <-done
	require.NoError(t, res.err)

	rec, err = svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, rec.Logs, 1)
	assert.Equal(t, ledger.ActionSubmit, rec.Logs[0].Action)
	assert.Equal(t, ledger.FixedYes, rec.Logs[0].AICheck.Fixed)
}

func TestReanalyzeDuringPendingSubmit(t *testing.T) {
	f := newFixture(t,
		llm.TextResponse(`{"steps":[]}`),
		llm.TextResponse(findingsJSON),
		llm.TextResponse(`{"steps":[]}`),
		llm.TextResponse(`[]`),
	)
	svc, g := newGatedService(f)
	ctx := context.Background()

	rec, err := svc.Create(ctx, upload())
	require.NoError(t, err)
	_, _, err = svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)

	done := startPendingSubmit(t, svc, g, rec.ID)

	rec, _, err = svc.Analyze(ctx, rec.ID)
	require.NoError(t, err)
	require.Empty(t, rec.Findings)

	close(g.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "run-on sentence", res.entry.ErrorName)

	// The entry is persisted too.
	rec, err = f.service().Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, rec.Logs, 1)
	assert.Equal(t, "This is a test. This is bad.", rec.Logs[0].ExcerptNew)
	assert.Equal(t, ledger.FixedYes, rec.Logs[0].AICheck.Fixed)
}
