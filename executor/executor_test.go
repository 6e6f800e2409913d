package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal-store/apperrors"
	"signal-store/database"
	"signal-store/ingestion"
	"signal-store/models"
	"signal-store/router"
	"signal-store/semantic"
	"signal-store/store"
)

var t1 = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

// scriptedEngine answers from a per-mode table. A mode missing from the table
// blocks until the call's context ends.
type scriptedEngine struct {
	mu       sync.Mutex
	answers  map[semantic.Mode]string
	requests []semantic.Request
}

func (s *scriptedEngine) Ingest(context.Context, semantic.Document) error { return nil }

func (s *scriptedEngine) Query(ctx context.Context, req semantic.Request) (*semantic.Answer, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	text, ok := s.answers[req.Mode]
	s.mu.Unlock()

	if ok {
		return &semantic.Answer{Text: text, Sources: []string{"doc-sem"}, Confidence: 0.6, Mode: req.Mode}, nil
	}
	<-ctx.Done()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s: %w", req.Mode, apperrors.ErrSemanticTimeout)
	}
	return nil, ctx.Err()
}

func (s *scriptedEngine) calls() []semantic.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]semantic.Request(nil), s.requests...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "signals.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return store.New(db, zap.NewNop(), store.DefaultOptions())
}

func fixedRouter() *router.Router {
	return router.New(router.WithClock(func() time.Time { return t1 }))
}

func seedRating(t *testing.T, st *store.Store) {
	t.Helper()
	w := ingestion.NewWriter(st, &scriptedEngine{}, zap.NewNop())
	_, err := w.Ingest(context.Background(), &ingestion.Document{
		ID:   "doc1",
		Text: "NVDA reiterated at BUY.",
		Ratings: []models.Rating{{
			Ticker: "NVDA", RatingValue: models.RatingBuy, Timestamp: t1,
			SourceDocumentID: "doc1", Confidence: models.Float(0.87),
		}},
	})
	require.NoError(t, err)
}

func states(trace []Transition) []State {
	out := make([]State, 0, len(trace))
	for _, tr := range trace {
		out = append(out, tr.To)
	}
	return out
}

func TestExecute_StructuredRatingEndToEnd(t *testing.T) {
	st := newTestStore(t)
	seedRating(t, st)
	eng := &scriptedEngine{}
	ex := New(fixedRouter(), st, eng, zap.NewNop(), DefaultOptions())

	start := time.Now()
	resp, err := ex.Execute(context.Background(), "What is NVDA's latest rating?")
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, router.StructuredRating, resp.Decision.Type)
	assert.GreaterOrEqual(t, resp.Decision.Confidence, 0.5)
	assert.Equal(t, StatusComplete, resp.Status)
	require.Len(t, resp.Facts, 1)
	f := resp.Facts[0]
	assert.Equal(t, "NVDA", f.Ticker)
	assert.Equal(t, "BUY", f.Rating)
	assert.InDelta(t, 0.87, f.Confidence, 1e-9)
	assert.Equal(t, "doc1", f.Source)
	assert.Nil(t, resp.Narrative)
	assert.Empty(t, eng.calls())
	assert.Less(t, elapsed, 100*time.Millisecond)
	assert.Equal(t, []State{StateStructured, StateComplete}, states(resp.Trace))
}

func TestExecute_StructuredNotFoundFallsBackToSemantic(t *testing.T) {
	st := newTestStore(t)
	eng := &scriptedEngine{answers: map[semantic.Mode]string{semantic.ModeHybrid: "No rating on record; coverage initiated last week."}}
	ex := New(fixedRouter(), st, eng, zap.NewNop(), DefaultOptions())

	resp, err := ex.Execute(context.Background(), "What is AMD's latest rating?")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, resp.Status)
	assert.Empty(t, resp.Facts)
	require.NotNil(t, resp.Narrative)
	assert.Equal(t, semantic.ModeHybrid, resp.Narrative.Mode)
	assert.Equal(t, []State{StateStructured, Attempting(semantic.ModeHybrid), StateComplete}, states(resp.Trace))
	assert.Equal(t, "structured lookup found nothing", resp.Trace[1].Reason)
}

func TestExecute_HybridScreenPassesCandidates(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	for _, m := range []struct {
		ticker string
		value  float64
	}{{"NVDA", 62}, {"AMD", 22}, {"AVGO", 58}} {
		require.NoError(t, st.Upsert(ctx, &models.Metric{
			Ticker: m.ticker, MetricType: models.MetricOperatingMargin, Value: m.value, Unit: "%",
			Period: "Q2-2024", Timestamp: t1, SourceDocumentID: "doc-" + m.ticker, Confidence: models.Float(0.9),
		}))
	}
	eng := &scriptedEngine{answers: map[semantic.Mode]string{semantic.ModeHybrid: "Both benefit from AI accelerator pricing power."}}
	ex := New(fixedRouter(), st, eng, zap.NewNop(), DefaultOptions())

	resp, err := ex.Execute(ctx, "Which tickers have operating margin > 50% and why?")
	require.NoError(t, err)

	assert.Equal(t, router.Hybrid, resp.Decision.Type)
	assert.Equal(t, StatusComplete, resp.Status)
	assert.Equal(t, []string{"NVDA", "AVGO"}, resp.Candidates)
	require.Len(t, resp.Facts, 2)
	assert.Equal(t, "doc-NVDA", resp.Facts[0].Source)
	require.NotNil(t, resp.Narrative)
	assert.Equal(t, []string{"doc-sem"}, resp.Narrative.Sources)

	calls := eng.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Which tickers have operating margin > 50% and why?", calls[0].Text)
	require.Len(t, calls[0].Context, 2)
	assert.Contains(t, calls[0].Context[0], "NVDA")
	assert.Contains(t, calls[0].Context[0], "62%")
}

func TestExecute_CascadeWalksModesInOrder(t *testing.T) {
	eng := &scriptedEngine{answers: map[semantic.Mode]string{semantic.ModeNaive: "Guidance cut on export rules."}}
	opts := DefaultOptions()
	opts.Timeout = 2 * time.Second
	opts.SemanticTimeout = 50 * time.Millisecond
	ex := New(fixedRouter(), newTestStore(t), eng, zap.NewNop(), opts)

	resp, err := ex.Execute(context.Background(), "Why did NVDA stock drop?")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, resp.Status)
	require.NotNil(t, resp.Narrative)
	assert.Equal(t, semantic.ModeNaive, resp.Narrative.Mode)
	assert.Equal(t, []State{
		Attempting(semantic.ModeHybrid),
		Attempting(semantic.ModeLocal),
		Attempting(semantic.ModeNaive),
		StateComplete,
	}, states(resp.Trace))

	modes := []semantic.Mode{}
	for _, c := range eng.calls() {
		modes = append(modes, c.Mode)
	}
	assert.Equal(t, []semantic.Mode{semantic.ModeHybrid, semantic.ModeLocal, semantic.ModeNaive}, modes)
}

func TestExecute_CascadeTerminatesWithStructuredAnswer(t *testing.T) {
	st := newTestStore(t)
	seedRating(t, st)
	eng := &scriptedEngine{}
	opts := DefaultOptions()
	opts.Timeout = 300 * time.Millisecond
	opts.SemanticTimeout = 10 * time.Second
	opts.StoreTimeout = 50 * time.Millisecond
	ex := New(fixedRouter(), st, eng, zap.NewNop(), opts)

	start := time.Now()
	resp, err := ex.Execute(context.Background(), "Why did NVDA stock drop?")
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, StatusDegraded, resp.Status)
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, "BUY", resp.Facts[0].Rating)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, StateDegraded, resp.Trace[len(resp.Trace)-1].To)
}

func TestExecute_StructuredNotFoundDegradesToOtherTickerFacts(t *testing.T) {
	st := newTestStore(t)
	seedRating(t, st)
	opts := DefaultOptions()
	opts.Timeout = 300 * time.Millisecond
	ex := New(fixedRouter(), st, semantic.Unavailable{}, zap.NewNop(), opts)

	resp, err := ex.Execute(context.Background(), "What is NVDA's price target?")
	require.NoError(t, err)

	assert.Equal(t, router.StructuredPriceTarget, resp.Decision.Type)
	assert.Equal(t, StatusDegraded, resp.Status)
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, KindRating, resp.Facts[0].Kind)
	assert.Equal(t, "BUY", resp.Facts[0].Rating)
	assert.Equal(t, StateDegraded, resp.Trace[len(resp.Trace)-1].To)
}

func TestExecute_BothLayersDownFails(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = 200 * time.Millisecond
	ex := New(fixedRouter(), newTestStore(t), semantic.Unavailable{}, zap.NewNop(), opts)

	resp, err := ex.Execute(context.Background(), "Explain the AI chip thesis for AMD")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Empty(t, resp.Facts)
	assert.Contains(t, resp.Error, "unavailable")
	assert.Equal(t, []State{
		Attempting(semantic.ModeHybrid),
		Attempting(semantic.ModeLocal),
		Attempting(semantic.ModeNaive),
		StateFailed,
	}, states(resp.Trace))
}

func TestExecute_CallerCancellation(t *testing.T) {
	ex := New(fixedRouter(), newTestStore(t), &scriptedEngine{}, zap.NewNop(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := ex.Execute(ctx, "Why did NVDA stock drop?")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_StoreDisabledGoesSemantic(t *testing.T) {
	eng := &scriptedEngine{answers: map[semantic.Mode]string{semantic.ModeHybrid: "BUY per latest note."}}
	r := router.New(router.WithStructuredEnabled(false))
	ex := New(r, nil, eng, zap.NewNop(), DefaultOptions())

	resp, err := ex.Execute(context.Background(), "What is NVDA's latest rating?")
	require.NoError(t, err)
	assert.Equal(t, router.TargetSemantic, resp.Decision.Target)
	assert.Equal(t, StatusComplete, resp.Status)
	require.NotNil(t, resp.Narrative)
	assert.Len(t, eng.calls(), 1)
}

func TestExecute_InvalidQuery(t *testing.T) {
	ex := New(fixedRouter(), newTestStore(t), &scriptedEngine{}, zap.NewNop(), DefaultOptions())
	_, err := ex.Execute(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAttemptBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.SemanticTimeout = time.Second
	opts.StoreTimeout = 100 * time.Millisecond
	ex := New(fixedRouter(), nil, nil, nil, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 900*time.Millisecond)
	defer cancel()

	b := ex.attemptBudget(ctx, 3, false)
	assert.InDelta(t, float64(300*time.Millisecond), float64(b), float64(20*time.Millisecond))

	b = ex.attemptBudget(ctx, 2, true)
	assert.InDelta(t, float64(400*time.Millisecond), float64(b), float64(20*time.Millisecond))

	assert.Equal(t, time.Second, ex.attemptBudget(context.Background(), 1, false))
}
