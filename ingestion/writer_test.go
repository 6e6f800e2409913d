package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal-store/apperrors"
	"signal-store/database"
	"signal-store/models"
	"signal-store/semantic"
	"signal-store/store"
)

var t1 = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

type fakeEngine struct {
	mu      sync.Mutex
	fail    error
	ingests map[string]int
}

func newFakeEngine() *fakeEngine { return &fakeEngine{ingests: map[string]int{}} }

func (f *fakeEngine) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeEngine) Ingest(_ context.Context, doc semantic.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.ingests[doc.ID]++
	return nil
}

func (f *fakeEngine) Query(context.Context, semantic.Request) (*semantic.Answer, error) {
	return nil, apperrors.ErrSemanticUnavailable
}

func (f *fakeEngine) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ingests[id]
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "signals.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return store.New(db, zap.NewNop(), store.DefaultOptions())
}

func nvdaDoc(id string) *Document {
	return &Document{
		ID:   id,
		Text: "Analyst reiterates BUY on NVDA citing data-center demand.",
		Ratings: []models.Rating{{
			Ticker: "NVDA", RatingValue: models.RatingBuy, Timestamp: t1,
			SourceDocumentID: id, Confidence: models.Float(0.87),
		}},
		Metrics: []models.Metric{{
			Ticker: "NVDA", MetricType: models.MetricOperatingMargin, Value: 62, Unit: "%",
			Period: "Q2-2024", Timestamp: t1, SourceDocumentID: id, Confidence: models.Float(0.8),
		}},
		Entities: []models.Entity{{
			EntityType: models.EntityCompany, DisplayName: "NVIDIA Corp.",
			FirstSeenSourceDocumentID: id, Confidence: models.Float(0.95),
		}},
	}
}

func TestIngest_WritesBothLayers(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := newFakeEngine()
	w := NewWriter(st, eng, zap.NewNop())

	res, err := w.Ingest(ctx, nvdaDoc("doc1"))
	require.NoError(t, err)
	assert.True(t, res.SemanticIndexed)
	assert.Nil(t, res.Divergence)
	assert.Equal(t, 1, res.Written[models.TableRatings])
	assert.Equal(t, 1, res.Written[models.TableMetrics])
	assert.Equal(t, 1, eng.count("doc1"))

	r, found, err := st.LatestRating(ctx, "NVDA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.RatingBuy, r.RatingValue)
	assert.Equal(t, "doc1", r.SourceDocumentID)
}

func TestIngest_IdempotentPerDocument(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	w := NewWriter(st, newFakeEngine(), zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := w.Ingest(ctx, nvdaDoc("doc1"))
		require.NoError(t, err)
	}
	for _, table := range []string{models.TableRatings, models.TableMetrics, models.TableEntities} {
		n, err := st.Count(ctx, table, store.Filter{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n, table)
	}
}

func TestIngest_ValidationAbortsWholeDocument(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := newFakeEngine()
	w := NewWriter(st, eng, zap.NewNop())

	doc := nvdaDoc("doc1")
	doc.Metrics[0].Confidence = nil

	_, err := w.Ingest(ctx, doc)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	for _, table := range models.Tables {
		n, err := st.Count(ctx, table, store.Filter{})
		require.NoError(t, err)
		assert.Zero(t, n, table)
	}
	assert.Zero(t, eng.count("doc1"))
}

func TestIngest_SourceMustMatchDocument(t *testing.T) {
	w := NewWriter(newTestStore(t), newFakeEngine(), zap.NewNop())

	doc := nvdaDoc("doc1")
	doc.Ratings[0].SourceDocumentID = "doc2"
	_, err := w.Ingest(context.Background(), doc)
	assert.True(t, apperrors.IsValidation(err))

	doc = nvdaDoc("doc1")
	doc.Ratings[0].SourceDocumentID = " "
	_, err = w.Ingest(context.Background(), doc)
	assert.True(t, apperrors.IsValidation(err))

	_, err = w.Ingest(context.Background(), &Document{ID: ""})
	assert.True(t, apperrors.IsValidation(err))
}

func TestIngest_SemanticFailureDiverges(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := newFakeEngine()
	eng.setFail(fmt.Errorf("ingest: %w", apperrors.ErrSemanticUnavailable))
	journal := NewMemoryJournal()
	w := NewWriter(st, eng, zap.NewNop(), WithJournal(journal))

	res, err := w.Ingest(ctx, nvdaDoc("doc1"))
	require.NoError(t, err)
	assert.False(t, res.SemanticIndexed)
	require.NotNil(t, res.Divergence)
	assert.ErrorIs(t, res.Divergence, apperrors.ErrSemanticUnavailable)

	_, found, err := st.LatestRating(ctx, "NVDA")
	require.NoError(t, err)
	assert.True(t, found)

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "doc1", pending[0].DocumentID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Contains(t, pending[0].Text, "NVDA")
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()
	eng.setFail(apperrors.ErrSemanticTimeout)
	journal := NewMemoryJournal()
	w := NewWriter(newTestStore(t), eng, zap.NewNop(), WithJournal(journal))

	_, err := w.Ingest(ctx, nvdaDoc("doc1"))
	require.NoError(t, err)
	_, err = w.Ingest(ctx, nvdaDoc("doc2"))
	require.NoError(t, err)

	out, err := w.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempted)
	assert.Equal(t, 2, out.Failed)

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[0].Attempts)

	eng.setFail(nil)
	out, err = w.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Resolved)
	assert.Equal(t, 1, eng.count("doc1"))
	assert.Equal(t, 1, eng.count("doc2"))

	pending, err = journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngest_SuccessClearsEarlierDivergence(t *testing.T) {
	ctx := context.Background()
	eng := newFakeEngine()
	eng.setFail(apperrors.ErrSemanticUnavailable)
	journal := NewMemoryJournal()
	w := NewWriter(newTestStore(t), eng, zap.NewNop(), WithJournal(journal))

	_, err := w.Ingest(ctx, nvdaDoc("doc1"))
	require.NoError(t, err)
	eng.setFail(nil)
	_, err = w.Ingest(ctx, nvdaDoc("doc1"))
	require.NoError(t, err)

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// cancelOnIngest accepts the document and then cancels the caller's context,
// as a client disconnecting right after the engine answered would.
type cancelOnIngest struct {
	*fakeEngine
	cancel context.CancelFunc
}

func (c *cancelOnIngest) Ingest(ctx context.Context, doc semantic.Document) error {
	err := c.fakeEngine.Ingest(ctx, doc)
	c.cancel()
	return err
}

// ctxJournal refuses to resolve on a finished context like a network-backed
// journal would.
type ctxJournal struct {
	*MemoryJournal
}

func (j ctxJournal) Resolve(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.MemoryJournal.Resolve(ctx, documentID)
}

func TestIngest_ResolveSurvivesLateCancel(t *testing.T) {
	journal := ctxJournal{NewMemoryJournal()}
	require.NoError(t, journal.Record(context.Background(), Divergence{DocumentID: "doc1", Text: "x", LastAttempt: t1}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := &cancelOnIngest{fakeEngine: newFakeEngine(), cancel: cancel}
	w := NewWriter(newTestStore(t), eng, zap.NewNop(), WithJournal(journal))

	res, err := w.Ingest(ctx, nvdaDoc("doc1"))
	require.NoError(t, err)
	assert.True(t, res.SemanticIndexed)
	assert.Error(t, ctx.Err())

	pending, err := journal.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngest_StoreDisabled(t *testing.T) {
	eng := newFakeEngine()
	w := NewWriter(nil, eng, zap.NewNop())

	res, err := w.Ingest(context.Background(), nvdaDoc("doc1"))
	require.NoError(t, err)
	assert.True(t, res.SemanticIndexed)
	assert.Empty(t, res.Written)
	assert.Equal(t, 1, eng.count("doc1"))
}

func TestIngestAll(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	w := NewWriter(st, newFakeEngine(), zap.NewNop(), WithConcurrency(3))

	docs := make([]*Document, 0, 8)
	for i := 0; i < 8; i++ {
		docs = append(docs, nvdaDoc(fmt.Sprintf("doc%d", i)))
	}
	bad := nvdaDoc("bad")
	bad.Ratings[0].RatingValue = "MAYBE"
	docs = append(docs, bad)

	results, err := w.IngestAll(ctx, docs)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	require.Len(t, results, 9)
	assert.Equal(t, "bad", results[8].DocumentID)
	assert.NotEmpty(t, results[8].Error)
	for _, r := range results[:8] {
		assert.Empty(t, r.Error)
		assert.True(t, r.SemanticIndexed)
	}

	n, err := st.Count(ctx, models.TableRatings, store.Filter{Ticker: "NVDA"})
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)
}

func TestMemoryJournal_Order(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.Record(ctx, Divergence{DocumentID: "b", LastAttempt: t1.Add(time.Minute)}))
	require.NoError(t, j.Record(ctx, Divergence{DocumentID: "a", LastAttempt: t1}))
	require.NoError(t, j.Record(ctx, Divergence{DocumentID: "b", LastAttempt: t1.Add(2 * time.Minute)}))

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].DocumentID)
	assert.Equal(t, "b", pending[1].DocumentID)
	assert.Equal(t, 2, pending[1].Attempts)
	assert.Equal(t, t1.Add(time.Minute), pending[1].FirstSeen)
}

func TestRedisJournal(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr)
	require.NoError(t, err)
	defer client.Close()

	key := fmt.Sprintf("signal-store:test:%d", time.Now().UnixNano())
	defer client.Del(ctx, key)
	j := NewRedisJournal(client, key)

	require.NoError(t, j.Record(ctx, Divergence{DocumentID: "doc1", Text: "x", LastAttempt: t1}))
	require.NoError(t, j.Record(ctx, Divergence{DocumentID: "doc1", Text: "x", LastAttempt: t1.Add(time.Minute)}))

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.True(t, pending[0].FirstSeen.Equal(t1))

	require.NoError(t, j.Resolve(ctx, "doc1"))
	pending, err = j.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.Record(ctx, Divergence{DocumentID: "doc2", Text: "y", LastAttempt: t1}))
		}()
	}
	wg.Wait()
	pending, err = j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 8, pending[0].Attempts)
}
