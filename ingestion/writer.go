// Package ingestion writes extracted facts to the structured store and the
// enhanced text to the semantic engine, in that order.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signal-store/apperrors"
	"signal-store/semantic"
	"signal-store/store"
)

// Result reports one document's ingestion.
type Result struct {
	DocumentID string         `json:"source_document_id"`
	Written    map[string]int `json:"written"`
	// SemanticIndexed is false when the engine did not accept the text; the
	// structured write still stands and Divergence says why.
	SemanticIndexed bool                             `json:"semantic_indexed"`
	Divergence      *apperrors.DualWriteInconsistency `json:"-"`
	Error           string                           `json:"error,omitempty"`
}

// Writer coordinates the dual write. The structured store is authoritative:
// its write must succeed for the document to count as ingested, while a
// semantic failure only records a divergence for later replay.
type Writer struct {
	store       *store.Store
	engine      semantic.Engine
	journal     Journal
	log         *zap.Logger
	concurrency int
	now         func() time.Time
}

type Option func(*Writer)

func WithConcurrency(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithJournal(j Journal) Option {
	return func(w *Writer) {
		if j != nil {
			w.journal = j
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWriter returns a writer. A nil store means the structured layer is
// disabled and only the semantic write happens.
func NewWriter(st *store.Store, engine semantic.Engine, log *zap.Logger, opts ...Option) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	if engine == nil {
		engine = semantic.Unavailable{}
	}
	w := &Writer{
		store:       st,
		engine:      engine,
		journal:     NewMemoryJournal(),
		log:         log.Named("ingestion"),
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Journal() Journal { return w.journal }

// Ingest writes one document. Validation errors abort it with nothing written.
// A semantic failure after the structured write returns a nil error and a
// Result carrying the divergence.
func (w *Writer) Ingest(ctx context.Context, doc *Document) (*Result, error) {
	if doc == nil {
		return nil, apperrors.Validation("", "document", "is required")
	}
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return nil, apperrors.Validation("", "source_document_id", "is required")
	}

	res := &Result{DocumentID: doc.ID, Written: map[string]int{}}
	log := w.log.With(zap.String("source_document_id", doc.ID))

	recs := doc.Records()
	if err := doc.checkSources(recs); err != nil {
		return nil, err
	}

	if w.store != nil && len(recs) > 0 {
		batch, err := w.store.UpsertBatch(ctx, recs)
		res.Written = batch.Written
		if err != nil {
			log.Warn("structured write failed", zap.Error(err))
			return res, err
		}
	}

	if strings.TrimSpace(doc.Text) == "" {
		log.Debug("ingested without text", zap.Int("facts", len(recs)))
		return res, nil
	}

	sdoc := doc.semantic()
	if err := w.engine.Ingest(ctx, sdoc); err != nil {
		// Structured rows stay committed even when the caller cancelled.
		res.Divergence = &apperrors.DualWriteInconsistency{SourceDocumentID: doc.ID, Err: err}
		log.Warn("dual-write divergence",
			zap.Int("facts", len(recs)),
			zap.Error(err))
		if jerr := w.journal.Record(context.WithoutCancel(ctx), Divergence{
			DocumentID:  doc.ID,
			Text:        sdoc.Text,
			Metadata:    sdoc.Metadata,
			Reason:      err.Error(),
			LastAttempt: w.now().UTC(),
		}); jerr != nil {
			log.Error("failed to journal divergence", zap.Error(jerr))
		}
		return res, nil
	}

	res.SemanticIndexed = true
	// The engine already has the document; a late cancel must not leave a
	// stale divergence behind.
	if err := w.journal.Resolve(context.WithoutCancel(ctx), doc.ID); err != nil {
		log.Warn("failed to clear journal entry", zap.Error(err))
	}
	log.Info("document ingested", zap.Int("facts", len(recs)))
	return res, nil
}

// IngestAll ingests docs with bounded concurrency. Each document keeps its own
// all-or-nothing validation; one failure does not stop the others. The
// returned error is the first failure, if any.
func (w *Writer) IngestAll(ctx context.Context, docs []*Document) ([]Result, error) {
	results := make([]Result, len(docs))

	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for i, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Error: err.Error()}
				return err
			}
			res, err := w.Ingest(ctx, doc)
			if res != nil {
				results[i] = *res
			}
			if err != nil {
				if doc != nil {
					results[i].DocumentID = doc.ID
				}
				results[i].Error = err.Error()
				return fmt.Errorf("document %d: %w", i, err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// ReplayResult summarizes one reconciliation pass.
type ReplayResult struct {
	Attempted int      `json:"attempted"`
	Resolved  int      `json:"resolved"`
	Failed    int      `json:"failed"`
	Pending   []string `json:"pending,omitempty"`
}

// Replay resubmits every journaled document to the semantic engine and clears
// the ones it accepts. Structured rows are not touched.
func (w *Writer) Replay(ctx context.Context) (ReplayResult, error) {
	var out ReplayResult
	pending, err := w.journal.Pending(ctx)
	if err != nil {
		return out, err
	}

	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Attempted++

		err := w.engine.Ingest(ctx, semantic.Document{ID: d.DocumentID, Text: d.Text, Metadata: d.Metadata})
		if err != nil {
			out.Failed++
			out.Pending = append(out.Pending, d.DocumentID)
			w.log.Warn("replay failed",
				zap.String("source_document_id", d.DocumentID),
				zap.Int("attempts", d.Attempts+1),
				zap.Error(err))
			d.Reason, d.LastAttempt, d.Attempts = err.Error(), w.now().UTC(), 1
			if jerr := w.journal.Record(context.WithoutCancel(ctx), d); jerr != nil {
				w.log.Error("failed to journal divergence", zap.Error(jerr))
			}
			continue
		}

		if err := w.journal.Resolve(context.WithoutCancel(ctx), d.DocumentID); err != nil {
			return out, err
		}
		out.Resolved++
	}

	if out.Attempted > 0 {
		w.log.Info("replay finished",
			zap.Int("attempted", out.Attempted),
			zap.Int("resolved", out.Resolved),
			zap.Int("failed", out.Failed))
	}
	return out, nil
}
