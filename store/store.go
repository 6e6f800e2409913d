package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signal-store/models"
)

// Options tune the store's read contract.
type Options struct {
	// QueryTimeout bounds every store operation.
	QueryTimeout time.Duration
	// HistoryDefault applies when a history call passes limit <= 0.
	HistoryDefault int
	// HistoryMax caps any history limit.
	HistoryMax int
}

func DefaultOptions() Options {
	return Options{
		QueryTimeout:   5 * time.Second,
		HistoryDefault: 20,
		HistoryMax:     500,
	}
}

// Store is the structured signal store. It owns every persisted row. The same
// Store value is shared by the ingestion writer and the query executor.
type Store struct {
	db   *gorm.DB
	log  *zap.Logger
	opts Options
}

func New(db *gorm.DB, log *zap.Logger, opts Options) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = def.QueryTimeout
	}
	if opts.HistoryDefault <= 0 {
		opts.HistoryDefault = def.HistoryDefault
	}
	if opts.HistoryMax < opts.HistoryDefault {
		opts.HistoryMax = opts.HistoryDefault
	}
	return &Store{db: db, log: log.Named("store"), opts: opts}
}

// DB exposes the underlying handle for tests and migrations.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.QueryTimeout)
}

func (s *Store) clampLimit(limit int) int {
	if limit <= 0 {
		return s.opts.HistoryDefault
	}
	if limit > s.opts.HistoryMax {
		return s.opts.HistoryMax
	}
	return limit
}

// Upsert validates rec and inserts it, or overwrites the row that shares its
// natural key. Validation failures are *apperrors.ValidationError and write
// nothing.
func (s *Store) Upsert(ctx context.Context, rec models.Signal) error {
	if err := models.Validate(rec); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertOne(tx, rec)
	})
	if err != nil {
		s.log.Error("upsert failed",
			zap.String("table", rec.TableName()),
			zap.String("source_document_id", rec.SourceID()),
			zap.Error(err))
		return fmt.Errorf("upsert %s: %w", rec.TableName(), err)
	}
	return nil
}

// BatchResult counts rows written per table.
type BatchResult struct {
	Written map[string]int
}

func (r BatchResult) Total() int {
	n := 0
	for _, c := range r.Written {
		n += c
	}
	return n
}

// UpsertBatch validates every record before writing any of them, then writes
// table by table with one transaction per table. A validation failure aborts
// the batch with nothing written. Tables are not atomic with each other.
func (s *Store) UpsertBatch(ctx context.Context, recs []models.Signal) (BatchResult, error) {
	res := BatchResult{Written: map[string]int{}}

	byTable := make(map[string][]models.Signal, len(models.Tables))
	for i, rec := range recs {
		if err := models.Validate(rec); err != nil {
			return res, fmt.Errorf("record %d: %w", i, err)
		}
		byTable[rec.TableName()] = append(byTable[rec.TableName()], rec)
	}

	for _, table := range models.Tables {
		rows := byTable[table]
		if len(rows) == 0 {
			continue
		}
		if err := s.writeTable(ctx, rows); err != nil {
			s.log.Error("batch upsert failed",
				zap.String("table", table),
				zap.Int("rows", len(rows)),
				zap.Error(err))
			return res, fmt.Errorf("upsert %s: %w", table, err)
		}
		res.Written[table] = len(rows)
	}

	s.log.Debug("batch upserted", zap.Int("rows", res.Total()))
	return res, nil
}

func (s *Store) writeTable(ctx context.Context, rows []models.Signal) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range rows {
			if err := upsertOne(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertOne(tx *gorm.DB, rec models.Signal) error {
	key := rec.NaturalKey()
	cols := make([]clause.Column, len(key))
	for i, name := range key {
		cols[i] = clause.Column{Name: name}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(rec.UpdatableColumns()),
	}).Create(rec).Error
}
