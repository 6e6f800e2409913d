package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"signal-store/apperrors"
	"signal-store/models"
)

// latestOrder ranks rows for "latest": newest timestamp, then highest
// confidence, then the most recently inserted row.
const latestOrder = "timestamp DESC, confidence DESC, id DESC"

// Filter narrows history and count queries. Zero fields do not filter.
type Filter struct {
	Ticker           string
	MetricType       models.MetricType
	Period           string
	SourceDocumentID string
	Since            time.Time
	Until            time.Time
}

func (f Filter) apply(q *gorm.DB, table string) (*gorm.DB, error) {
	if f.Ticker != "" {
		if table == models.TableEntities || table == models.TableRelationships {
			return nil, apperrors.Validation(table, "ticker", "filter not supported")
		}
		q = q.Where("ticker = ?", models.NormalizeTicker(f.Ticker))
	}
	if f.MetricType != "" || f.Period != "" {
		if table != models.TableMetrics {
			return nil, apperrors.Validation(table, "metric_type", "filter only applies to metrics")
		}
		if f.MetricType != "" {
			q = q.Where("metric_type = ?", f.MetricType)
		}
		if f.Period != "" {
			q = q.Where("period = ?", strings.ToUpper(f.Period))
		}
	}
	if f.SourceDocumentID != "" {
		col := "source_document_id"
		if table == models.TableEntities {
			col = "first_seen_source_document_id"
		}
		q = q.Where(col+" = ?", f.SourceDocumentID)
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		if table == models.TableEntities {
			return nil, apperrors.Validation(table, "timestamp", "filter not supported")
		}
		if !f.Since.IsZero() {
			q = q.Where("timestamp >= ?", f.Since.UTC())
		}
		if !f.Until.IsZero() {
			q = q.Where("timestamp <= ?", f.Until.UTC())
		}
	}
	return q, nil
}

func requireTicker(table, ticker string) (string, error) {
	t := models.NormalizeTicker(ticker)
	if t == "" {
		return "", apperrors.Validation(table, "ticker", "is required")
	}
	return t, nil
}

// LatestRating returns the most recent rating for ticker. found is false when
// the ticker has no ratings; that is a normal result, not an error.
func (s *Store) LatestRating(ctx context.Context, ticker string) (*models.Rating, bool, error) {
	t, err := requireTicker(models.TableRatings, ticker)
	if err != nil {
		return nil, false, err
	}
	return latest[models.Rating](ctx, s, Filter{Ticker: t}, models.TableRatings)
}

func (s *Store) LatestPriceTarget(ctx context.Context, ticker string) (*models.PriceTarget, bool, error) {
	t, err := requireTicker(models.TablePriceTargets, ticker)
	if err != nil {
		return nil, false, err
	}
	return latest[models.PriceTarget](ctx, s, Filter{Ticker: t}, models.TablePriceTargets)
}

// LatestMetric returns the most recent metric for ticker. Empty metricType or
// period do not filter.
func (s *Store) LatestMetric(ctx context.Context, ticker string, metricType models.MetricType, period string) (*models.Metric, bool, error) {
	t, err := requireTicker(models.TableMetrics, ticker)
	if err != nil {
		return nil, false, err
	}
	return latest[models.Metric](ctx, s, Filter{Ticker: t, MetricType: metricType, Period: period}, models.TableMetrics)
}

// RatingHistory returns ratings for ticker newest first, at most limit rows.
func (s *Store) RatingHistory(ctx context.Context, ticker string, f Filter, limit int) ([]models.Rating, error) {
	t, err := requireTicker(models.TableRatings, ticker)
	if err != nil {
		return nil, err
	}
	f.Ticker = t
	return history[models.Rating](ctx, s, f, models.TableRatings, limit)
}

func (s *Store) PriceTargetHistory(ctx context.Context, ticker string, f Filter, limit int) ([]models.PriceTarget, error) {
	t, err := requireTicker(models.TablePriceTargets, ticker)
	if err != nil {
		return nil, err
	}
	f.Ticker = t
	return history[models.PriceTarget](ctx, s, f, models.TablePriceTargets, limit)
}

func (s *Store) MetricHistory(ctx context.Context, ticker string, f Filter, limit int) ([]models.Metric, error) {
	t, err := requireTicker(models.TableMetrics, ticker)
	if err != nil {
		return nil, err
	}
	f.Ticker = t
	return history[models.Metric](ctx, s, f, models.TableMetrics, limit)
}

// Count returns the number of rows in table matching f.
func (s *Store) Count(ctx context.Context, table string, f Filter) (int64, error) {
	model, ok := modelFor(table)
	if !ok {
		return 0, apperrors.Validation(table, "", "unknown table")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, err := f.apply(s.db.WithContext(ctx).Model(model), table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func modelFor(table string) (interface{}, bool) {
	switch table {
	case models.TableRatings:
		return &models.Rating{}, true
	case models.TablePriceTargets:
		return &models.PriceTarget{}, true
	case models.TableMetrics:
		return &models.Metric{}, true
	case models.TableEntities:
		return &models.Entity{}, true
	case models.TableRelationships:
		return &models.Relationship{}, true
	}
	return nil, false
}

func latest[T any](ctx context.Context, s *Store, f Filter, table string) (*T, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, err := f.apply(s.db.WithContext(ctx), table)
	if err != nil {
		return nil, false, err
	}

	var row T
	err = q.Order(latestOrder).Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest %s: %w", table, err)
	}
	return &row, true, nil
}

func history[T any](ctx context.Context, s *Store, f Filter, table string, limit int) ([]T, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, err := f.apply(s.db.WithContext(ctx), table)
	if err != nil {
		return nil, err
	}

	out := []T{}
	if err := q.Order(latestOrder).Limit(s.clampLimit(limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("history %s: %w", table, err)
	}
	return out, nil
}
