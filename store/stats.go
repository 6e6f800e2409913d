package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"signal-store/models"
)

type TableStats struct {
	Rows          int64   `json:"rows"`
	Tickers       int64   `json:"tickers,omitempty"`
	AvgConfidence float64 `json:"avg_confidence"`
	LowConfidence int64   `json:"low_confidence"`
}

// Stats summarizes the store per table.
type Stats struct {
	Ticker string                `json:"ticker,omitempty"`
	Tables map[string]TableStats `json:"tables"`
}

// LowConfidenceThreshold marks facts a reader should double-check.
const LowConfidenceThreshold = 0.5

// Stats counts rows, distinct tickers and confidence per table. A non-empty
// ticker restricts the summary to the tables that carry one.
func (s *Store) Stats(ctx context.Context, ticker string) (Stats, error) {
	out := Stats{Ticker: models.NormalizeTicker(ticker), Tables: map[string]TableStats{}}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, table := range models.Tables {
		hasTicker := table == models.TableRatings || table == models.TablePriceTargets || table == models.TableMetrics
		if out.Ticker != "" && !hasTicker {
			continue
		}
		model, _ := modelFor(table)
		base := func() *gorm.DB {
			q := s.db.WithContext(ctx).Model(model)
			if out.Ticker != "" {
				q = q.Where("ticker = ?", out.Ticker)
			}
			return q
		}

		var ts TableStats
		if err := base().Count(&ts.Rows).Error; err != nil {
			return out, fmt.Errorf("stats %s: %w", table, err)
		}
		if err := base().Where("confidence < ?", LowConfidenceThreshold).Count(&ts.LowConfidence).Error; err != nil {
			return out, fmt.Errorf("stats %s: %w", table, err)
		}
		if err := base().Select("COALESCE(AVG(confidence), 0)").Scan(&ts.AvgConfidence).Error; err != nil {
			return out, fmt.Errorf("stats %s: %w", table, err)
		}
		if hasTicker {
			if err := base().Distinct("ticker").Count(&ts.Tickers).Error; err != nil {
				return out, fmt.Errorf("stats %s: %w", table, err)
			}
		}
		out.Tables[table] = ts
	}
	return out, nil
}
