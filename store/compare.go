package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"signal-store/apperrors"
	"signal-store/models"
)

// MetricDelta is the change of one metric between two periods, measured from
// PeriodA to PeriodB.
type MetricDelta struct {
	Ticker        string            `json:"ticker"`
	MetricType    models.MetricType `json:"metric_type"`
	Unit          string            `json:"unit"`
	PeriodA       string            `json:"period_a"`
	PeriodB       string            `json:"period_b"`
	ValueA        decimal.Decimal   `json:"value_a"`
	ValueB        decimal.Decimal   `json:"value_b"`
	AbsoluteDelta decimal.Decimal   `json:"absolute_delta"`
	// PercentDelta is nil when ValueA is zero.
	PercentDelta *decimal.Decimal `json:"percent_delta"`
	SourceA      string           `json:"source_a"`
	SourceB      string           `json:"source_b"`
	// Confidence is the lower of the two inputs' confidences.
	Confidence float64 `json:"confidence"`
}

// Compare diffs the latest metricType values of ticker for periodA and
// periodB. found is false when either period has no value. Values in
// different units fail with *apperrors.UnitMismatchError; nothing is converted.
func (s *Store) Compare(ctx context.Context, ticker string, metricType models.MetricType, periodA, periodB string) (*MetricDelta, bool, error) {
	if !metricType.Valid() {
		return nil, false, apperrors.Validation(models.TableMetrics, "metric_type", fmt.Sprintf("unrecognized value %q", metricType))
	}
	periodA, periodB = strings.ToUpper(strings.TrimSpace(periodA)), strings.ToUpper(strings.TrimSpace(periodB))
	if periodA == "" || periodB == "" {
		return nil, false, apperrors.Validation(models.TableMetrics, "period", "both periods are required")
	}

	a, okA, err := s.LatestMetric(ctx, ticker, metricType, periodA)
	if err != nil {
		return nil, false, err
	}
	b, okB, err := s.LatestMetric(ctx, ticker, metricType, periodB)
	if err != nil {
		return nil, false, err
	}
	if !okA || !okB {
		return nil, false, nil
	}

	unitA, unitB := models.NormalizeUnit(a.Unit), models.NormalizeUnit(b.Unit)
	if unitA == unitB {
		// A period may hold rows from several documents; any of them in
		// another unit makes the comparison ambiguous.
		units, err := s.periodUnits(ctx, a.Ticker, metricType, periodA, periodB)
		if err != nil {
			return nil, false, err
		}
		for _, u := range units {
			if u != unitA {
				unitB = u
				break
			}
		}
	}
	if unitA != unitB {
		return nil, false, &apperrors.UnitMismatchError{
			Ticker:     a.Ticker,
			MetricType: string(metricType),
			UnitA:      unitA,
			UnitB:      unitB,
		}
	}

	va, vb := decimal.NewFromFloat(a.Value), decimal.NewFromFloat(b.Value)
	d := &MetricDelta{
		Ticker:        a.Ticker,
		MetricType:    metricType,
		Unit:          unitA,
		PeriodA:       periodA,
		PeriodB:       periodB,
		ValueA:        va,
		ValueB:        vb,
		AbsoluteDelta: vb.Sub(va),
		SourceA:       a.SourceDocumentID,
		SourceB:       b.SourceDocumentID,
		Confidence:    minConfidence(a.Confidence, b.Confidence),
	}
	if !va.IsZero() {
		pct := vb.Sub(va).Div(va.Abs()).Mul(decimal.NewFromInt(100)).Round(4)
		d.PercentDelta = &pct
	}
	return d, true, nil
}

// periodUnits returns the distinct normalized units recorded for the metric in
// the given periods, sorted.
func (s *Store) periodUnits(ctx context.Context, ticker string, metricType models.MetricType, periods ...string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var raw []string
	err := s.db.WithContext(ctx).Model(&models.Metric{}).
		Where("ticker = ? AND metric_type = ? AND period IN ?", ticker, metricType, periods).
		Distinct().
		Pluck("unit", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	units := make([]string, 0, len(raw))
	for _, u := range raw {
		u = models.NormalizeUnit(u)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		units = append(units, u)
	}
	sort.Strings(units)
	return units, nil
}

func minConfidence(a, b *float64) float64 {
	if a == nil || b == nil {
		return 0
	}
	if *a < *b {
		return *a
	}
	return *b
}

// ScreenMetrics returns, per ticker, the latest metricType row that satisfies
// cmp, highest value first. A percent comparator only considers rows in "%".
func (s *Store) ScreenMetrics(ctx context.Context, metricType models.MetricType, cmp models.Comparator, limit int) ([]models.Metric, error) {
	if !metricType.Valid() {
		return nil, apperrors.Validation(models.TableMetrics, "metric_type", fmt.Sprintf("unrecognized value %q", metricType))
	}
	if !cmp.Valid() {
		return nil, apperrors.Validation(models.TableMetrics, "comparator", fmt.Sprintf("unsupported operator %q", cmp.Op))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	db := s.db.WithContext(ctx)
	ranked := db.Model(&models.Metric{}).
		Select("*, ROW_NUMBER() OVER (PARTITION BY ticker ORDER BY " + latestOrder + ") AS rn").
		Where("metric_type = ?", metricType)
	if cmp.Percent {
		ranked = ranked.Where("unit = ?", "%")
	}

	out := []models.Metric{}
	err := db.Table("(?) AS latest", ranked).
		Where("rn = 1").
		Where("value "+cmp.Op+" ?", cmp.Value).
		Order("value DESC, ticker ASC").
		Limit(s.clampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("screen metrics: %w", err)
	}
	return out, nil
}
