package models

import (
	"strings"
	"time"
)

// Metric is a reported financial figure. (ticker, metric_type, period,
// source_document_id) is its natural key.
type Metric struct {
	ID               uint       `json:"-" gorm:"primaryKey"`
	Ticker           string     `json:"ticker" gorm:"size:16;not null;uniqueIndex:ux_metrics_natural,priority:1;index:ix_metrics_lookup,priority:1" validate:"required,max=16"`
	MetricType       MetricType `json:"metric_type" gorm:"size:32;not null;uniqueIndex:ux_metrics_natural,priority:2;index:ix_metrics_lookup,priority:2;index:ix_metrics_type_ts,priority:1" validate:"required,metric_type"`
	Value            float64    `json:"value" gorm:"not null"`
	Unit             string     `json:"unit" gorm:"size:16;not null" validate:"required,max=16"`
	Period           string     `json:"period" gorm:"size:16;not null;uniqueIndex:ux_metrics_natural,priority:3;index:ix_metrics_lookup,priority:3" validate:"required,period"`
	Timestamp        time.Time  `json:"timestamp" gorm:"not null;index:ix_metrics_lookup,priority:4;index:ix_metrics_type_ts,priority:2"`
	SourceDocumentID string     `json:"source_document_id" gorm:"size:128;not null;uniqueIndex:ux_metrics_natural,priority:4" validate:"required,max=128"`
	Confidence       *float64   `json:"confidence" gorm:"not null" validate:"required,gte=0,lte=1"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Metric) TableName() string { return TableMetrics }

func (Metric) NaturalKey() []string {
	return []string{"ticker", "metric_type", "period", "source_document_id"}
}

func (Metric) UpdatableColumns() []string {
	return []string{"value", "unit", "timestamp", "confidence", "updated_at"}
}

func (m *Metric) SourceID() string { return m.SourceDocumentID }

func (m *Metric) Normalize() {
	m.Ticker = NormalizeTicker(m.Ticker)
	m.MetricType = MetricType(strings.ToLower(strings.TrimSpace(string(m.MetricType))))
	m.Unit = NormalizeUnit(m.Unit)
	m.Period = strings.ToUpper(strings.TrimSpace(m.Period))
	m.SourceDocumentID = strings.TrimSpace(m.SourceDocumentID)
	m.Timestamp = normalizeTime(m.Timestamp)
}

func (m *Metric) check() error {
	if err := checkTicker(TableMetrics, m.Ticker); err != nil {
		return err
	}
	return requireTimestamp(TableMetrics, m.Timestamp)
}

// NormalizeUnit canonicalizes a unit or currency label. Currency codes are
// upper-cased; "percent" spellings collapse to "%".
func NormalizeUnit(u string) string {
	u = strings.TrimSpace(u)
	switch strings.ToLower(u) {
	case "%", "pct", "percent", "percentage":
		return "%"
	}
	return strings.ToUpper(u)
}
