package models

import (
	"strings"
	"time"

	"signal-store/apperrors"
)

// Rating is an analyst rating event. (ticker, source_document_id, timestamp)
// identifies it.
type Rating struct {
	ID               uint        `json:"-" gorm:"primaryKey"`
	Ticker           string      `json:"ticker" gorm:"size:16;not null;uniqueIndex:ux_ratings_natural,priority:1;index:ix_ratings_ticker_ts,priority:1" validate:"required,max=16"`
	RatingValue      RatingValue `json:"rating_value" gorm:"size:16;not null" validate:"required,rating_value"`
	Timestamp        time.Time   `json:"timestamp" gorm:"not null;uniqueIndex:ux_ratings_natural,priority:3;index:ix_ratings_ticker_ts,priority:2"`
	SourceDocumentID string      `json:"source_document_id" gorm:"size:128;not null;uniqueIndex:ux_ratings_natural,priority:2" validate:"required,max=128"`
	Analyst          string      `json:"analyst,omitempty" gorm:"size:128"`
	Firm             string      `json:"firm,omitempty" gorm:"size:128"`
	Confidence       *float64    `json:"confidence" gorm:"not null" validate:"required,gte=0,lte=1"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (Rating) TableName() string { return TableRatings }

func (Rating) NaturalKey() []string {
	return []string{"ticker", "source_document_id", "timestamp"}
}

func (Rating) UpdatableColumns() []string {
	return []string{"rating_value", "analyst", "firm", "confidence", "updated_at"}
}

func (r *Rating) SourceID() string { return r.SourceDocumentID }

func (r *Rating) Normalize() {
	r.Ticker = NormalizeTicker(r.Ticker)
	r.RatingValue = RatingValue(strings.ToUpper(strings.TrimSpace(string(r.RatingValue))))
	r.SourceDocumentID = strings.TrimSpace(r.SourceDocumentID)
	r.Analyst = strings.TrimSpace(r.Analyst)
	r.Firm = strings.TrimSpace(r.Firm)
	r.Timestamp = normalizeTime(r.Timestamp)
}

func (r *Rating) check() error {
	if err := checkTicker(TableRatings, r.Ticker); err != nil {
		return err
	}
	return requireTimestamp(TableRatings, r.Timestamp)
}

// PriceTarget is an analyst price target. Uniqueness follows Rating.
type PriceTarget struct {
	ID               uint      `json:"-" gorm:"primaryKey"`
	Ticker           string    `json:"ticker" gorm:"size:16;not null;uniqueIndex:ux_price_targets_natural,priority:1;index:ix_price_targets_ticker_ts,priority:1" validate:"required,max=16"`
	Value            float64   `json:"value" gorm:"not null" validate:"gt=0"`
	Currency         string    `json:"currency" gorm:"size:8;not null" validate:"required,max=8"`
	Timestamp        time.Time `json:"timestamp" gorm:"not null;uniqueIndex:ux_price_targets_natural,priority:3;index:ix_price_targets_ticker_ts,priority:2"`
	SourceDocumentID string    `json:"source_document_id" gorm:"size:128;not null;uniqueIndex:ux_price_targets_natural,priority:2" validate:"required,max=128"`
	Analyst          string    `json:"analyst,omitempty" gorm:"size:128"`
	Firm             string    `json:"firm,omitempty" gorm:"size:128"`
	Confidence       *float64  `json:"confidence" gorm:"not null" validate:"required,gte=0,lte=1"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (PriceTarget) TableName() string { return TablePriceTargets }

func (PriceTarget) NaturalKey() []string {
	return []string{"ticker", "source_document_id", "timestamp"}
}

func (PriceTarget) UpdatableColumns() []string {
	return []string{"value", "currency", "analyst", "firm", "confidence", "updated_at"}
}

func (p *PriceTarget) SourceID() string { return p.SourceDocumentID }

func (p *PriceTarget) Normalize() {
	p.Ticker = NormalizeTicker(p.Ticker)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	p.SourceDocumentID = strings.TrimSpace(p.SourceDocumentID)
	p.Analyst = strings.TrimSpace(p.Analyst)
	p.Firm = strings.TrimSpace(p.Firm)
	p.Timestamp = normalizeTime(p.Timestamp)
}

func (p *PriceTarget) check() error {
	if err := checkTicker(TablePriceTargets, p.Ticker); err != nil {
		return err
	}
	if len(p.Currency) != 3 {
		return apperrors.Validation(TablePriceTargets, "currency", "must be an ISO 4217 code")
	}
	return requireTimestamp(TablePriceTargets, p.Timestamp)
}
