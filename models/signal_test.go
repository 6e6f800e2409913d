package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-store/apperrors"
)

var ts = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func TestValidate_AllTablesRequireConfidence(t *testing.T) {
	companyID := EntityID(EntityCompany, "NVIDIA")
	analystID := EntityID(EntityAnalyst, "Jane Doe")

	cases := []Signal{
		&Rating{Ticker: "NVDA", RatingValue: RatingBuy, Timestamp: ts, SourceDocumentID: "doc1"},
		&PriceTarget{Ticker: "NVDA", Value: 150, Currency: "USD", Timestamp: ts, SourceDocumentID: "doc1"},
		&Metric{Ticker: "NVDA", MetricType: MetricRevenue, Value: 30, Unit: "USD", Period: "Q2-2024", Timestamp: ts, SourceDocumentID: "doc1"},
		&Entity{EntityType: EntityCompany, DisplayName: "NVIDIA", FirstSeenSourceDocumentID: "doc1"},
		&Relationship{SourceEntityID: analystID, TargetEntityID: companyID, RelationshipType: RelCovers, SourceDocumentID: "doc1", Timestamp: ts},
	}
	for _, s := range cases {
		t.Run(s.TableName(), func(t *testing.T) {
			err := Validate(s)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))

			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "confidence", ve.Field)
			assert.Equal(t, s.TableName(), ve.Table)
		})
	}
}

func TestValidate_ConfidenceRange(t *testing.T) {
	for _, c := range []float64{-0.01, 1.01, 7} {
		r := &Rating{Ticker: "NVDA", RatingValue: RatingBuy, Timestamp: ts, SourceDocumentID: "doc1", Confidence: Float(c)}
		err := Validate(r)
		require.Error(t, err, "confidence %v", c)
		assert.Contains(t, err.Error(), "[0.0, 1.0]")
	}

	for _, c := range []float64{0, 0.5, 1} {
		r := &Rating{Ticker: "NVDA", RatingValue: RatingBuy, Timestamp: ts, SourceDocumentID: "doc1", Confidence: Float(c)}
		assert.NoError(t, Validate(r), "confidence %v", c)
	}
}

func TestValidate_EnumsAndSource(t *testing.T) {
	tests := []struct {
		name  string
		in    Signal
		field string
	}{
		{
			name:  "bad rating value",
			in:    &Rating{Ticker: "NVDA", RatingValue: "MAYBE", Timestamp: ts, SourceDocumentID: "doc1", Confidence: Float(0.9)},
			field: "rating_value",
		},
		{
			name:  "empty source",
			in:    &Rating{Ticker: "NVDA", RatingValue: RatingBuy, Timestamp: ts, SourceDocumentID: "  ", Confidence: Float(0.9)},
			field: "source_document_id",
		},
		{
			name:  "bad metric type",
			in:    &Metric{Ticker: "NVDA", MetricType: "vibes", Value: 1, Unit: "USD", Period: "FY2024", Timestamp: ts, SourceDocumentID: "doc1", Confidence: Float(0.9)},
			field: "metric_type",
		},
		{
			name:  "bad period",
			in:    &Metric{Ticker: "NVDA", MetricType: MetricEPS, Value: 1, Unit: "USD", Period: "sometime", Timestamp: ts, SourceDocumentID: "doc1", Confidence: Float(0.9)},
			field: "period",
		},
		{
			name:  "bad relationship type",
			in:    &Relationship{SourceEntityID: "a", TargetEntityID: "b", RelationshipType: "likes", SourceDocumentID: "doc1", Timestamp: ts, Confidence: Float(0.9)},
			field: "relationship_type",
		},
		{
			name:  "missing timestamp",
			in:    &Rating{Ticker: "NVDA", RatingValue: RatingBuy, SourceDocumentID: "doc1", Confidence: Float(0.9)},
			field: "timestamp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *apperrors.ValidationError
			require.ErrorAs(t, Validate(tt.in), &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_NormalizesFields(t *testing.T) {
	local := time.FixedZone("CST", 8*3600)
	r := &Rating{Ticker: " $nvda ", RatingValue: "buy", Timestamp: ts.In(local), SourceDocumentID: " doc1 ", Confidence: Float(0.87)}
	require.NoError(t, Validate(r))

	assert.Equal(t, "NVDA", r.Ticker)
	assert.Equal(t, RatingBuy, r.RatingValue)
	assert.Equal(t, "doc1", r.SourceDocumentID)
	assert.Equal(t, time.UTC, r.Timestamp.Location())

	m := &Metric{Ticker: "nvda", MetricType: "Operating_Margin", Value: 62, Unit: "percent", Period: "q2-2024", Timestamp: ts, SourceDocumentID: "doc1", Confidence: Float(0.8)}
	require.NoError(t, Validate(m))
	assert.Equal(t, MetricOperatingMargin, m.MetricType)
	assert.Equal(t, "%", m.Unit)
	assert.Equal(t, "Q2-2024", m.Period)
}

func TestRelationship_SelfLoops(t *testing.T) {
	id := EntityID(EntityCompany, "Acme")

	loop := &Relationship{SourceEntityID: id, TargetEntityID: id, RelationshipType: RelPartnerOf, SourceDocumentID: "doc1", Timestamp: ts, Confidence: Float(0.5)}
	err := Validate(loop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-loop")

	circular := &Relationship{SourceEntityID: id, TargetEntityID: id, RelationshipType: RelCircularReference, SourceDocumentID: "doc1", Timestamp: ts, Confidence: Float(0.5)}
	assert.NoError(t, Validate(circular))
}

func TestEntityID_StableAcrossSpellings(t *testing.T) {
	a := &Entity{EntityType: EntityCompany, DisplayName: "NVIDIA Corp.", FirstSeenSourceDocumentID: "doc1", Confidence: Float(0.9)}
	b := &Entity{EntityType: "Company", DisplayName: "Nvidia  Corporation", FirstSeenSourceDocumentID: "doc2", Confidence: Float(0.7)}
	require.NoError(t, Validate(a))
	require.NoError(t, Validate(b))

	assert.Equal(t, a.EntityID, b.EntityID)
	assert.Equal(t, EntityID(EntityCompany, "nvidia"), a.EntityID)
	assert.NotEqual(t, a.EntityID, EntityID(EntityPerson, "NVIDIA Corp."))
}

func TestParseRatingValue(t *testing.T) {
	v, ok := ParseRatingValue("strong buy")
	assert.True(t, ok)
	assert.Equal(t, RatingStrongBuy, v)

	_, ok = ParseRatingValue("moon")
	assert.False(t, ok)
}
