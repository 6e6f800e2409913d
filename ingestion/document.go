package ingestion

import (
	"fmt"
	"strings"

	"signal-store/apperrors"
	"signal-store/models"
	"signal-store/semantic"
)

// Document is everything the extractor produced for one source document: the
// enhanced text for the semantic engine and the scored facts for the store.
type Document struct {
	ID            string                `json:"source_document_id" binding:"required"`
	Text          string                `json:"text"`
	Metadata      map[string]string     `json:"metadata,omitempty"`
	Entities      []models.Entity       `json:"entities,omitempty"`
	Relationships []models.Relationship `json:"relationships,omitempty"`
	Ratings       []models.Rating       `json:"ratings,omitempty"`
	PriceTargets  []models.PriceTarget  `json:"price_targets,omitempty"`
	Metrics       []models.Metric       `json:"metrics,omitempty"`
}

// Records flattens the facts. The returned signals point into d.
func (d *Document) Records() []models.Signal {
	n := len(d.Entities) + len(d.Relationships) + len(d.Ratings) + len(d.PriceTargets) + len(d.Metrics)
	out := make([]models.Signal, 0, n)
	for i := range d.Entities {
		out = append(out, &d.Entities[i])
	}
	for i := range d.Relationships {
		out = append(out, &d.Relationships[i])
	}
	for i := range d.Ratings {
		out = append(out, &d.Ratings[i])
	}
	for i := range d.PriceTargets {
		out = append(out, &d.PriceTargets[i])
	}
	for i := range d.Metrics {
		out = append(out, &d.Metrics[i])
	}
	return out
}

// checkSources requires every fact to name this document as its source.
func (d *Document) checkSources(recs []models.Signal) error {
	for i, rec := range recs {
		src := strings.TrimSpace(rec.SourceID())
		if src == "" {
			return fmt.Errorf("record %d: %w", i, apperrors.Validation(rec.TableName(), "source_document_id", "is required"))
		}
		if src != d.ID {
			return fmt.Errorf("record %d: %w", i, apperrors.Validation(rec.TableName(), "source_document_id",
				fmt.Sprintf("%q does not match document %q", src, d.ID)))
		}
	}
	return nil
}

func (d *Document) semantic() semantic.Document {
	meta := make(map[string]string, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta["source_document_id"] = d.ID
	return semantic.Document{ID: d.ID, Text: d.Text, Metadata: meta}
}
