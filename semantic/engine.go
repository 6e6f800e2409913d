// Package semantic is the client side of the external retrieval engine that
// answers explanatory questions from ingested research text.
package semantic

import (
	"context"

	"github.com/pkg/errors"

	"signal-store/apperrors"
)

// Mode is a retrieval strategy, from most to least expensive.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeLocal  Mode = "local"
	ModeNaive  Mode = "naive"
)

// DefaultModes is the fallback order used when none is configured.
var DefaultModes = []Mode{ModeHybrid, ModeLocal, ModeNaive}

// ParseModes keeps the recognized names in order and drops duplicates.
func ParseModes(names []string) []Mode {
	seen := map[Mode]bool{}
	var out []Mode
	for _, n := range names {
		m := Mode(n)
		switch m {
		case ModeHybrid, ModeLocal, ModeNaive:
		default:
			continue
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return append([]Mode(nil), DefaultModes...)
	}
	return out
}

// Document is one enhanced research document handed over for indexing.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Request is a read against the engine. Context carries extra hints such as
// candidate tickers found by a structured screen.
type Request struct {
	Text    string   `json:"query"`
	Mode    Mode     `json:"mode"`
	Context []string `json:"context,omitempty"`
}

type Answer struct {
	Text       string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
	Mode       Mode     `json:"mode"`
}

// Engine is the semantic layer as seen by the writer and the executor.
// Transient failures wrap apperrors.ErrSemanticUnavailable or
// apperrors.ErrSemanticTimeout.
type Engine interface {
	Ingest(ctx context.Context, doc Document) error
	Query(ctx context.Context, req Request) (*Answer, error)
}

// Unavailable is the engine used when none is configured. Every call fails
// with ErrSemanticUnavailable so the executor degrades to structured answers.
type Unavailable struct{}

func (Unavailable) Ingest(context.Context, Document) error {
	return errors.Wrap(apperrors.ErrSemanticUnavailable, "no semantic engine configured")
}

func (Unavailable) Query(context.Context, Request) (*Answer, error) {
	return nil, errors.Wrap(apperrors.ErrSemanticUnavailable, "no semantic engine configured")
}
