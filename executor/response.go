package executor

import (
	"time"

	"signal-store/models"
	"signal-store/router"
	"signal-store/semantic"
)

type Status string

const (
	// StatusComplete means every layer the query needed answered.
	StatusComplete Status = "complete"
	// StatusDegraded means the semantic layer failed and only structured
	// facts are returned.
	StatusDegraded Status = "degraded"
	// StatusFailed means neither layer produced anything.
	StatusFailed Status = "failed"
)

// Fact is one structured answer with its attribution.
type Fact struct {
	Ticker     string            `json:"ticker"`
	Kind       string            `json:"kind"`
	Rating     string            `json:"rating,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	MetricType models.MetricType `json:"metric_type,omitempty"`
	Period     string            `json:"period,omitempty"`
	Analyst    string            `json:"analyst,omitempty"`
	Firm       string            `json:"firm,omitempty"`
	Confidence float64           `json:"confidence"`
	Source     string            `json:"source"`
	Timestamp  time.Time         `json:"timestamp"`
}

const (
	KindRating      = "rating"
	KindPriceTarget = "price_target"
	KindMetric      = "metric"
)

func ratingFact(r *models.Rating) Fact {
	return Fact{
		Ticker:     r.Ticker,
		Kind:       KindRating,
		Rating:     string(r.RatingValue),
		Analyst:    r.Analyst,
		Firm:       r.Firm,
		Confidence: conf(r.Confidence),
		Source:     r.SourceDocumentID,
		Timestamp:  r.Timestamp,
	}
}

func priceTargetFact(p *models.PriceTarget) Fact {
	v := p.Value
	return Fact{
		Ticker:     p.Ticker,
		Kind:       KindPriceTarget,
		Value:      &v,
		Unit:       p.Currency,
		Analyst:    p.Analyst,
		Firm:       p.Firm,
		Confidence: conf(p.Confidence),
		Source:     p.SourceDocumentID,
		Timestamp:  p.Timestamp,
	}
}

func metricFact(m *models.Metric) Fact {
	v := m.Value
	return Fact{
		Ticker:     m.Ticker,
		Kind:       KindMetric,
		Value:      &v,
		Unit:       m.Unit,
		MetricType: m.MetricType,
		Period:     m.Period,
		Confidence: conf(m.Confidence),
		Source:     m.SourceDocumentID,
		Timestamp:  m.Timestamp,
	}
}

func conf(c *float64) float64 {
	if c == nil {
		return 0
	}
	return *c
}

// Narrative is the semantic engine's part of a response.
type Narrative struct {
	Answer     string        `json:"answer"`
	Sources    []string      `json:"sources"`
	Confidence float64       `json:"confidence"`
	Mode       semantic.Mode `json:"mode"`
}

// Transition is one step of the fallback cascade.
type Transition struct {
	From      State  `json:"from"`
	To        State  `json:"to"`
	Reason    string `json:"reason"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Response merges the structured facts and the narrative. Each part keeps its
// own sources and confidence.
type Response struct {
	Query      string          `json:"query"`
	Decision   router.Decision `json:"routing"`
	Status     Status          `json:"status"`
	Facts      []Fact          `json:"facts"`
	Candidates []string        `json:"candidates,omitempty"`
	Narrative  *Narrative      `json:"narrative,omitempty"`
	Trace      []Transition    `json:"trace"`
	Error      string          `json:"error,omitempty"`
	LatencyMS  int64           `json:"latency_ms"`
}
