package router

import (
	"math"
	"strings"
	"time"

	"signal-store/apperrors"
	"signal-store/models"
)

type QueryType string

const (
	StructuredRating      QueryType = "STRUCTURED_RATING"
	StructuredMetric      QueryType = "STRUCTURED_METRIC"
	StructuredPriceTarget QueryType = "STRUCTURED_PRICE_TARGET"
	SemanticWhy           QueryType = "SEMANTIC_WHY"
	SemanticHow           QueryType = "SEMANTIC_HOW"
	SemanticExplain       QueryType = "SEMANTIC_EXPLAIN"
	Hybrid                QueryType = "HYBRID"
)

func (q QueryType) IsStructured() bool {
	return q == StructuredRating || q == StructuredMetric || q == StructuredPriceTarget
}

func (q QueryType) IsSemantic() bool {
	return q == SemanticWhy || q == SemanticHow || q == SemanticExplain
}

// Target is the layer a decision sends the query to.
type Target string

const (
	TargetStructured Target = "structured"
	TargetSemantic   Target = "semantic"
	TargetHybrid     Target = "hybrid"
)

const (
	DefaultThreshold = 0.5
	maxQueryLength   = 4096
)

// Params are the values pulled out of the query after classification.
type Params struct {
	Ticker     string             `json:"ticker,omitempty"`
	MetricType models.MetricType  `json:"metric_type,omitempty"`
	Period     string             `json:"period,omitempty"`
	Comparator *models.Comparator `json:"comparator,omitempty"`
}

// Decision is the router's verdict for one query.
type Decision struct {
	Query      string    `json:"query"`
	Type       QueryType `json:"query_type"`
	Confidence float64   `json:"routing_confidence"`
	Target     Target    `json:"target"`
	// Ambiguous is set when no rule matched with enough confidence and the
	// query was defaulted to HYBRID.
	Ambiguous bool   `json:"ambiguous,omitempty"`
	Rule      string `json:"rule,omitempty"`
	Params    Params `json:"params"`
}

// Router classifies queries with a static, ordered rule table. Given the same
// configuration and clock, Route is a pure function of the query string.
type Router struct {
	threshold         float64
	tickers           map[string]struct{}
	structuredEnabled bool
	now               func() time.Time
	rules             []rule
}

type Option func(*Router)

// WithThreshold sets the routing confidence below which a query is treated as
// ambiguous.
func WithThreshold(t float64) Option {
	return func(r *Router) {
		if t >= 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithKnownTickers extends the built-in ticker allow-list.
func WithKnownTickers(tickers ...string) Option {
	return func(r *Router) {
		for _, t := range tickers {
			if t = models.NormalizeTicker(t); t != "" {
				r.tickers[t] = struct{}{}
			}
		}
	}
}

// WithStructuredEnabled=false sends every decision to the semantic layer.
func WithStructuredEnabled(enabled bool) Option {
	return func(r *Router) { r.structuredEnabled = enabled }
}

// WithClock fixes the clock used to resolve relative periods like "last quarter".
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		threshold:         DefaultThreshold,
		tickers:           defaultTickers(),
		structuredEnabled: true,
		now:               time.Now,
		rules:             rules,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Threshold() float64 { return r.threshold }

// Route classifies query and extracts its parameters. The only error is a
// *apperrors.ValidationError for an empty or oversized query.
func (r *Router) Route(query string) (Decision, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Decision{}, apperrors.Validation("", "query", "is empty")
	}
	if len(q) > maxQueryLength {
		return Decision{}, apperrors.Validation("", "query", "is too long")
	}

	f := r.analyze(q)
	d := Decision{
		Query:  q,
		Params: Params{Ticker: f.ticker, MetricType: f.metric, Period: f.period, Comparator: f.comparator},
	}

	matched := false
	for _, rl := range r.rules {
		if !rl.match(f) {
			continue
		}
		d.Type, d.Rule, d.Confidence = rl.qtype, rl.name, score(rl, f)
		matched = true
		break
	}

	if !matched || d.Confidence < r.threshold {
		// RoutingAmbiguous never leaves the router: the executor tries
		// structured first and falls back to semantic.
		d.Type, d.Ambiguous = Hybrid, true
	}
	d.Target = r.target(d.Type)
	return d, nil
}

// Classify returns only the query type and routing confidence.
func (r *Router) Classify(query string) (QueryType, float64, error) {
	d, err := r.Route(query)
	if err != nil {
		return "", 0, err
	}
	return d.Type, d.Confidence, nil
}

func (r *Router) target(t QueryType) Target {
	switch {
	case !r.structuredEnabled:
		return TargetSemantic
	case t.IsStructured():
		return TargetStructured
	case t.IsSemantic():
		return TargetSemantic
	default:
		return TargetHybrid
	}
}

func score(rl rule, f *features) float64 {
	c := rl.base
	if rl.adjust != nil {
		c += rl.adjust(f)
	}
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}
