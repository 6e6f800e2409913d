package router

import (
	"regexp"
	"strings"

	"signal-store/models"
)

// features is everything the rule predicates look at, computed once per query.
type features struct {
	lower       string
	ticker      string
	metric      models.MetricType
	metricExact bool
	period      string
	comparator  *models.Comparator
	causal      bool
	howImpact   bool
	explain     bool
}

func (f *features) hasTicker() bool { return f.ticker != "" }
func (f *features) hasMetric() bool { return f.metric != "" }

// narrative reports whether the query asks for an explanation rather than a
// value; structured rules step aside for those.
func (f *features) narrative() bool { return f.causal || f.howImpact || f.explain }

func (r *Router) analyze(q string) *features {
	lower := strings.ToLower(q)
	f := &features{lower: lower}
	f.ticker, _ = r.ExtractTicker(q)
	f.metric, f.metricExact = matchMetric(lower)
	f.period = resolvePeriod(lower, r.now())
	f.comparator = extractComparator(lower)
	f.causal = whyAnyPattern.MatchString(lower)
	f.howImpact = howImpactPattern.MatchString(lower)
	f.explain = explainPattern.MatchString(lower)
	return f
}

var (
	ratingExactPattern = regexp.MustCompile(`\b(latest|current|recent|newest|last|consensus)\s+(analyst\s+)?ratings?\b|\bratings?\s+(on|for|of)\b|\bis\s+\$?[a-z0-9.]+\s+(a|rated)\s+(strong\s+)?(buy|sell|hold)\b`)
	ratingLoosePattern = regexp.MustCompile(`\bratings?\b|\brated\b|\b(upgrade|downgrade)(s|d)?\b|\brecommendation\b`)
	priceTargetPattern = regexp.MustCompile(`\bprice\s+targets?\b|\btarget\s+price\b|\bpt\s+(on|for)\b`)
	whyStrongPattern   = regexp.MustCompile(`^\s*why\b|\bwhy\s+(did|does|do|is|are|was|were|has|have|had|would|will|should|can)\b`)
	whyAnyPattern      = regexp.MustCompile(`\bwhy\b|\breasons?\s+(for|behind|why)\b|\bwhat\s+(caused|drove|led\s+to|explains)\b|\brationale\b`)
	howImpactPattern   = regexp.MustCompile(`\bhow\s+(does|do|did|will|would|could|might|can|is|are|has|have)\b.*\b(impact|affect|influence|effect|drive|hurt|help|benefit)`)
	howLoosePattern    = regexp.MustCompile(`^\s*how\b`)
	explainPattern     = regexp.MustCompile(`\b(explain|describe|summari[sz]e|overview|tell\s+me\s+about|walk\s+me\s+through|outlook|thesis)\b`)
)

// rule is one entry of the classifier: a predicate, the type it assigns and a
// base confidence, optionally adjusted by how specific the match was.
type rule struct {
	name   string
	qtype  QueryType
	base   float64
	match  func(f *features) bool
	adjust func(f *features) float64
}

// rules are evaluated in order; the first match wins. Hybrid screens come
// first because they are the most specific, then structured families, then
// semantic ones.
var rules = []rule{
	{
		name:  "hybrid_screen_with_explanation",
		qtype: Hybrid,
		base:  0.85,
		match: func(f *features) bool {
			return f.comparator != nil && f.hasMetric() && f.narrative()
		},
	},
	{
		name:  "rating_exact",
		qtype: StructuredRating,
		base:  0.8,
		match: func(f *features) bool {
			return !f.narrative() && ratingExactPattern.MatchString(f.lower)
		},
		adjust: tickerAdjust,
	},
	{
		name:  "price_target",
		qtype: StructuredPriceTarget,
		base:  0.8,
		match: func(f *features) bool {
			return !f.narrative() && priceTargetPattern.MatchString(f.lower)
		},
		adjust: tickerAdjust,
	},
	{
		name:  "metric_exact",
		qtype: StructuredMetric,
		base:  0.75,
		match: func(f *features) bool {
			return !f.narrative() && f.hasMetric() && f.metricExact
		},
		adjust: metricAdjust,
	},
	{
		name:  "rating_loose",
		qtype: StructuredRating,
		base:  0.6,
		match: func(f *features) bool {
			return !f.narrative() && ratingLoosePattern.MatchString(f.lower)
		},
		adjust: tickerAdjust,
	},
	{
		name:  "metric_fuzzy",
		qtype: StructuredMetric,
		base:  0.6,
		match: func(f *features) bool {
			return !f.narrative() && f.hasMetric()
		},
		adjust: metricAdjust,
	},
	{
		name:  "why",
		qtype: SemanticWhy,
		base:  0.85,
		match: func(f *features) bool { return whyStrongPattern.MatchString(f.lower) },
	},
	{
		name:  "how_impact",
		qtype: SemanticHow,
		base:  0.85,
		match: func(f *features) bool { return f.howImpact },
	},
	{
		name:  "why_loose",
		qtype: SemanticWhy,
		base:  0.7,
		match: func(f *features) bool { return f.causal },
	},
	{
		name:  "explain",
		qtype: SemanticExplain,
		base:  0.75,
		match: func(f *features) bool { return f.explain },
	},
	{
		name:  "how_loose",
		qtype: SemanticHow,
		base:  0.55,
		match: func(f *features) bool { return howLoosePattern.MatchString(f.lower) },
	},
}

// tickerAdjust rewards a recognized ticker. Without one a structured lookup
// has nothing to look up, so even the strongest rule falls below the default
// threshold.
func tickerAdjust(f *features) float64 {
	if f.hasTicker() {
		return 0.1
	}
	return -0.35
}

// metricAdjust treats a comparator without a ticker as a screen across tickers.
func metricAdjust(f *features) float64 {
	adj := 0.0
	switch {
	case f.hasTicker():
		adj += 0.1
	case f.comparator != nil:
	default:
		adj -= 0.35
	}
	if f.period != "" {
		adj += 0.05
	}
	return adj
}
