// Package executor answers routed queries from the structured store, the
// semantic engine or both, degrading step by step when a layer fails.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"signal-store/apperrors"
	"signal-store/router"
	"signal-store/semantic"
	"signal-store/store"
)

// Options bound the read path.
type Options struct {
	// Timeout bounds a whole query including every fallback step.
	Timeout time.Duration
	// SemanticTimeout caps a single semantic call.
	SemanticTimeout time.Duration
	// StoreTimeout is kept free at the end of the deadline for a structured
	// fallback after the semantic attempts.
	StoreTimeout time.Duration
	Modes        []semantic.Mode
	// ScreenLimit caps the candidate set of a metric screen.
	ScreenLimit int
}

func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		SemanticTimeout: 10 * time.Second,
		StoreTimeout:    5 * time.Second,
		Modes:           semantic.DefaultModes,
		ScreenLimit:     25,
	}
}

// Executor runs queries. store may be nil when the structured layer is
// disabled.
type Executor struct {
	router *router.Router
	store  *store.Store
	engine semantic.Engine
	modes  []semantic.Mode
	opts   Options
	log    *zap.Logger
}

func New(r *router.Router, st *store.Store, engine semantic.Engine, log *zap.Logger, opts Options) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if engine == nil {
		engine = semantic.Unavailable{}
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.SemanticTimeout <= 0 {
		opts.SemanticTimeout = def.SemanticTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}
	if len(opts.Modes) == 0 {
		opts.Modes = def.Modes
	}
	if opts.ScreenLimit <= 0 {
		opts.ScreenLimit = def.ScreenLimit
	}
	return &Executor{
		router: r,
		store:  st,
		engine: engine,
		modes:  opts.Modes,
		opts:   opts,
		log:    log.Named("executor"),
	}
}

// Execute routes query and runs it. The returned error is a validation error
// or the caller's cancellation; layer failures are reported in the Response.
func (e *Executor) Execute(ctx context.Context, query string) (*Response, error) {
	d, err := e.router.Route(query)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, d)
}

// Run executes an already routed decision.
func (e *Executor) Run(parent context.Context, d router.Decision) (*Response, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, e.opts.Timeout)
	defer cancel()

	log := e.log.With(
		zap.String("query_type", string(d.Type)),
		zap.Float64("routing_confidence", d.Confidence))
	if d.Ambiguous {
		log.Debug("defaulting to hybrid", zap.Error(apperrors.ErrRoutingAmbiguous))
	}
	c := newCascade(log)
	resp := &Response{Query: d.Query, Decision: d, Facts: []Fact{}}

	var err error
	switch {
	case e.store == nil || d.Target == router.TargetSemantic:
		err = e.runSemantic(ctx, c, d, resp)
	case d.Target == router.TargetStructured:
		err = e.runStructured(ctx, c, d, resp)
	default:
		err = e.runHybrid(ctx, c, d, resp)
	}
	if err != nil {
		return nil, err
	}

	if resp.Facts == nil {
		resp.Facts = []Fact{}
	}
	resp.Trace = c.trace
	resp.LatencyMS = time.Since(start).Milliseconds()
	log.Info("query executed",
		zap.String("status", string(resp.Status)),
		zap.Int("facts", len(resp.Facts)),
		zap.Int64("latency_ms", resp.LatencyMS))
	return resp, nil
}

// runStructured answers from the store and falls back to the semantic engine
// when nothing is found.
func (e *Executor) runStructured(ctx context.Context, c *cascade, d router.Decision, resp *Response) error {
	c.step(StateStructured, string(d.Type))
	facts, err := e.lookup(ctx, d)
	if err != nil {
		if callerFacing(err) {
			return err
		}
		if cancelled(ctx) {
			return context.Canceled
		}
		c.log.Warn("structured lookup failed", zap.Error(err))
	}
	if len(facts) > 0 {
		resp.Facts = facts
		resp.Status = StatusComplete
		c.step(StateComplete, fmt.Sprintf("%d structured facts", len(facts)))
		return nil
	}

	reason := "structured lookup found nothing"
	if err != nil {
		reason = "structured lookup failed: " + err.Error()
	}
	c.log.Info("falling back to semantic engine", zap.String("reason", reason))
	return e.finishSemantic(ctx, c, d, resp, nil, e.hasTickerFallback(d), reason)
}

// runSemantic sends the raw query to the engine. If every mode fails and the
// query names a ticker, the latest structured facts are returned instead.
func (e *Executor) runSemantic(ctx context.Context, c *cascade, d router.Decision, resp *Response) error {
	return e.finishSemantic(ctx, c, d, resp, nil, e.hasTickerFallback(d), string(d.Type))
}

// runHybrid screens or looks up the structured part first, then asks the
// engine to explain, passing the structured candidates as context.
func (e *Executor) runHybrid(ctx context.Context, c *cascade, d router.Decision, resp *Response) error {
	c.step(StateStructured, "hybrid structured component")
	facts, err := e.lookup(ctx, d)
	if err != nil {
		if callerFacing(err) {
			return err
		}
		if cancelled(ctx) {
			return context.Canceled
		}
		c.log.Warn("structured component failed", zap.Error(err))
	}
	resp.Facts = facts
	resp.Candidates = tickers(facts)

	hints := make([]string, 0, len(facts))
	for _, f := range facts {
		hints = append(hints, describe(f))
	}
	reserve := len(facts) == 0 && e.hasTickerFallback(d)
	return e.finishSemantic(ctx, c, d, resp, hints, reserve, fmt.Sprintf("%d structured candidates", len(facts)))
}

// hasTickerFallback reports whether the ticker's latest facts can stand in
// for a semantic answer that never arrives.
func (e *Executor) hasTickerFallback(d router.Decision) bool {
	return e.store != nil && d.Params.Ticker != ""
}

func (e *Executor) finishSemantic(ctx context.Context, c *cascade, d router.Decision, resp *Response, hints []string, reserve bool, reason string) error {
	n, err := e.askEngine(ctx, c, semantic.Request{Text: d.Query, Context: hints}, reserve, reason)
	if err != nil && cancelled(ctx) {
		return context.Canceled
	}
	if err == nil {
		resp.Narrative = n
		resp.Status = StatusComplete
		c.step(StateComplete, fmt.Sprintf("answered by %s", n.Mode))
		return nil
	}

	if len(resp.Facts) == 0 && reserve {
		facts, lerr := e.tickerFacts(ctx, d)
		if lerr != nil {
			c.log.Warn("structured fallback failed", zap.Error(lerr))
		}
		resp.Facts = facts
	}

	resp.Error = err.Error()
	if len(resp.Facts) > 0 {
		resp.Status = StatusDegraded
		c.fallback(StateDegraded, "semantic engine failed: "+err.Error())
		return nil
	}
	resp.Status = StatusFailed
	c.fallback(StateFailed, "no layer answered: "+err.Error())
	return nil
}

// lookup runs the structured part of a decision. An empty result is the
// NotFound case and is not an error.
func (e *Executor) lookup(ctx context.Context, d router.Decision) ([]Fact, error) {
	p := d.Params
	switch d.Type {
	case router.StructuredRating:
		if p.Ticker == "" {
			return nil, nil
		}
		r, found, err := e.store.LatestRating(ctx, p.Ticker)
		if err != nil || !found {
			return nil, err
		}
		return []Fact{ratingFact(r)}, nil

	case router.StructuredPriceTarget:
		if p.Ticker == "" {
			return nil, nil
		}
		pt, found, err := e.store.LatestPriceTarget(ctx, p.Ticker)
		if err != nil || !found {
			return nil, err
		}
		return []Fact{priceTargetFact(pt)}, nil

	case router.StructuredMetric:
		if p.Ticker == "" {
			return e.screen(ctx, p)
		}
		m, found, err := e.store.LatestMetric(ctx, p.Ticker, p.MetricType, p.Period)
		if err != nil || !found {
			return nil, err
		}
		return []Fact{metricFact(m)}, nil

	default:
		if p.Comparator != nil && p.MetricType != "" {
			return e.screen(ctx, p)
		}
		return e.tickerFacts(ctx, d)
	}
}

func (e *Executor) screen(ctx context.Context, p router.Params) ([]Fact, error) {
	if p.Comparator == nil || p.MetricType == "" {
		return nil, nil
	}
	rows, err := e.store.ScreenMetrics(ctx, p.MetricType, *p.Comparator, e.opts.ScreenLimit)
	if err != nil {
		return nil, err
	}
	facts := make([]Fact, 0, len(rows))
	for i := range rows {
		facts = append(facts, metricFact(&rows[i]))
	}
	return facts, nil
}

// tickerFacts collects the latest rating, price target and metric for the
// decision's ticker, whichever exist.
func (e *Executor) tickerFacts(ctx context.Context, d router.Decision) ([]Fact, error) {
	p := d.Params
	if e.store == nil || p.Ticker == "" {
		return nil, nil
	}
	var facts []Fact
	r, found, err := e.store.LatestRating(ctx, p.Ticker)
	if err != nil {
		return facts, err
	}
	if found {
		facts = append(facts, ratingFact(r))
	}
	pt, found, err := e.store.LatestPriceTarget(ctx, p.Ticker)
	if err != nil {
		return facts, err
	}
	if found {
		facts = append(facts, priceTargetFact(pt))
	}
	m, found, err := e.store.LatestMetric(ctx, p.Ticker, p.MetricType, p.Period)
	if err != nil {
		return facts, err
	}
	if found {
		facts = append(facts, metricFact(m))
	}
	return facts, nil
}

func callerFacing(err error) bool {
	return apperrors.IsValidation(err) || apperrors.IsUnitMismatch(err)
}

// cancelled reports whether the caller cancelled ctx. The executor's own
// deadline surfaces as DeadlineExceeded instead and is handled by degrading.
func cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func tickers(facts []Fact) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range facts {
		if !seen[f.Ticker] {
			seen[f.Ticker] = true
			out = append(out, f.Ticker)
		}
	}
	return out
}

// describe renders a fact as a context hint for the engine.
func describe(f Fact) string {
	switch f.Kind {
	case KindRating:
		return fmt.Sprintf("%s rating %s (source %s)", f.Ticker, f.Rating, f.Source)
	case KindPriceTarget:
		return fmt.Sprintf("%s price target %v %s (source %s)", f.Ticker, deref(f.Value), f.Unit, f.Source)
	default:
		s := fmt.Sprintf("%s %s %v%s", f.Ticker, f.MetricType, deref(f.Value), unitSuffix(f.Unit))
		if f.Period != "" {
			s += " " + f.Period
		}
		return s + " (source " + f.Source + ")"
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func unitSuffix(u string) string {
	if u == "%" || u == "" {
		return u
	}
	return " " + u
}
