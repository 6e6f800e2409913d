package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"signal-store/apperrors"
	"signal-store/semantic"
)

// State is a step of the query state machine. Semantic attempts are
// Attempting(mode); the terminal states are complete, degraded and failed.
type State string

const (
	StateRouted     State = "routed"
	StateStructured State = "structured"
	StateComplete   State = "complete"
	StateDegraded   State = "degraded"
	StateFailed     State = "failed"
)

func Attempting(m semantic.Mode) State { return State("attempting:" + string(m)) }

// minAttempt is the smallest budget worth spending on a semantic call.
const minAttempt = 5 * time.Millisecond

// cascade records every transition of one query, in order.
type cascade struct {
	state State
	start time.Time
	trace []Transition
	log   *zap.Logger
}

func newCascade(log *zap.Logger) *cascade {
	return &cascade{state: StateRouted, start: time.Now(), trace: []Transition{}, log: log}
}

// step records a planned transition.
func (c *cascade) step(next State, reason string) { c.record(next, reason, false) }

// fallback records a transition away from the routed plan.
func (c *cascade) fallback(next State, reason string) { c.record(next, reason, true) }

func (c *cascade) record(next State, reason string, fallback bool) {
	t := Transition{From: c.state, To: next, Reason: reason, ElapsedMS: time.Since(c.start).Milliseconds()}
	c.trace = append(c.trace, t)
	c.state = next

	fields := []zap.Field{
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("reason", reason),
		zap.Int64("elapsed_ms", t.ElapsedMS),
	}
	if fallback {
		c.log.Warn("query fallback", fields...)
		return
	}
	c.log.Debug("query transition", fields...)
}

// askEngine walks the configured modes from most to least expensive and
// returns the first answer. reserve keeps part of the deadline free for a
// structured fallback. Caller cancellation aborts at once.
func (e *Executor) askEngine(ctx context.Context, c *cascade, req semantic.Request, reserve bool, reason string) (*Narrative, error) {
	var lastErr error
	for i, mode := range e.modes {
		if i == 0 {
			c.step(Attempting(mode), reason)
		} else {
			c.fallback(Attempting(mode), reason)
		}

		budget := e.attemptBudget(ctx, len(e.modes)-i, reserve)
		if budget < minAttempt {
			lastErr = fmt.Errorf("query deadline exhausted before %s attempt: %w", mode, apperrors.ErrSemanticTimeout)
			break
		}

		actx, cancel := context.WithTimeout(ctx, budget)
		req.Mode = mode
		ans, err := e.engine.Query(actx, req)
		cancel()

		if err == nil {
			return &Narrative{Answer: ans.Text, Sources: ans.Sources, Confidence: ans.Confidence, Mode: mode}, nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		lastErr = err
		reason = fmt.Sprintf("%s failed: %v", mode, err)
	}
	return nil, lastErr
}

// attemptBudget splits what is left of the deadline evenly across the
// remaining attempts, capped by the per-call semantic timeout.
func (e *Executor) attemptBudget(ctx context.Context, attemptsLeft int, reserve bool) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return e.opts.SemanticTimeout
	}
	remaining := time.Until(dl)
	if reserve {
		remaining -= min(e.opts.StoreTimeout, remaining/2)
	}
	if remaining <= 0 || attemptsLeft <= 0 {
		return 0
	}
	return min(e.opts.SemanticTimeout, remaining/time.Duration(attemptsLeft))
}
