package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var nopLogger = zerolog.Nop()

// ErrOpenCircuit is returned while the breaker rejects calls to its dependency.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Settings tunes a Breaker. Zero values fall back to defaults.
type Settings struct {
	// Dependency labels metrics and log lines, e.g. "store".
	Dependency   string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       *zerolog.Logger
	now          func() time.Time
}

// Breaker is a failure-ratio circuit breaker guarding one dependency.
type Breaker struct {
	mu        sync.Mutex
	cfg       Settings
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker opens once at least MinRequests outcomes were observed and the
// failure ratio reaches FailureRatio. After OpenFor one probe is let through.
func NewBreaker(s Settings) *Breaker {
	if s.MinRequests <= 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}
	if s.FailureRatio > 1 {
		s.FailureRatio = 1
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	s.Dependency = strings.TrimSpace(s.Dependency)
	if s.Dependency == "" {
		s.Dependency = "default"
	}
	if s.now == nil {
		s.now = time.Now
	}
	b := &Breaker{cfg: s, state: Closed}
	b.recordStateLocked()
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker moves to half-open
// once the cool-off has elapsed.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return true
	}
	if b.cfg.now().Sub(b.openedAt) < b.cfg.OpenFor {
		return false
	}
	b.changeStateLocked(ctx, HalfOpen)
	return true
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if ok {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if ok {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.cfg.FailureRatio {
		b.changeStateLocked(ctx, Open)
	} else if total > b.cfg.MinRequests*2 {
		// decay so old outcomes stop dominating
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

// Do runs fn when the breaker allows it. failed decides which errors count
// against the dependency; nil counts every non-nil error.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error, failed func(error) bool) error {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	bad := err != nil
	if bad && failed != nil {
		bad = failed(err)
	}
	b.Report(ctx, !bad)
	return err
}

// Backoff returns base doubled per attempt, spread by jitterPct (0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = b.cfg.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0
	b.recordStateLocked()

	if transitions != nil {
		transitions.WithLabelValues(b.cfg.Dependency, prev.String(), next.String()).Inc()
	}
	evt := b.loggerFor(ctx).Warn()
	if next == Closed {
		evt = b.loggerFor(ctx).Info()
	}
	evt = evt.Str("dependency", b.cfg.Dependency).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) recordStateLocked() {
	if stateGauge == nil {
		return
	}
	stateGauge.WithLabelValues(b.cfg.Dependency).Set(float64(b.state))
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	return &nopLogger
}
