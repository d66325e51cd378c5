// Package schedule invokes a function on a reconfigurable interval.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ticker calls run every interval. An interval of zero or less disables it until
// SetInterval supplies a positive one.
type Ticker struct {
	run       func(context.Context)
	immediate bool
	logger    zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	updates  chan time.Duration
}

type Option func(*Ticker)

// WithImmediate calls run once as soon as Run starts.
func WithImmediate() Option {
	return func(t *Ticker) {
		t.immediate = true
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Ticker) {
		t.logger = logger
	}
}

func New(run func(context.Context), interval time.Duration, options ...Option) *Ticker {
	t := &Ticker{
		run:      run,
		interval: interval,
		updates:  make(chan time.Duration, 1),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Interval returns the interval most recently requested.
func (t *Ticker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval replaces the interval. The running loop restarts its timer from now.
// It never blocks; only the latest pending value is applied.
func (t *Ticker) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d == t.interval {
		return
	}
	t.interval = d

	select {
	case <-t.updates:
	default:
	}
	t.updates <- d
}

// Run blocks until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	reset := func(d time.Duration) {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d <= 0 {
			t.logger.Info().Msg("periodic polling disabled")
			return
		}
		ticker = time.NewTicker(d)
		tick = ticker.C
		t.logger.Info().Dur("interval", d).Msg("polling interval set")
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	reset(t.Interval())
	if t.immediate {
		t.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-t.updates:
			reset(d)
		case <-tick:
			t.run(ctx)
		}
	}
}
