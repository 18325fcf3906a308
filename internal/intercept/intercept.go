// Package intercept implements the shadowed entry points. Every entry point
// follows the same steps: resolve the real implementation, forward the
// caller's arguments to it exactly once, time the call, record an event and
// hand the real result back unchanged.
package intercept

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/coral-mesh/ioprof/internal/event"
	"github.com/coral-mesh/ioprof/internal/symbol"
	"github.com/coral-mesh/ioprof/internal/timing"
)

// Failed is the native failure return of open(2) and close(2).
const Failed int32 = -1

// Config wires an Interceptor.
type Config struct {
	Store  *event.Store
	Logger zerolog.Logger
	// Clock defaults to clock.RealClock.
	Clock clock.PassiveClock
	Open  *symbol.Next[OpenFunc]
	Close *symbol.Next[CloseFunc]
}

// Interceptor owns the entry points of one profiled process.
type Interceptor struct {
	store  *event.Store
	logger zerolog.Logger
	clock  clock.PassiveClock
	open   *symbol.Next[OpenFunc]
	close  *symbol.Next[CloseFunc]
}

// New creates an Interceptor from cfg.
func New(cfg Config) (*Interceptor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if cfg.Open == nil || cfg.Close == nil {
		return nil, fmt.Errorf("open and close implementations are required")
	}
	c := cfg.Clock
	if c == nil {
		c = clock.RealClock{}
	}

	return &Interceptor{
		store:  cfg.Store,
		logger: cfg.Logger.With().Str("component", "intercept").Logger(),
		clock:  c,
		open:   cfg.Open,
		close:  cfg.Close,
	}, nil
}

// forward is shared by every entry point. If the real implementation cannot
// be resolved it returns failed without recording anything. A panic after
// the real call has run still returns the real result.
func forward[F, R any](
	i *Interceptor,
	next *symbol.Next[F],
	failed R,
	call func(F) R,
	record func(R, time.Duration) event.Event,
) (ret R) {
	ret = failed
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().
				Str("symbol", next.Name()).
				Interface("panic", r).
				Msg("Recovered from panic in entry point")
		}
	}()

	impl, err := next.Get()
	if err != nil {
		i.logger.Debug().Err(err).Str("symbol", next.Name()).Msg("Real implementation unavailable")
		return failed
	}

	// ret is set inside the measured func so a panic while reading the clock
	// still hands back the real result.
	_, elapsed := timing.Measure(i.clock, func() R {
		ret = call(impl)
		return ret
	})

	if err := i.store.Append(record(ret, elapsed)); err != nil {
		if errors.Is(err, event.ErrSealed) {
			i.logger.Debug().Str("symbol", next.Name()).Msg("Dropped event recorded after unload")
		} else {
			i.logger.Warn().Err(err).Str("symbol", next.Name()).Msg("Failed to record event")
		}
	}
	return ret
}
