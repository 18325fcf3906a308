// Package profiler owns the per-process profiling context: the event store,
// the symbol cache and entry points, and the load/unload lifecycle that
// brackets the timeline and writes the report.
package profiler

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"k8s.io/utils/clock"

	"github.com/coral-mesh/ioprof/internal/config"
	"github.com/coral-mesh/ioprof/internal/event"
	"github.com/coral-mesh/ioprof/internal/intercept"
	"github.com/coral-mesh/ioprof/internal/report"
	"github.com/coral-mesh/ioprof/internal/symbol"
	"github.com/coral-mesh/ioprof/internal/timing"
)

// Symbol names of the shadowed calls.
const (
	SymbolOpen  = "open"
	SymbolClose = "close"
)

const initialCapacity = 1024

// Lifecycle is driven by the host's module loading convention.
type Lifecycle interface {
	// OnLoad runs once before any intercepted call.
	OnLoad()
	// OnUnload runs once after the host has stopped issuing intercepted
	// calls and writes the report.
	OnUnload() error
}

// Options carries the platform bindings and the collaborators that tests
// replace.
type Options struct {
	Logger zerolog.Logger

	// Resolver finds the next implementation of a symbol.
	Resolver  symbol.Resolver
	BindOpen  func(unsafe.Pointer) intercept.OpenFunc
	BindClose func(unsafe.Pointer) intercept.CloseFunc

	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Clock defaults to clock.RealClock.
	Clock clock.PassiveClock
	// Pid defaults to os.Getpid().
	Pid int
}

// Profiler is the profiling context of one process.
type Profiler struct {
	cfg         *config.Config
	logger      zerolog.Logger
	clock       clock.PassiveClock
	pid         int
	store       *event.Store
	interceptor *intercept.Interceptor
	writer      *report.Writer

	loadOnce   sync.Once
	unloadOnce sync.Once
	unloadErr  error
}

var _ Lifecycle = (*Profiler)(nil)

// New creates a profiler. The caller must invoke OnLoad before exposing the
// entry points.
func New(cfg *config.Config, opts Options) (*Profiler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Resolver == nil || opts.BindOpen == nil || opts.BindClose == nil {
		return nil, fmt.Errorf("resolver and symbol bindings are required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Pid == 0 {
		opts.Pid = os.Getpid()
	}

	base := opts.Logger.With().Int("pid", opts.Pid).Logger()
	logger := base.With().Str("component", "profiler").Logger()
	store := event.NewStore(initialCapacity)
	cache := symbol.NewCache(opts.Resolver)

	interceptor, err := intercept.New(intercept.Config{
		Store:  store,
		Logger: base,
		Clock:  opts.Clock,
		Open:   symbol.NewNext(cache, SymbolOpen, opts.BindOpen),
		Close:  symbol.NewNext(cache, SymbolClose, opts.BindClose),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create interceptor: %w", err)
	}

	return &Profiler{
		cfg:         cfg,
		logger:      logger,
		clock:       opts.Clock,
		pid:         opts.Pid,
		store:       store,
		interceptor: interceptor,
		writer:      report.NewWriter(opts.Fs),
	}, nil
}

// OnLoad appends the Init sentinel.
func (p *Profiler) OnLoad() {
	p.loadOnce.Do(func() {
		if err := p.store.Append(event.NewSentinel(event.Init, timing.Timestamp(p.clock.Now()))); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to record load")
			return
		}
		p.logger.Debug().Str("report", p.ReportPath()).Msg("I/O profiler loaded")
	})
}

// OnUnload appends the Fini sentinel, seals the timeline and writes the
// report. Later calls return the first call's result.
func (p *Profiler) OnUnload() error {
	p.unloadOnce.Do(func() {
		events := p.store.Finish(event.NewSentinel(event.Fini, timing.Timestamp(p.clock.Now())))
		dest := p.ReportPath()

		if err := p.writer.Write(events, dest); err != nil {
			p.logger.Error().
				Err(err).
				Str("path", dest).
				Int("events", len(events)).
				Msg("Failed to write I/O profile report")
			p.unloadErr = err
			return
		}

		p.logger.Info().
			Str("path", dest).
			Int("events", len(events)).
			Int("calls", countCalls(events)).
			Msg("I/O profile report written")
	})
	return p.unloadErr
}

// countCalls returns the number of intercepted calls in events.
func countCalls(events []event.Event) int {
	n := 0
	for _, ev := range events {
		if !ev.Type.IsSentinel() {
			n++
		}
	}
	return n
}

// Open shadows open(2).
func (p *Profiler) Open(path unsafe.Pointer, flags int32, mode uint32) int32 {
	return p.interceptor.Open(path, flags, mode)
}

// Close shadows close(2).
func (p *Profiler) Close(fd int32) int32 {
	return p.interceptor.Close(fd)
}

// ReportPath is where OnUnload writes the report.
func (p *Profiler) ReportPath() string {
	return report.PathFor(p.cfg.Report.Dir, p.pid)
}

// Events returns a copy of the timeline recorded so far.
func (p *Profiler) Events() []event.Event {
	return p.store.Snapshot()
}
