// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LoggerKey exposes the runtime's logger through the ServiceMap. Effects can
// read it with Service(LoggerKey); outside a runtime it falls back to a nop
// logger.
var LoggerKey = NewRef[zerolog.Logger]("efx.Logger", func() zerolog.Logger {
	return zerolog.Nop()
})

// Runtime wires a ServiceMap, a Scheduler and the error-reporter pipeline
// together and is the entry point for running effects. A Runtime is
// immutable after construction and safe for concurrent use.
type Runtime struct {
	services  ServiceMap
	scheduler Scheduler
	reporters reporterRegistry
	logger    zerolog.Logger

	fibersStarted atomic.Int64
	fibersActive  atomic.Int64
}

type runtimeConfig struct {
	services  ServiceMap
	scheduler Scheduler
	logger    zerolog.Logger
	loggerSet bool
	reporters []ErrorReporter
}

// Option configures a [Runtime] under construction.
type Option func(*runtimeConfig)

// WithServices sets the base ServiceMap every fiber starts from.
func WithServices(sm ServiceMap) Option {
	return func(c *runtimeConfig) { c.services = sm }
}

// WithScheduler sets the scheduler; the default is a [PoolScheduler] with
// GOMAXPROCS workers.
func WithScheduler(s Scheduler) Option {
	return func(c *runtimeConfig) { c.scheduler = s }
}

// WithLogger sets the runtime logger; the default writes to stderr.
func WithLogger(l zerolog.Logger) Option {
	return func(c *runtimeConfig) {
		c.logger = l
		c.loggerSet = true
	}
}

// WithErrorReporter registers an error reporter. When no reporter is given,
// unhandled causes are logged through the runtime logger.
func WithErrorReporter(r ErrorReporter) Option {
	return func(c *runtimeConfig) { c.reporters = append(c.reporters, r) }
}

// NewRuntime constructs a Runtime from the options.
func NewRuntime(opts ...Option) *Runtime {
	var cfg runtimeConfig
	for _, o := range opts {
		o(&cfg)
	}
	rt := &Runtime{scheduler: cfg.scheduler}
	if rt.scheduler == nil {
		rt.scheduler = NewPoolScheduler(0)
	}
	if cfg.loggerSet {
		rt.logger = cfg.logger
	} else {
		rt.logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if len(cfg.reporters) == 0 {
		rt.reporters.add(zerologReporter(rt.logger))
	}
	for _, r := range cfg.reporters {
		rt.reporters.add(r)
	}
	rt.services = AddService(cfg.services, LoggerKey, rt.logger)
	return rt
}

// AddErrorReporter registers an additional reporter at runtime.
func (rt *Runtime) AddErrorReporter(r ErrorReporter) { rt.reporters.add(r) }

// Logger returns the runtime logger.
func (rt *Runtime) Logger() zerolog.Logger { return rt.logger }

// Scheduler returns the runtime scheduler.
func (rt *Runtime) Scheduler() Scheduler { return rt.scheduler }

func (rt *Runtime) report(cause *Cause, fiber FiberID) {
	rt.reporters.report(cause, fiber)
}

// RuntimeStats is a snapshot of fiber accounting counters.
type RuntimeStats struct {
	// FibersStarted counts every fiber ever started by this runtime.
	FibersStarted int64
	// FibersActive counts fibers that have not yet reached Done.
	FibersActive int64
}

// Stats returns the current fiber counters.
func (rt *Runtime) Stats() RuntimeStats {
	return RuntimeStats{
		FibersStarted: rt.fibersStarted.Load(),
		FibersActive:  rt.fibersActive.Load(),
	}
}

// RunFork starts m on a new root fiber and returns its handle without
// waiting. The fiber owns a fresh root scope: every finalizer registered
// during m runs before the fiber's Exit is published.
func RunFork[A any](rt *Runtime, m Effect[A]) *Fiber[A] {
	return runForkOn(rt, rt.scheduler, m)
}

func runForkOn[A any](rt *Runtime, sched Scheduler, m Effect[A]) *Fiber[A] {
	root := NewScope()
	wrapped := OnExit(
		Provide(m, scopeKey, root),
		func(e Exit[A]) Effect[Unit] { return root.CloseEffect(exitErase(e)) },
	)
	f := newFiberRuntime(rt, sched, rt.services)
	f.cur = nodeOf(wrapped)
	sched.ScheduleTask(f.run)
	return &Fiber[A]{fr: f}
}

// Run executes m to completion and returns its Exit, blocking the calling
// goroutine.
func Run[A any](rt *Runtime, m Effect[A]) Exit[A] {
	return RunFork(rt, m).Wait()
}

// RunSync executes m deterministically on the calling goroutine. The effect
// must resolve without suspending on a genuinely asynchronous boundary:
// reaching one is a defect Exit, and the abandoned fiber is interrupted so
// its finalizers still run.
func RunSync[A any](rt *Runtime, m Effect[A]) Exit[A] {
	f := runForkOn(rt, NewSyncScheduler(), m)
	if exit, ok := f.Poll(); ok {
		return exit
	}
	f.fr.requestInterrupt(CauseInterrupt(f.fr.id))
	if exit, ok := f.Poll(); ok {
		return exit
	}
	return ExitDie[A]("efx: asynchronous boundary reached in RunSync")
}
