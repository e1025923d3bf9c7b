// Package framewalk captures the call stack of the running thread by
// walking the chain of saved frame pointers. It is built for profilers and
// crash reporters: capturing is allocation-free, tolerates corrupted stack
// memory without faulting, and may be invoked from a signal handler. The
// captured program counters are raw return addresses; mapping them to
// symbols is left to the consumer.
package framewalk

import (
	"debug/elf"
	"errors"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/framewalk-dev/framewalk-go/internal/memprobe"
	"github.com/framewalk-dev/framewalk-go/internal/unwind"
	"github.com/framewalk-dev/framewalk-go/internal/vdso"
	"github.com/framewalk-dev/framewalk-go/internal/vsyscall"
)

// Option to configure the library.
type Option interface {
	apply(*config)
}

type config struct {
	probe                memprobe.Probe
	lookup               vsyscall.Lookup
	log                  logrus.FieldLogger
	errorLogger          func(err error)
	disableVsyscallFixup bool
}

const (
	ENV_DISABLE_VSYSCALL_FIXUP = "FRAMEWALK_DISABLE_VSYSCALL_FIXUP"
)

func makeDefaultConfig() config {
	cfg := config{
		log:         logrus.StandardLogger(),
		errorLogger: func(err error) {},
	}
	if os.Getenv(ENV_DISABLE_VSYSCALL_FIXUP) != "" {
		cfg.disableVsyscallFixup = true
	}
	return cfg
}

type optionFunc func(cfg *config)

func (f optionFunc) apply(cfg *config) {
	f(cfg)
}

// WithLogger sets the logger used for setup-time diagnostics, such as an
// unrecognized vDSO trampoline. Nothing is ever logged from the capture path
// itself.
func WithLogger(log logrus.FieldLogger) Option {
	return optionFunc(func(cfg *config) {
		cfg.log = log
	})
}

// WithErrorLogger sets a callback for errors that the library swallows, such
// as a vDSO that cannot be located.
func WithErrorLogger(f func(err error)) Option {
	return optionFunc(func(cfg *config) {
		cfg.errorLogger = f
	})
}

// WithReadabilityProbe replaces the platform readability probe. The probe
// must never fault; it is consulted on addresses read from possibly
// corrupted stacks.
func WithReadabilityProbe(probe func(addr uintptr) bool) Option {
	return optionFunc(func(cfg *config) {
		cfg.probe = probe
	})
}

// WithSymbolLookup replaces how trampoline symbols are resolved from the
// vDSO, mainly for tests.
func WithSymbolLookup(lookup func(name, version string) (addr uintptr, ok bool)) Option {
	return optionFunc(func(cfg *config) {
		cfg.lookup = lookup
	})
}

// WithoutVsyscallFixup disables the vDSO trampoline handling on the
// platforms that have it. Also controlled by the
// FRAMEWALK_DISABLE_VSYSCALL_FIXUP environment variable.
func WithoutVsyscallFixup() Option {
	return optionFunc(func(cfg *config) {
		cfg.disableVsyscallFixup = true
	})
}

// Engine captures call stacks. A single Engine may be used concurrently; all
// per-capture state lives in the caller-provided buffers.
type Engine struct {
	u *unwind.Unwinder
}

// New builds an Engine. On platforms whose kernel fast-syscall trampoline
// breaks frame-pointer conventions this resolves and memoizes the
// trampoline's shape up front, so that later captures from signal handlers
// need no setup work.
func New(opts ...Option) *Engine {
	cfg := makeDefaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	var cache *vsyscall.Cache
	if unwind.NeedsVsyscallFixup() && !cfg.disableVsyscallFixup {
		lookup := cfg.lookup
		if lookup == nil {
			if v, ok := vdso.Find(); ok {
				lookup = func(name, version string) (uintptr, bool) {
					return v.Lookup(name, version, elf.STT_FUNC)
				}
			} else {
				cfg.errorLogger(errors.New("failed to locate the vDSO mapping"))
			}
		}
		cache = vsyscall.NewCache(lookup, cfg.log)
		// Prime the cache outside of any signal handler.
		cache.Trampoline()
	}
	return &Engine{
		u: unwind.New(unwind.Config{
			Probe:      cfg.probe,
			Trampoline: cache,
		}),
	}
}

// Trace fills pcs with the return addresses of the calling stack, innermost
// first, after dropping skip frames, and returns how many were captured.
// skip counts from the caller: Trace(pcs, 0) starts at the function that
// called Trace. At most len(pcs) frames are captured.
//
//go:noinline
func (e *Engine) Trace(pcs []uintptr, skip int) int {
	return e.u.Unwind(pcs, nil, skip+1, nil, nil)
}

// TraceWithContext is like Trace for a thread interrupted by a signal; ctx
// enables unwinding across the kernel's signal-return trampoline.
//
//go:noinline
func (e *Engine) TraceWithContext(pcs []uintptr, skip int, ctx *SignalContext) int {
	return e.u.Unwind(pcs, nil, skip+1, ctx, nil)
}

// TraceWithContextDropped is like TraceWithContext and additionally stores
// in dropped a lower bound on the number of frames beyond len(pcs).
//
//go:noinline
func (e *Engine) TraceWithContextDropped(pcs []uintptr, skip int, ctx *SignalContext, dropped *int) int {
	return e.u.Unwind(pcs, nil, skip+1, ctx, dropped)
}

// Frames is like Trace and additionally records in sizes[i] the byte size of
// the frame whose return address is pcs[i], 0 when unknown. Capturing sizes
// uses lax frame validation, which tolerates discontiguous stacks but is
// slower.
//
//go:noinline
func (e *Engine) Frames(pcs []uintptr, sizes []int, skip int) int {
	return e.u.Unwind(pcs, sizes, skip+1, nil, nil)
}

// FramesWithContext is like Frames for a signal-interrupted thread.
//
//go:noinline
func (e *Engine) FramesWithContext(pcs []uintptr, sizes []int, skip int, ctx *SignalContext) int {
	return e.u.Unwind(pcs, sizes, skip+1, ctx, nil)
}

// FramesWithContextDropped is like FramesWithContext and additionally stores
// in dropped a lower bound on the number of frames beyond len(pcs).
//
//go:noinline
func (e *Engine) FramesWithContextDropped(pcs []uintptr, sizes []int, skip int, ctx *SignalContext, dropped *int) int {
	return e.u.Unwind(pcs, sizes, skip+1, ctx, dropped)
}

var defaultEngine struct {
	once sync.Once
	e    *Engine
}

// Default returns the shared Engine, creating it with default options on
// first use. Programs that need a configured Engine should call New before
// installing signal handlers that capture stacks.
func Default() *Engine {
	defaultEngine.once.Do(func() {
		defaultEngine.e = New()
	})
	return defaultEngine.e
}

// Trace captures the calling stack using the shared Engine. See
// Engine.Trace.
//
//go:noinline
func Trace(pcs []uintptr, skip int) int {
	return Default().Trace(pcs, skip+1)
}

// TraceWithContext captures the stack of a signal-interrupted thread using
// the shared Engine. See Engine.TraceWithContext.
//
//go:noinline
func TraceWithContext(pcs []uintptr, skip int, ctx *SignalContext) int {
	return Default().TraceWithContext(pcs, skip+1, ctx)
}

// Frames captures the calling stack and frame sizes using the shared
// Engine. See Engine.Frames.
//
//go:noinline
func Frames(pcs []uintptr, sizes []int, skip int) int {
	return Default().Frames(pcs, sizes, skip+1)
}
