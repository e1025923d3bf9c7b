package framewalk

import (
	"unsafe"

	"github.com/framewalk-dev/framewalk-go/internal/sigctx"
)

// SignalContext is an opaque snapshot of the registers of a
// signal-interrupted thread. Pass one to the *WithContext capture functions
// to unwind the interrupted code rather than the handler.
type SignalContext = sigctx.Context

// ContextFromUcontext builds a SignalContext from the raw *ucontext_t passed
// as the third argument of an SA_SIGINFO signal handler. On platforms where
// the ucontext layout is unknown the result reports no registers and
// captures degrade gracefully.
func ContextFromUcontext(uc unsafe.Pointer) SignalContext {
	return sigctx.FromUcontext(uc)
}

// ContextFromRegs builds a SignalContext from already-extracted register
// values, for callers that obtain per-thread register dumps by other means.
func ContextFromRegs(fp, sp, ip uintptr) SignalContext {
	return sigctx.FromRegs(fp, sp, ip)
}
