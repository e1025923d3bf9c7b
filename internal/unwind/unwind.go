// Package unwind walks the chain of frame pointers of a call stack,
// collecting the return address of each frame. It is the allocation-free
// core of the library and is safe to invoke from a signal handler.
package unwind

import (
	"unsafe"

	"github.com/framewalk-dev/framewalk-go/internal/memprobe"
	"github.com/framewalk-dev/framewalk-go/internal/sigctx"
	"github.com/framewalk-dev/framewalk-go/internal/vsyscall"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// Frames larger than this are assumed to be bogus.
const maxFrameBytes = 100000

// When estimating how many frames were dropped beyond the capture limit, do
// not walk more than this many extra frames.
const maxDroppedScan = 1000

// Config supplies the external capabilities of an Unwinder.
type Config struct {
	// Probe tests whether an address is safely dereferenceable. Defaults
	// to memprobe.Default().
	Probe memprobe.Probe
	// Trampoline caches the vDSO fast-syscall trampoline description.
	// Only consulted on platforms whose trampoline breaks frame-pointer
	// conventions; may be nil.
	Trampoline *vsyscall.Cache
}

// Unwinder captures call stacks by following saved frame-pointer links. It
// holds no per-call state; a single Unwinder may be used concurrently on
// independent stacks.
type Unwinder struct {
	probe memprobe.Probe
	tramp *vsyscall.Cache
}

func New(cfg Config) *Unwinder {
	if cfg.Probe == nil {
		cfg.Probe = memprobe.Default()
	}
	return &Unwinder{probe: cfg.Probe, tramp: cfg.Trampoline}
}

// NeedsVsyscallFixup reports whether this platform requires the vDSO
// trampoline cache for unwinding signal stacks.
func NeedsVsyscallFixup() bool {
	return hasVsyscallFixup
}

// Unwind fills pcs with the return addresses of the calling stack, innermost
// first, after dropping skip frames, and returns how many were captured. At
// most len(pcs) frames are captured.
//
// If sizes is non-nil, sizes[i] is set to the byte size of the frame whose
// return address is pc[i], or 0 when unknown. Collecting sizes switches the
// walk to lax validation, which tolerates discontiguous stacks at the price
// of consulting the readability probe at every step.
//
// ctx, when non-nil, describes the registers of a signal-interrupted thread
// and enables recovery across kernel signal-return trampolines. dropped,
// when non-nil, receives a lower bound on the number of frames beyond
// len(pcs).
//
// A walk stops, rather than erroring, at the first frame transition that
// cannot be validated; the frames captured so far are still returned.
//
//go:noinline
func (u *Unwinder) Unwind(pcs []uintptr, sizes []int, skip int, ctx *sigctx.Context, dropped *int) int {
	strict := sizes == nil
	return u.unwindFrom(getfp(), pcs, sizes, skip, ctx, dropped, strict)
}

func (u *Unwinder) unwindFrom(fp uintptr, pcs []uintptr, sizes []int, skip int, ctx *sigctx.Context, dropped *int, strict bool) int {
	maxDepth := len(pcs)
	if sizes != nil && len(sizes) < maxDepth {
		maxDepth = len(sizes)
	}
	n := 0
	for fp != 0 && n < maxDepth {
		ret := deref(fp + ptrSize)
		if ret == 0 {
			// A frame that points to itself with a zero return
			// address shows up in idle leaf code; it is not a real
			// caller.
			break
		}
		next := u.nextFrame(fp, ctx, strict)
		if skip > 0 {
			skip--
		} else {
			pcs[n] = ret
			if sizes != nil {
				if next > fp {
					sizes[n] = int(next - fp)
				} else {
					sizes[n] = 0
				}
			}
			n++
		}
		fp = next
	}
	if dropped != nil {
		j := 0
		for ; fp != 0 && j < maxDroppedScan; j++ {
			fp = u.nextFrame(fp, ctx, strict)
		}
		*dropped = j
	}
	return n
}

// nextFrame computes the frame pointer of the caller of the frame at fp, or
// 0 if no trustworthy next frame can be found. Every rejection degrades to
// stopping the walk; a suspect pointer is never followed.
func (u *Unwinder) nextFrame(fp uintptr, ctx *sigctx.Context, strict bool) uintptr {
	next := deref(fp)

	if hasVsyscallFixup && ctx.Valid() {
		next = u.fixupVsyscall(fp, next, ctx)
	}

	// Check that the transition from fp to next is not clearly bogus.
	// The checks are skipped when next matches the signal context's own
	// frame pointer, so that a jump onto an alternate signal stack is not
	// mistaken for corruption.
	if strict && (!ctx.Valid() || next != ctx.SignalFP()) {
		// The stack grows downward, so the caller's frame must be at
		// a higher address, and not implausibly far away.
		if next <= fp {
			return 0
		}
		if next-fp > maxFrameBytes {
			return 0
		}
	} else {
		if next == 0 {
			return 0
		}
		// Lax mode allows discontiguous frames (alternate signal
		// stacks for example), but a self-loop still means stop.
		if next == fp {
			return 0
		}
	}

	if next&(ptrSize-1) != 0 {
		return 0
	}
	if hasKernelGuard && next >= kernelGuardStart {
		return 0
	}
	if !strict && !u.probe(next) {
		// Lax mode runs on stacks that are already suspect, so spend
		// the extra probe to be sure the pointer is dereferenceable.
		return 0
	}
	return next
}

// fixupVsyscall recovers the caller's frame pointer when the walk has
// stepped up into the kernel's __kernel_vsyscall trampoline, whose code does
// not maintain a frame pointer. In that situation the naive candidate is the
// interrupted thread's own frame-pointer register and useless; the caller's
// frame is instead found in a stack slot just past the registers the
// trampoline pushed.
func (u *Unwinder) fixupVsyscall(fp, next uintptr, ctx *sigctx.Context) uintptr {
	tr := u.tramp.Trampoline()
	if tr == nil || tr.PushCount == 0 || tr.SigreturnAddr == 0 {
		return next
	}
	if deref(fp+ptrSize) != tr.SigreturnAddr {
		return next
	}
	ip := ctx.InstructionPointer()
	if next != ctx.FramePointer() || ip < tr.EntryAddr || ip-tr.EntryAddr >= vsyscall.MaxScanBytes {
		return next
	}
	sp := ctx.StackPointer()
	if sp == 0 || sp&(ptrSize-1) != 0 {
		return next
	}
	slot := sp + uintptr(tr.PushCount-1)*ptrSize
	if !u.probe(slot) {
		return next
	}
	cand := deref(slot)
	if cand == 0 || !u.probe(cand) {
		return next
	}
	return cand
}

// deref reads the word at ptr. Callers must only pass addresses that are
// either trusted (the running thread's own frame) or already validated by
// nextFrame's checks or the readability probe.
func deref(ptr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(ptr))
}
