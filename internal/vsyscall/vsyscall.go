// Package vsyscall understands the kernel-provided __kernel_vsyscall
// trampoline used for fast system-call entry on linux/386. Depending on the
// CPU, the kernel builds the trampoline out of a few "push %reg"
// instructions followed by SYSENTER or SYSCALL, without establishing a frame
// pointer. Stacks interrupted inside it cannot be unwound by following frame
// pointers alone; the unwinder instead needs to know how many registers the
// trampoline pushed so it can recover the caller's frame from a stack slot.
package vsyscall

import (
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// MaxScanBytes is how many instruction bytes of __kernel_vsyscall are
// examined before giving up. Up to MaxScanBytes+1 bytes may be read.
const MaxScanBytes = 10

// Trampoline describes the vDSO fast-syscall trampoline of the running
// kernel. It never changes for the lifetime of the process.
type Trampoline struct {
	// EntryAddr is the address of __kernel_vsyscall.
	EntryAddr uintptr
	// SigreturnAddr is the address of __kernel_rt_sigreturn. Return
	// addresses equal to it mark signal frames.
	SigreturnAddr uintptr
	// PushCount is the number of "push %reg" instructions at EntryAddr, or
	// 0 if the trampoline establishes a conventional frame pointer.
	PushCount int
}

type stepKind int

// Instruction shapes recognized inside __kernel_vsyscall.
const (
	stepPush          stepKind = iota // push %reg
	stepRegMove                       // mov %reg,%reg other than mov %esp,%ebp
	stepFrameSetup                    // mov %esp,%ebp
	stepSyscallEntry                  // sysenter or syscall
	stepSoftInterrupt                 // int $0x80
	stepInvalid
)

// classifyStep decodes the first instruction of code, returning its kind and
// encoded length. Known __kernel_vsyscall bodies contain nothing else; see
// linux arch/x86/vdso/vdso32/{sysenter,syscall,int80}.S.
func classifyStep(code []byte) (stepKind, int) {
	if len(code) == 0 {
		return stepInvalid, 0
	}
	switch {
	case code[0] == 0x89:
		if len(code) < 2 {
			return stepInvalid, 0
		}
		if code[1] == 0xE5 {
			return stepFrameSetup, 2
		}
		return stepRegMove, 2
	case code[0] == 0x0F:
		if len(code) < 2 {
			return stepInvalid, 0
		}
		if code[1] == 0x34 || code[1] == 0x05 {
			return stepSyscallEntry, 2
		}
		return stepInvalid, 0
	case code[0]&0xF0 == 0x50:
		return stepPush, 1
	case code[0] == 0xCD:
		if len(code) >= 2 && code[1] == 0x80 {
			return stepSoftInterrupt, 2
		}
		return stepInvalid, 0
	}
	return stepInvalid, 0
}

// CountPushes counts the "push %reg" instructions preceding the actual
// syscall-entry instruction of the trampoline whose first MaxScanBytes+1
// bytes are given in code. It returns 0 if the trampoline establishes a
// conventional frame pointer instead. ok is false when an unrecognized byte
// is met or the scan budget runs out without a terminal instruction, which
// means our assumptions about the kernel no longer hold.
func CountPushes(code []byte) (count int, ok bool) {
	for i := 0; i < MaxScanBytes; {
		kind, width := classifyStep(code[i:])
		switch kind {
		case stepPush:
			count++
		case stepRegMove:
			// A move between ordinary registers, as in the SYSCALL
			// variant's "mov %ecx,%ebp". Not a push; keep scanning.
		case stepFrameSetup:
			return 0, true
		case stepSyscallEntry:
			return count, true
		case stepSoftInterrupt:
			// The legacy int80 trampoline starts with the interrupt
			// itself; pushes before it are not a known shape.
			return 0, count == 0
		default:
			return 0, false
		}
		i += width
	}
	return 0, false
}

// Lookup resolves an exported symbol of the vDSO by name and version,
// returning its address.
type Lookup func(name, version string) (uintptr, bool)

// Cache memoizes the trampoline description. The kernel-provided code is
// immutable, so the computation happens at most once per process; the
// sync.Once guard makes a concurrent first use safe.
type Cache struct {
	once   sync.Once
	tr     *Trampoline
	lookup Lookup
	log    logrus.FieldLogger
}

// NewCache returns a Cache resolving the trampoline through lookup. A nil
// lookup means the vDSO is not mapped, in which case no trampoline handling
// applies. Failures during resolution are reported through log and degrade
// to "no trampoline" rather than failing the unwind.
func NewCache(lookup Lookup, log logrus.FieldLogger) *Cache {
	return &Cache{lookup: lookup, log: log}
}

// Trampoline returns the memoized trampoline description, or nil when the
// vDSO is absent or could not be understood. Safe for concurrent use, but
// the first call reads the vDSO and must not happen inside a signal
// handler; callers are expected to prime the cache at setup time.
func (c *Cache) Trampoline() *Trampoline {
	if c == nil {
		return nil
	}
	c.once.Do(c.compute)
	return c.tr
}

func (c *Cache) compute() {
	if c.lookup == nil {
		return
	}
	entry, ok1 := c.lookup("__kernel_vsyscall", "LINUX_2.5")
	sigret, ok2 := c.lookup("__kernel_rt_sigreturn", "LINUX_2.5")
	if !ok1 || !ok2 || entry == 0 || sigret == 0 {
		if c.log != nil {
			c.log.Error("vDSO is mapped but does not export the expected trampoline symbols")
		}
		return
	}
	code := unsafe.Slice((*byte)(unsafe.Pointer(entry)), MaxScanBytes+1)
	count, ok := CountPushes(code)
	if !ok {
		// The reference behavior is to abort here. As a library we
		// cannot take the process down, so treat the trampoline as
		// frame-pointer-conventional and report the anomaly.
		if c.log != nil {
			c.log.WithField("addr", entry).
				Error("unrecognized instruction sequence in __kernel_vsyscall")
		}
	}
	c.tr = &Trampoline{
		EntryAddr:     entry,
		SigreturnAddr: sigret,
		PushCount:     count,
	}
}
