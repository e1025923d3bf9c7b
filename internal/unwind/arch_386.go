//go:build 386

package unwind

// On 32-bit x86 the stack can live very close to the top of the address
// space, where the kernel reserves the last two pages; a frame pointer in
// that region is never legitimate. The vDSO fast-syscall trampoline also
// needs special handling, see fixupVsyscall.
const (
	hasVsyscallFixup = true
	hasKernelGuard   = true
	kernelGuardStart = 0xffffe000
)
