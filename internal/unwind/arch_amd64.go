//go:build amd64

package unwind

// amd64 has no fast-syscall trampoline that breaks frame-pointer
// conventions, and frame pointers never point near the top of the address
// space.
const (
	hasVsyscallFixup = false
	hasKernelGuard   = false
	kernelGuardStart = 0
)
