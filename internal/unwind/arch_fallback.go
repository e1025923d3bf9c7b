//go:build !amd64 && !386

package unwind

const (
	hasVsyscallFixup = false
	hasKernelGuard   = false
	kernelGuardStart = 0
)
