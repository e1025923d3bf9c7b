//go:build linux && 386

package sigctx

import "unsafe"

// Layout of the linux/386 ucontext_t: uc_flags (4), uc_link (4), uc_stack
// (12), then sigcontext. The register offsets below are EBP, ESP and EIP
// within the gregs array of the embedded mcontext.
const (
	mcontextOffset = 20
	regBPOffset    = mcontextOffset + 6*4
	regSPOffset    = mcontextOffset + 7*4
	regIPOffset    = mcontextOffset + 14*4
)

// FromUcontext extracts the registers of interest from a raw *ucontext_t, as
// passed to a SA_SIGINFO signal handler's third argument.
func FromUcontext(uc unsafe.Pointer) Context {
	if uc == nil {
		return Context{}
	}
	return Context{
		fp:    *(*uintptr)(unsafe.Pointer(uintptr(uc) + regBPOffset)),
		sp:    *(*uintptr)(unsafe.Pointer(uintptr(uc) + regSPOffset)),
		ip:    *(*uintptr)(unsafe.Pointer(uintptr(uc) + regIPOffset)),
		valid: true,
	}
}
