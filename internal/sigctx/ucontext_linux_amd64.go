//go:build linux && amd64

package sigctx

import "unsafe"

// Layout of the linux/amd64 ucontext_t: uc_flags (8), uc_link (8), uc_stack
// (24), then sigcontext. The register offsets below are RBP, RSP and RIP
// within the gregs array of the embedded mcontext.
//
// See https://github.com/torvalds/linux/blob/master/arch/x86/include/uapi/asm/sigcontext.h
const (
	mcontextOffset = 40
	regBPOffset    = mcontextOffset + 10*8
	regSPOffset    = mcontextOffset + 15*8
	regIPOffset    = mcontextOffset + 16*8
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
