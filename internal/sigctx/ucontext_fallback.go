//go:build !(linux && amd64) && !(linux && 386)

package sigctx

import "unsafe"

// FromUcontext returns an unknown-register Context on platforms where we do
// not know the ucontext layout.
func FromUcontext(uc unsafe.Pointer) Context {
	return Context{}
}
