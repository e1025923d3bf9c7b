// Package memprobe contains the readability probe used to test whether an
// address can be dereferenced without faulting.
package memprobe

import "unsafe"

const wordSize = int(unsafe.Sizeof(uintptr(0)))

// Probe reports whether a full word starting at addr can be read without
// faulting. Implementations must never fault themselves; the unwinder calls
// the probe on addresses derived from possibly corrupted stack memory.
type Probe func(addr uintptr) bool

// Default returns the probe for the current platform.
func Default() Probe {
	return defaultProbe
}
