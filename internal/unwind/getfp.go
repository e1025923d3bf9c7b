//go:build amd64 || 386

package unwind

// getfp returns the frame pointer of its caller. Implemented in assembly.
func getfp() uintptr
