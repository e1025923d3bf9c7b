//go:build !amd64 && !386

package unwind

// Without frame pointers there is nothing to walk; Unwind captures zero
// frames on unsupported architectures.
func getfp() uintptr {
	return 0
}
