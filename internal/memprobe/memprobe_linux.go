//go:build linux

package memprobe

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var selfPID = unix.Getpid()

// defaultProbe tests readability by asking the kernel to copy one word out of
// our own address space. process_vm_readv validates the remote range and
// returns EFAULT instead of delivering a signal, so the probe itself can
// never fault, unlike a direct load.
//
// The probe runs on every step of a lax-mode unwind, so it issues the raw
// syscall with stack-allocated iovecs; the wrapped ProcessVMReadv takes
// iovec slices, which escape and allocate per call.
func defaultProbe(addr uintptr) bool {
	if addr == 0 || addr+uintptr(wordSize) < addr {
		return false
	}
	var word uintptr
	local := unix.Iovec{Base: (*byte)(unsafe.Pointer(&word))}
	local.SetLen(wordSize)
	remote := unix.RemoteIovec{Base: addr, Len: wordSize}
	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(selfPID),
		uintptr(unsafe.Pointer(&local)), 1,
		uintptr(unsafe.Pointer(&remote)), 1,
		0,
	)
	return errno == 0 && int(n) == wordSize
}
