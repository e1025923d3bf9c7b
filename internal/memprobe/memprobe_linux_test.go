//go:build linux

package memprobe

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestProbeReadableWord(t *testing.T) {
	p := Default()
	var word uintptr
	require.True(t, p(uintptr(unsafe.Pointer(&word))))
}

func TestProbeNullAndOverflow(t *testing.T) {
	p := Default()
	require.False(t, p(0))
	require.False(t, p(^uintptr(0)-1))
}

func TestProbeDoesNotAllocate(t *testing.T) {
	p := Default()
	var word uintptr
	addr := uintptr(unsafe.Pointer(&word))
	allocs := testing.AllocsPerRun(100, func() {
		p(addr)
	})
	require.Zero(t, allocs)
}

func TestProbeUnmappedPage(t *testing.T) {
	mem, err := unix.Mmap(-1, 0, unix.Getpagesize(),
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, unix.Munmap(mem))
	}()

	p := Default()
	require.False(t, p(uintptr(unsafe.Pointer(&mem[0]))))
}
