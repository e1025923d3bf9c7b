package vsyscall

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCountPushes(t *testing.T) {
	pad := func(code ...byte) []byte {
		out := make([]byte, MaxScanBytes+1)
		copy(out, code)
		for i := len(code); i < len(out); i++ {
			out[i] = 0x90
		}
		return out
	}

	tests := []struct {
		name  string
		code  []byte
		count int
		ok    bool
	}{
		{
			// linux-2.6.26/arch/x86/vdso/vdso32/sysenter.S: the
			// trampoline establishes a frame pointer, so no slot
			// correction is needed.
			name:  "sysenter",
			code:  pad(0x51, 0x52, 0x55, 0x89, 0xE5, 0x0F, 0x34),
			count: 0,
			ok:    true,
		},
		{
			// linux-2.6.26/arch/x86/vdso/vdso32/syscall.S: push
			// %ebp; mov %ecx,%ebp; syscall.
			name:  "syscall",
			code:  pad(0x55, 0x89, 0xCD, 0x0F, 0x05),
			count: 1,
			ok:    true,
		},
		{
			// linux-2.6.26/arch/x86/vdso/vdso32/int80.S.
			name:  "int80",
			code:  pad(0xCD, 0x80),
			count: 0,
			ok:    true,
		},
		{
			name:  "pushes then syscall",
			code:  pad(0x51, 0x52, 0x53, 0x55, 0x0F, 0x05),
			count: 4,
			ok:    true,
		},
		{
			name: "pushes before int80 are not a known shape",
			code: pad(0x55, 0xCD, 0x80),
			ok:   false,
		},
		{
			name: "unexpected instruction",
			code: pad(0x90),
			ok:   false,
		},
		{
			name: "budget exhausted without terminal",
			code: pad(0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57, 0x50, 0x51, 0x52),
			ok:   false,
		},
		{
			name: "empty",
			code: nil,
			ok:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			count, ok := CountPushes(tc.code)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.count, count)
		})
	}
}

func TestCacheComputesOnce(t *testing.T) {
	code := []byte{0x51, 0x52, 0x53, 0x0F, 0x34, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}
	entry := uintptr(unsafe.Pointer(&code[0]))
	var sigretWord uintptr
	sigret := uintptr(unsafe.Pointer(&sigretWord))

	lookups := 0
	cache := NewCache(func(name, version string) (uintptr, bool) {
		lookups++
		require.Equal(t, "LINUX_2.5", version)
		switch name {
		case "__kernel_vsyscall":
			return entry, true
		case "__kernel_rt_sigreturn":
			return sigret, true
		}
		return 0, false
	}, nil)

	tr := cache.Trampoline()
	require.NotNil(t, tr)
	require.Equal(t, entry, tr.EntryAddr)
	require.Equal(t, sigret, tr.SigreturnAddr)
	require.Equal(t, 3, tr.PushCount)

	// The lookup ran once for each symbol and never again.
	require.Equal(t, tr, cache.Trampoline())
	require.Equal(t, 2, lookups)
	runtime.KeepAlive(code)
}

func TestCacheConcurrentFirstUse(t *testing.T) {
	code := []byte{0x55, 0x0F, 0x34, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}
	entry := uintptr(unsafe.Pointer(&code[0]))
	var sigretWord uintptr
	sigret := uintptr(unsafe.Pointer(&sigretWord))

	cache := NewCache(func(name, version string) (uintptr, bool) {
		if name == "__kernel_vsyscall" {
			return entry, true
		}
		return sigret, true
	}, nil)

	results := make([]*Trampoline, 16)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			results[i] = cache.Trampoline()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NotNil(t, results[0])
	for _, tr := range results {
		require.Same(t, results[0], tr)
	}
	runtime.KeepAlive(code)
}

func TestCacheAbsentVDSO(t *testing.T) {
	cache := NewCache(nil, nil)
	require.Nil(t, cache.Trampoline())
}

func TestCacheMissingSymbols(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	cache := NewCache(func(name, version string) (uintptr, bool) {
		return 0, false
	}, logger)
	require.Nil(t, cache.Trampoline())
	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestCacheUnrecognizedTrampolineDegrades(t *testing.T) {
	code := []byte{0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}
	entry := uintptr(unsafe.Pointer(&code[0]))
	var sigretWord uintptr
	sigret := uintptr(unsafe.Pointer(&sigretWord))

	logger, hook := logrustest.NewNullLogger()
	cache := NewCache(func(name, version string) (uintptr, bool) {
		if name == "__kernel_vsyscall" {
			return entry, true
		}
		return sigret, true
	}, logger)

	// Degrades to "zero pushes": trampoline handling is disabled rather
	// than failing the unwind, and the anomaly is reported.
	tr := cache.Trampoline()
	require.NotNil(t, tr)
	require.Equal(t, 0, tr.PushCount)
	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	runtime.KeepAlive(code)
}
