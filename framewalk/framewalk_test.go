package framewalk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/framewalk-dev/framewalk-go/framewalk"
)

func TestDefaultEngineIsShared(t *testing.T) {
	require.Same(t, framewalk.Default(), framewalk.Default())
}

func TestNewWithOptions(t *testing.T) {
	e := framewalk.New(
		framewalk.WithReadabilityProbe(func(addr uintptr) bool { return false }),
		framewalk.WithSymbolLookup(func(name, version string) (uintptr, bool) { return 0, false }),
		framewalk.WithErrorLogger(func(err error) {}),
		framewalk.WithoutVsyscallFixup(),
	)
	require.NotNil(t, e)
}

func TestContextFromRegs(t *testing.T) {
	ctx := framewalk.ContextFromRegs(0x2000, 0x1000, 0x4000)
	require.True(t, ctx.Valid())
	require.Equal(t, uintptr(0x2000), ctx.FramePointer())
	require.Equal(t, uintptr(0x1000), ctx.StackPointer())
	require.Equal(t, uintptr(0x4000), ctx.InstructionPointer())
}

func TestCollector(t *testing.T) {
	c := framewalk.NewCollector()
	c.Add([]uintptr{0x1000, 0x2000})
	c.Add([]uintptr{0x1000, 0x2000})
	samples := c.Samples()
	require.Len(t, samples, 1)
	require.Equal(t, uint64(2), samples[0].Count)
}
