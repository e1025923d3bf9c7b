// Package sigctx provides an opaque view of the registers saved when a
// thread was interrupted by a signal. The unwinder only ever needs three of
// them: the frame pointer, the stack pointer, and the instruction pointer.
package sigctx

// Frames larger than this are assumed to be bogus.
const maxFrameBytes = 100000

// Context is a snapshot of the registers of an interrupted thread. The zero
// value reports every register as unknown.
type Context struct {
	fp, sp, ip uintptr
	valid      bool
}

// FromRegs builds a Context from raw register values, for callers that
// already extracted them (e.g. an external profiler feeding us per-thread
// register dumps).
func FromRegs(fp, sp, ip uintptr) Context {
	return Context{fp: fp, sp: sp, ip: ip, valid: true}
}

// Valid reports whether register values are available.
func (c *Context) Valid() bool { return c != nil && c.valid }

// FramePointer returns the saved frame-pointer register, or 0 if unknown.
func (c *Context) FramePointer() uintptr {
	if !c.Valid() {
		return 0
	}
	return c.fp
}

// StackPointer returns the saved stack-pointer register, or 0 if unknown.
func (c *Context) StackPointer() uintptr {
	if !c.Valid() {
		return 0
	}
	return c.sp
}

// InstructionPointer returns the saved instruction pointer, or 0 if unknown.
func (c *Context) InstructionPointer() uintptr {
	if !c.Valid() {
		return 0
	}
	return c.ip
}

// SignalFP returns the frame pointer to start unwinding from, or 0 if
// unknown. The saved frame-pointer register should be usable as long as the
// interrupted code maintains frame pointers, but some code in the process
// may have been compiled without them. If the register does not look like a
// plausible frame pointer for the saved stack pointer, return the stack
// pointer instead: with luck it points at the start of a stack frame;
// otherwise we collect one frame of garbage and the next validation step
// stops the walk.
func (c *Context) SignalFP() uintptr {
	if !c.Valid() {
		return 0
	}
	if c.fp >= c.sp && c.fp-c.sp <= maxFrameBytes {
		return c.fp
	}
	return c.sp
}
