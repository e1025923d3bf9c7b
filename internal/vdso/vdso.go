// Package vdso locates the vDSO object the kernel maps into every process
// and resolves its exported symbols.
package vdso

import (
	"bufio"
	"bytes"
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"
)

// VDSO is a handle to the in-process vDSO mapping.
type VDSO struct {
	base uintptr
	file *elf.File
	syms []elf.Symbol
}

// Find locates the vDSO mapping of the current process, or reports that none
// is present. The mapping is identified through /proc/self/maps and its
// bytes parsed as an in-memory ELF image.
func Find() (*VDSO, bool) {
	start, end, ok := findMapping()
	if !ok {
		return nil, false
	}
	v, err := parse(start, end)
	if err != nil {
		return nil, false
	}
	return v, true
}

// findMapping scans /proc/self/maps for the [vdso] region.
func findMapping() (start, end uintptr, ok bool) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasSuffix(line, "[vdso]") {
			continue
		}
		addrs, _, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		lo, hi, found := strings.Cut(addrs, "-")
		if !found {
			continue
		}
		s, err1 := strconv.ParseUint(lo, 16, 64)
		e, err2 := strconv.ParseUint(hi, 16, 64)
		if err1 != nil || err2 != nil || e <= s {
			continue
		}
		return uintptr(s), uintptr(e), true
	}
	return 0, 0, false
}

func parse(start, end uintptr) (*VDSO, error) {
	// The vDSO is always mapped readable; snapshot it so the ELF parser
	// works on stable memory we own.
	image := make([]byte, end-start)
	copy(image, unsafe.Slice((*byte)(unsafe.Pointer(start)), len(image)))
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vDSO image: %w", err)
	}
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read vDSO dynamic symbols: %w", err)
	}
	return &VDSO{base: start, file: f, syms: syms}, nil
}

// Lookup resolves an exported symbol by name, version and symbol type,
// returning its address in this process. Version matching is best effort:
// it is enforced only when the symbol table carries version information.
func (v *VDSO) Lookup(name, version string, typ elf.SymType) (uintptr, bool) {
	for i := range v.syms {
		s := &v.syms[i]
		if s.Name != name {
			continue
		}
		if elf.ST_TYPE(s.Info) != typ {
			continue
		}
		if s.Version != "" && s.Version != version {
			continue
		}
		// The vDSO is prelinked; symbol values are vaddrs relative to
		// the load address recorded in the image.
		return v.base + uintptr(s.Value-v.loadVaddr()), true
	}
	return 0, false
}

func (v *VDSO) loadVaddr() uint64 {
	for _, p := range v.file.Progs {
		if p.Type == elf.PT_LOAD {
			return p.Vaddr
		}
	}
	return 0
}
