// Package elf implements the minimal ELF-header inspection the static-
// binary/ptrace-fallback component (C9) needs: is the target
// dynamically linked (has a PT_INTERP program header) or not.
package elf

import (
	"debug/elf"
	"fmt"
)

// IsStaticallyLinked opens path with the real (non-hooked) open and
// inspects its ELF header: it returns true for an ET_EXEC or ET_DYN
// binary that carries no PT_INTERP program header, i.e. one the
// dynamic linker will never load an interpreter for.
//
// Because SPEC_FULL.md §0 routes every traced binary — static or
// dynamic — through the same ptrace loop, this result is no longer a
// mechanism-selection switch; it is reported metadata (the FORCED_PTRACE
// list and exec reports still need to know).
func IsStaticallyLinked(path string) (bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return false, fmt.Errorf("elf: open %q: %w", path, err)
	}
	defer f.Close()

	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return false, nil
	}
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			return false, nil
		}
	}
	return true, nil
}
