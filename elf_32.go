//go:build 386 || arm || mips || mipsle

package relocate

import "debug/elf"

// Native ELF structures for 32-bit targets.
type (
	elfDyn  = elf.Dyn32
	elfSym  = elf.Sym32
	elfRel  = elf.Rel32
	elfRela = elf.Rela32
)

func relSym(r elfRel) uint32   { return elf.R_SYM32(r.Info) }
func relaSym(r elfRela) uint32 { return elf.R_SYM32(r.Info) }
