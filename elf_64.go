//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package relocate

import "debug/elf"

// Native ELF structures for 64-bit targets. The two ELF classes use
// structurally distinct but field-equivalent layouts; a process only ever
// patches objects of its own class, so the choice is made at build time.
type (
	elfDyn  = elf.Dyn64
	elfSym  = elf.Sym64
	elfRel  = elf.Rel64
	elfRela = elf.Rela64
)

func relSym(r elfRel) uint32   { return elf.R_SYM64(r.Info) }
func relaSym(r elfRela) uint32 { return elf.R_SYM64(r.Info) }
