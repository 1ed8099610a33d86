//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package relocate

import "debug/elf"

// Fixture constructors for the native ELF class. The relocation type in
// r_info is arbitrary; the processors never look at it.

func makeDyn(tag elf.DynTag, val uintptr) elfDyn {
	return elfDyn{Tag: int64(tag), Val: uint64(val)}
}

func makeSym(nameOff uint32) elfSym {
	return elfSym{Name: nameOff, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT)}
}

func makeRel(off uintptr, sym uint32) elfRel {
	return elfRel{Off: uint64(off), Info: elf.R_INFO(sym, 1)}
}

func makeRela(off uintptr, sym uint32) elfRela {
	return elfRela{Off: uint64(off), Info: elf.R_INFO(sym, 1)}
}
