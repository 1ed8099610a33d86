//go:build 386 || arm || mips || mipsle

package relocate

import "debug/elf"

// Fixture constructors for the native ELF class. The relocation type in
// r_info is arbitrary; the processors never look at it.

func makeDyn(tag elf.DynTag, val uintptr) elfDyn {
	return elfDyn{Tag: int32(tag), Val: uint32(val)}
}

func makeSym(nameOff uint32) elfSym {
	return elfSym{Name: nameOff, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT)}
}

func makeRel(off uintptr, sym uint32) elfRel {
	return elfRel{Off: uint32(off), Info: elf.R_INFO32(sym, 1)}
}

func makeRela(off uintptr, sym uint32) elfRela {
	return elfRela{Off: uint32(off), Info: elf.R_INFO32(sym, 1)}
}
