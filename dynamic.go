package relocate

import (
	"debug/elf"
	"fmt"
	"unsafe"
)

// StringTable is a borrowed view of a shared object's dynamic string table.
// It stays valid for exactly as long as the object stays mapped; nothing
// here manages that lifetime.
type StringTable struct {
	base uintptr
	size uintptr
}

// Names can get long (C++ manglings run to hundreds of bytes) but a multi-KB
// "name" means we are reading garbage. Only used when DT_STRSZ was absent.
const maxSymbolName = 4096

// Lookup resolves an st_name offset to a symbol name. Offsets outside the
// table are rejected rather than truncated.
func (t StringTable) Lookup(off uint32) (string, error) {
	limit := t.size
	if limit == 0 {
		limit = uintptr(off) + maxSymbolName
	}
	if uintptr(off) >= limit {
		return "", fmt.Errorf("st_name %#x outside string table of %d bytes", off, t.size)
	}
	view := unsafe.Slice((*byte)(unsafe.Pointer(t.base)), limit)
	for i := uintptr(off); i < limit; i++ {
		if view[i] == 0 {
			return string(view[uintptr(off):i]), nil
		}
	}
	return "", fmt.Errorf("unterminated name at st_name %#x", off)
}

// SymbolTable is a borrowed view of the dynamic symbol table. The dynamic
// section does not advertise the table's length; indices are trusted to be
// in range because they come from the object's own relocation arrays.
type SymbolTable struct {
	base uintptr
}

func (t SymbolTable) symbol(i uint32) *elfSym {
	return (*elfSym)(unsafe.Pointer(t.base + uintptr(i)*unsafe.Sizeof(elfSym{})))
}

// Name resolves symbol i's name through strtab.
func (t SymbolTable) Name(i uint32, strtab StringTable) (string, error) {
	return strtab.Lookup(t.symbol(i).Name)
}

// RelocationHandler receives one call per relocation array found in a
// dynamic section. Dispatch happens only after the whole section has been
// scanned, never interleaved with the scan. Each method returns the number
// of entries it could not process; handlers are expected to keep going past
// individual failures rather than abort the array.
type RelocationHandler interface {
	Rel(rel []elfRel, strtab StringTable, symtab SymbolTable, base uintptr) int
	Rela(rela []elfRela, strtab StringTable, symtab SymbolTable, base uintptr) int
}

// ProcessDynamic walks the PT_DYNAMIC segment of a loaded shared object and
// hands each relocation array it advertises to h. start is the in-memory
// address of the segment, size its byte length, and base the object's load
// address as reported by the dynamic linker (a file offset will not do).
//
// DT_RELA, DT_REL and DT_JMPREL arrays are dispatched in that order, each at
// most once. An object with none of them is fine; relocation tags without
// the DT_STRTAB/DT_SYMTAB they rely on are a malformed dynamic section and
// an error, since skipping them would leave relocations silently
// unredirected.
//
// The returned count is the total number of relocation entries the handler
// failed on; structural problems come back as the error instead.
func ProcessDynamic(start, size, base uintptr, h RelocationHandler) (failed int, err error) {
	if start == 0 || size == 0 {
		return 0, fmt.Errorf("no dynamic section (start %#x, %d bytes)", start, size)
	}

	var (
		rel, relsz       uintptr
		rela, relasz     uintptr
		jmprel, pltrelsz uintptr
		pltrel           elf.DynTag
		strtab, strsz    uintptr
		symtab, syment   uintptr

		hasRel, hasRela, hasJmprel bool
		hasStrtab, hasSymtab       bool
	)

	// Tag order in the dynamic section is not guaranteed; DT_STRTAB can
	// legitimately appear after the relocation tags that need it. Scan
	// everything before dispatching anything.
	dyn := unsafe.Slice((*elfDyn)(unsafe.Pointer(start)), size/unsafe.Sizeof(elfDyn{}))
scan:
	for _, d := range dyn {
		switch elf.DynTag(d.Tag) {
		case elf.DT_NULL:
			break scan
		case elf.DT_REL:
			rel, hasRel = uintptr(d.Val), true
		case elf.DT_RELSZ:
			relsz = uintptr(d.Val)
		case elf.DT_RELA:
			rela, hasRela = uintptr(d.Val), true
		case elf.DT_RELASZ:
			relasz = uintptr(d.Val)
		case elf.DT_JMPREL:
			jmprel, hasJmprel = uintptr(d.Val), true
		case elf.DT_PLTRELSZ:
			pltrelsz = uintptr(d.Val)
		case elf.DT_PLTREL:
			pltrel = elf.DynTag(d.Val)
		case elf.DT_STRTAB:
			strtab, hasStrtab = uintptr(d.Val), true
		case elf.DT_STRSZ:
			strsz = uintptr(d.Val)
		case elf.DT_SYMTAB:
			symtab, hasSymtab = uintptr(d.Val), true
		case elf.DT_SYMENT:
			syment = uintptr(d.Val)
		}
	}

	if !hasRel && !hasRela && !hasJmprel {
		// Nothing to redirect. Objects commonly carry a single
		// relocation flavor, or none at all.
		return 0, nil
	}
	if !hasStrtab || !hasSymtab {
		return 0, fmt.Errorf("dynamic section has relocations but no DT_STRTAB/DT_SYMTAB")
	}
	if syment != 0 && syment != unsafe.Sizeof(elfSym{}) {
		return 0, fmt.Errorf("DT_SYMENT is %d, want %d", syment, unsafe.Sizeof(elfSym{}))
	}

	st := StringTable{base: rebase(base, strtab), size: strsz}
	symt := SymbolTable{base: rebase(base, symtab)}

	if hasRela {
		failed += h.Rela(relaSlice(base, rela, relasz), st, symt, base)
	}
	if hasRel {
		failed += h.Rel(relSlice(base, rel, relsz), st, symt, base)
	}
	if hasJmprel {
		// PLT jump slots are a third array whose entry layout is
		// whatever DT_PLTREL says it is.
		switch pltrel {
		case elf.DT_RELA:
			failed += h.Rela(relaSlice(base, jmprel, pltrelsz), st, symt, base)
		case elf.DT_REL:
			failed += h.Rel(relSlice(base, jmprel, pltrelsz), st, symt, base)
		default:
			return failed, fmt.Errorf("DT_JMPREL present but DT_PLTREL is %v", pltrel)
		}
	}

	return failed, nil
}

func relSlice(base, addr, size uintptr) []elfRel {
	return unsafe.Slice((*elfRel)(unsafe.Pointer(rebase(base, addr))), size/unsafe.Sizeof(elfRel{}))
}

func relaSlice(base, addr, size uintptr) []elfRela {
	return unsafe.Slice((*elfRela)(unsafe.Pointer(rebase(base, addr))), size/unsafe.Sizeof(elfRela{}))
}

// rebase turns an image-relative d_ptr into an absolute address. glibc's
// ld.so rewrites d_ptr entries in place, so they usually arrive absolute
// already; other loaders leave them relative to the load base.
func rebase(base, ptr uintptr) uintptr {
	if ptr < base {
		return base + ptr
	}
	return ptr
}
