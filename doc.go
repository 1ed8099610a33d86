// Redirect symbol references of already-loaded shared objects
//
// The dynamic linker resolves a shared object's relocations once, at load
// time. This package re-resolves them afterwards: it walks the object's
// PT_DYNAMIC segment, finds the DT_REL/DT_RELA (and DT_JMPREL) relocation
// arrays, and rewrites the entries whose symbols the caller wants pointed
// somewhere else. Pages the loader left read-only (RELRO) are made writable
// around each patch and restored afterwards, using a snapshot of
// /proc/self/maps to recover the original protection.
//
// Limitations:
//   - Linux only
//   - Only patches objects of the running process's own ELF class
//   - A campaign is single-threaded; concurrent campaigns over overlapping
//     address ranges will race on page protections
//   - Deciding which symbols to redirect, and to where, is the caller's
//     problem
package relocate
