package relocate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// MappedRegion is one line of /proc/self/maps: a contiguous virtual memory
// mapping and the protection the kernel had granted it when the snapshot was
// taken.
type MappedRegion struct {
	Start uintptr
	End   uintptr

	// Protect is a unix.PROT_* bitmask captured at parse time. It is not
	// updated by later AddProtection/ResetProtection calls; it exists so
	// ResetProtection knows what to go back to.
	Protect int

	// Path is the backing file, a bracketed pseudo-path like [heap] or
	// [stack], or empty for anonymous mappings.
	Path string

	// Invalid marks a maps line that could not be parsed. Invalid entries
	// are inert: Find skips them and they are never candidates for
	// protection changes.
	Invalid bool
}

// Mappings is a point-in-time snapshot of the process's memory map.
type Mappings []MappedRegion

// LoadMappings parses /proc/self/maps. A malformed line is kept as an entry
// with Invalid set rather than aborting the load, so one odd line doesn't
// lose the rest of the table.
func LoadMappings() (Mappings, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, fmt.Errorf("loading memory map: %w", err)
	}
	defer f.Close()
	return parseMappings(f)
}

func parseMappings(r io.Reader) (Mappings, error) {
	var table Mappings
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		region, ok := parseMapsLine(line)
		if !ok {
			region = MappedRegion{Invalid: true}
		}
		table = append(table, region)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading memory map: %w", err)
	}
	return table, nil
}

// parseMapsLine parses one maps line:
//
//	start-end perms offset dev inode [path]
//
// e.g. "7f1bd4a00000-7f1bd4a21000 r--p 00000000 08:01 393237   /usr/lib/libc.so.6"
func parseMapsLine(line string) (MappedRegion, bool) {
	var r MappedRegion

	bounds, rest, ok := strings.Cut(line, " ")
	if !ok {
		return r, false
	}
	lo, hi, ok := strings.Cut(bounds, "-")
	if !ok {
		return r, false
	}
	start, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return r, false
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil || end < start {
		return r, false
	}
	r.Start = uintptr(start)
	r.End = uintptr(end)

	perms, rest, ok := strings.Cut(rest, " ")
	if !ok || len(perms) != 4 {
		return r, false
	}
	switch perms[0] {
	case 'r':
		r.Protect |= unix.PROT_READ
	case '-':
	default:
		return r, false
	}
	switch perms[1] {
	case 'w':
		r.Protect |= unix.PROT_WRITE
	case '-':
	default:
		return r, false
	}
	switch perms[2] {
	case 'x':
		r.Protect |= unix.PROT_EXEC
	case '-':
	default:
		return r, false
	}
	switch perms[3] {
	case 'p', 's':
	default:
		return r, false
	}

	// offset, device and inode are skipped, but all three must be present
	// and the offset must at least look like hex.
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return r, false
	}
	if _, err := strconv.ParseUint(fields[0], 16, 64); err != nil {
		return r, false
	}
	if len(fields) > 3 {
		r.Path = strings.Join(fields[3:], " ")
	}

	return r, true
}

// Find returns the region containing addr, or nil if addr is unmapped (or
// only covered by an Invalid entry). Bounds are half-open: a region contains
// addr when Start <= addr < End. The scan is linear and the first match
// wins; a maps table is a few hundred entries at most.
func (m Mappings) Find(addr uintptr) *MappedRegion {
	for i := range m {
		r := &m[i]
		if r.Invalid {
			continue
		}
		if r.Start <= addr && addr < r.End {
			return r
		}
	}
	return nil
}
