package relocate

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseMapsLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want MappedRegion
		ok   bool
	}{
		{
			name: "file backed",
			line: "7f1bd4a00000-7f1bd4a21000 r--p 00000000 08:01 393237                     /usr/lib/libc.so.6",
			want: MappedRegion{
				Start:   0x7f1bd4a00000,
				End:     0x7f1bd4a21000,
				Protect: unix.PROT_READ,
				Path:    "/usr/lib/libc.so.6",
			},
			ok: true,
		},
		{
			name: "anonymous",
			line: "7f1bd4c00000-7f1bd4c21000 rw-p 00000000 00:00 0",
			want: MappedRegion{
				Start:   0x7f1bd4c00000,
				End:     0x7f1bd4c21000,
				Protect: unix.PROT_READ | unix.PROT_WRITE,
			},
			ok: true,
		},
		{
			name: "pseudo path",
			line: "5583a8b00000-5583a8b21000 rw-p 00000000 00:00 0                          [heap]",
			want: MappedRegion{
				Start:   0x5583a8b00000,
				End:     0x5583a8b21000,
				Protect: unix.PROT_READ | unix.PROT_WRITE,
				Path:    "[heap]",
			},
			ok: true,
		},
		{
			name: "executable shared",
			line: "7f1bd4a21000-7f1bd4b9d000 r-xs 00021000 08:01 393237                     /usr/lib/libc.so.6",
			want: MappedRegion{
				Start:   0x7f1bd4a21000,
				End:     0x7f1bd4b9d000,
				Protect: unix.PROT_READ | unix.PROT_EXEC,
				Path:    "/usr/lib/libc.so.6",
			},
			ok: true,
		},
		{
			name: "path with spaces",
			line: "7f0000000000-7f0000001000 r--p 00000000 08:01 42                         /tmp/with space.so",
			want: MappedRegion{
				Start:   0x7f0000000000,
				End:     0x7f0000001000,
				Protect: unix.PROT_READ,
				Path:    "/tmp/with space.so",
			},
			ok: true,
		},
		{name: "garbage", line: "not a maps line at all"},
		{name: "no dash in range", line: "7f1bd4a00000 r--p 00000000 08:01 393237"},
		{name: "bad start address", line: "zzz-7f1bd4a21000 r--p 00000000 08:01 393237"},
		{name: "end before start", line: "7f1bd4a21000-7f1bd4a00000 r--p 00000000 08:01 393237"},
		{name: "short perms", line: "7f1bd4a00000-7f1bd4a21000 r-- 00000000 08:01 393237"},
		{name: "unknown perm char", line: "7f1bd4a00000-7f1bd4a21000 q--p 00000000 08:01 393237"},
		{name: "missing inode column", line: "7f1bd4a00000-7f1bd4a21000 r--p 00000000 08:01"},
		{name: "non-hex offset", line: "7f1bd4a00000-7f1bd4a21000 r--p zzzzz 08:01 393237"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseMapsLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseMappings_KeepsGoodLines(t *testing.T) {
	assert := assert.New(t)

	input := "7f1bd4a00000-7f1bd4a21000 r--p 00000000 08:01 393237 /usr/lib/libc.so.6\n" +
		"this line is garbage\n"

	table, err := parseMappings(strings.NewReader(input))
	assert.NoError(err)
	assert.Len(table, 2)

	assert.False(table[0].Invalid)
	assert.Equal("/usr/lib/libc.so.6", table[0].Path)

	assert.True(table[1].Invalid)
	assert.Equal(0, table[1].Protect)
}

func TestFind(t *testing.T) {
	assert := assert.New(t)

	table := Mappings{
		{Start: 0x1000, End: 0x2000, Protect: unix.PROT_READ | unix.PROT_WRITE, Path: "libfoo.so"},
		{Start: 0x2000, End: 0x3000, Protect: unix.PROT_READ},
		{Start: 0x3000, End: 0x4000, Invalid: true},
	}

	assert.Nil(table.Find(0xfff))
	assert.Equal("libfoo.so", table.Find(0x1000).Path)
	assert.Equal("libfoo.so", table.Find(0x1fff).Path)

	// Bounds are half-open, so 0x2000 belongs to the second region.
	r := table.Find(0x2000)
	if assert.NotNil(r) {
		assert.Equal(uintptr(0x2000), r.Start)
	}

	// Invalid entries are never returned, even when they cover the address.
	assert.Nil(table.Find(0x3500))
	assert.Nil(table.Find(0x4000))

	assert.Nil(Mappings(nil).Find(0x1000))
}

func TestLoadMappings(t *testing.T) {
	require := require.New(t)

	// Allocate before the snapshot so the backing arena is mapped by the
	// time maps is read.
	x := new(int)

	table, err := LoadMappings()
	require.NoError(err)
	require.NotEmpty(table)

	for _, r := range table {
		if !r.Invalid {
			require.LessOrEqual(r.Start, r.End)
		}
	}

	// A heap allocation must land in a writable region.
	r := table.Find(uintptr(unsafe.Pointer(x)))
	require.NotNil(r)
	require.NotZero(r.Protect & unix.PROT_WRITE)
}
