package relocate

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AddProtection grants extra unix.PROT_* bits on the whole region, on top of
// the protection captured at snapshot time. Region boundaries reported by
// the kernel are always page-aligned, so the mprotect window is simply the
// region itself.
func (r *MappedRegion) AddProtection(extra int) error {
	return r.mprotect(r.Protect | extra)
}

// ResetProtection reapplies the snapshot-time protection, undoing any
// AddProtection. Every AddProtection must be paired with a ResetProtection
// before moving on: a skipped reset leaves memory permanently writable,
// which is a security regression, not just a leak.
func (r *MappedRegion) ResetProtection() error {
	return r.mprotect(r.Protect)
}

func (r *MappedRegion) mprotect(prot int) error {
	region := unsafe.Slice((*byte)(unsafe.Pointer(r.Start)), r.End-r.Start)
	return unix.Mprotect(region, prot)
}

// withWritable runs write with the region writable. When restore is set the
// snapshot protection is reapplied on every exit path, including a failed
// write.
func withWritable(r *MappedRegion, restore bool, write func() error) (err error) {
	if err := r.AddProtection(unix.PROT_WRITE); err != nil {
		return err
	}
	if restore {
		defer func() {
			err = errors.Join(err, r.ResetProtection())
		}()
	}
	return write()
}
