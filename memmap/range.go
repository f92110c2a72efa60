package memmap

import "fmt"

// VirtRange is a half-open [Start, End) interval of virtual addresses.
// PhysRange is the same shape over physical file offsets. They are separate
// types so the two coordinate spaces can't be mixed by accident.
type VirtRange struct {
	Start, End uint64
}

func (r VirtRange) Contains(va uint64) bool {
	return va >= r.Start && va < r.End
}

func (r VirtRange) Overlaps(o VirtRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r VirtRange) Len() uint64 {
	return r.End - r.Start
}

func (r VirtRange) Unpack() (uint64, uint64) {
	return r.Start, r.End
}

func (r VirtRange) String() string {
	return fmt.Sprintf("virt 0x%x-0x%x", r.Start, r.End)
}

type PhysRange struct {
	Start, End uint64
}

func (r PhysRange) Contains(off uint64) bool {
	return off >= r.Start && off < r.End
}

func (r PhysRange) Overlaps(o PhysRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r PhysRange) Len() uint64 {
	return r.End - r.Start
}

func (r PhysRange) Unpack() (uint64, uint64) {
	return r.Start, r.End
}

func (r PhysRange) String() string {
	return fmt.Sprintf("phys 0x%x-0x%x", r.Start, r.End)
}
