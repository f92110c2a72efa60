package memmap

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"pemap/models"
)

// scan granularity for IndexWhere; bounds peak memory regardless of the
// declared virtual size
const scanChunk = 1024

// Preconditions are reported distinctly from I/O failures. Slice sizes are
// attacker-controlled (they come from header fields), so oversized requests
// fail fast instead of allocating.
var (
	ErrSliceTooLarge = errors.New("slice size exceeds limit")
	ErrBadRange      = errors.New("range end precedes start")
)

// SectionExtent is the loader-adjusted placement of one section: the
// alignment-adjusted virtual address, the alignment-adjusted raw pointer, and
// the raw read size already clipped to end-of-file. Invalid sections are
// carried with Valid=false and simply never mapped.
type SectionExtent struct {
	Valid     bool
	VirtStart uint64
	PhysStart uint64
	ReadSize  uint64
}

// SectionSource supplies validated, alignment-adjusted section placements.
type SectionSource interface {
	// LowAlignment reports whether section and file alignment coincide, in
	// which case the whole file is identity-mapped.
	LowAlignment() bool
	Extents() []SectionExtent
}

// MemMap simulates how the OS loader lays a PE file out in virtual memory,
// without loading it: an ordered set of virtual-to-physical mappings over the
// backing file. Mappings may overlap; hand-crafted files declare overlapping
// sections on purpose and that is surfaced as a diagnostic, never an error.
// Virtual addresses outside every mapping read as zero, like uncommitted
// memory. Immutable once built; nothing is cached between queries.
type MemMap struct {
	maps []Mapping
	diag models.Diag
}

// New builds the simulated address space from the section placements.
// In low-alignment mode virtual and physical addresses coincide and the
// entire file becomes a single identity mapping.
func New(secs SectionSource, src models.ByteSource, diag models.Diag) *MemMap {
	if diag == nil {
		diag = models.NopDiag
	}
	if secs.LowAlignment() {
		n := uint64(src.Size())
		return FromMappings([]Mapping{
			NewMapping(VirtRange{0, n}, PhysRange{0, n}, src),
		}, diag)
	}
	var maps []Mapping
	for _, ext := range secs.Extents() {
		if !ext.Valid {
			continue
		}
		maps = append(maps, NewMapping(
			VirtRange{ext.VirtStart, ext.VirtStart + ext.ReadSize},
			PhysRange{ext.PhysStart, ext.PhysStart + ext.ReadSize},
			src,
		))
	}
	return FromMappings(maps, diag)
}

// FromMappings sorts the mappings ascending by virtual start (stable, so
// construction order breaks ties) and wraps them. Section tables are expected
// to arrive in ascending virtual order already; when they don't, that is a
// data-quality signal worth surfacing, not something to fix up silently.
func FromMappings(maps []Mapping, diag models.Diag) *MemMap {
	if diag == nil {
		diag = models.NopDiag
	}
	inOrder := sort.SliceIsSorted(maps, func(i, j int) bool {
		return maps[i].Virt.Start < maps[j].Virt.Start
	})
	if !inOrder {
		diag.Warnf("section mappings not in ascending virtual order; sorting")
		sort.SliceStable(maps, func(i, j int) bool {
			return maps[i].Virt.Start < maps[j].Virt.Start
		})
	}
	return &MemMap{maps: maps, diag: diag}
}

// Mappings returns the sorted mappings for display.
func (m *MemMap) Mappings() []Mapping {
	out := make([]Mapping, len(m.maps))
	copy(out, m.maps)
	return out
}

// Len is the virtual extent of the mapped space: the end of the last mapping
// in sorted order, or 0 with no mappings.
func (m *MemMap) Len() uint64 {
	if len(m.maps) == 0 {
		return 0
	}
	return m.maps[len(m.maps)-1].Virt.End
}

// Translate converts va to a physical file offset using the last mapping in
// sequence order that contains it. ok is false for unmapped addresses.
// Multiple containing mappings mean the address was overwritten by a later
// section; that overlap is reported to the diagnostic sink.
func (m *MemMap) Translate(va uint64) (off uint64, ok bool) {
	n := 0
	for _, mp := range m.maps {
		if mp.Virt.Contains(va) {
			off = mp.Translate(va)
			ok = true
			n++
		}
	}
	if n > 1 {
		m.diag.Warnf("virtual address 0x%x is overwritten by %d overlapping mappings", va, n)
	}
	return off, ok
}

// TranslateAll returns the physical offset of va under every mapping that
// contains it, in sequence order, for forensic inspection of overlaps.
func (m *MemMap) TranslateAll(va uint64) []uint64 {
	var offs []uint64
	for _, mp := range m.maps {
		if mp.Virt.Contains(va) {
			offs = append(offs, mp.Translate(va))
		}
	}
	return offs
}

// ByteAt returns the byte at va from the first containing mapping, or 0 when
// va is unmapped.
func (m *MemMap) ByteAt(va uint64) (byte, error) {
	for _, mp := range m.maps {
		if mp.Virt.Contains(va) {
			return mp.ByteAt(va)
		}
	}
	return 0, nil
}

// Slice reads the virtual range [from, until) as the loader would see it:
// a zero-filled buffer with every overlapping mapping's bytes copied in, in
// sequence order. Holes stay zero. The size must fit a 32-bit signed int.
func (m *MemMap) Slice(from, until uint64) ([]byte, error) {
	if until < from {
		return nil, errors.Wrapf(ErrBadRange, "slice 0x%x:0x%x", from, until)
	}
	if until-from > math.MaxInt32 {
		return nil, errors.Wrapf(ErrSliceTooLarge, "slice 0x%x:0x%x (%d bytes)", from, until, until-from)
	}
	buf := make([]byte, until-from)
	for _, mp := range m.maps {
		start, end := mp.Virt.Start, mp.Virt.End
		if start < from {
			start = from
		}
		if end > until {
			end = until
		}
		if end <= start {
			continue
		}
		p, err := mp.BytesAt(start, int(end-start))
		if err != nil {
			return nil, err
		}
		copy(buf[start-from:], p)
	}
	return buf, nil
}

// IndexWhere scans forward from the given virtual index and returns the
// smallest index whose byte satisfies pred. The scan walks fixed-size chunks
// so memory stays bounded on sparse, attacker-sized address spaces; it stops
// once the position passes Len().
func (m *MemMap) IndexWhere(pred func(byte) bool, from uint64) (uint64, bool, error) {
	total := m.Len()
	for from <= total {
		buf, err := m.Slice(from, from+scanChunk)
		if err != nil {
			return 0, false, err
		}
		for i, b := range buf {
			if pred(b) {
				idx := from + uint64(i)
				if idx >= total {
					// everything past the end is zero forever
					return 0, false, nil
				}
				return idx, true, nil
			}
		}
		from += scanChunk
	}
	return 0, false, nil
}

// IndexOf returns the smallest virtual index at or after from holding value.
func (m *MemMap) IndexOf(value byte, from uint64) (uint64, bool, error) {
	return m.IndexWhere(func(b byte) bool { return b == value }, from)
}

// ReadUintLE decodes n little-endian bytes at the virtual offset as an
// unsigned integer. PE numeric fields are little-endian. n must be 1..8.
func (m *MemMap) ReadUintLE(off uint64, n int) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, errors.Errorf("integer width %d out of range", n)
	}
	buf, err := m.Slice(off, off+uint64(n))
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// ReadIntLE is ReadUintLE with sign extension.
func (m *MemMap) ReadIntLE(off uint64, n int) (int64, error) {
	v, err := m.ReadUintLE(off, n)
	if err != nil {
		return 0, err
	}
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift, nil
}
