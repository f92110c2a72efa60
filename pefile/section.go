package pefile

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"pemap/memmap"
	"pemap/models"
)

const (
	sectionHeaderSize = 40

	defaultFileAlign = 0x200
)

type rawSectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// SectionHeader is one entry of the section table, values as declared in the
// file. Nothing here is trusted; the loader-adjusted placement lives on
// SectionTable.
type SectionHeader struct {
	Index           int
	Name            string
	VirtualSize     uint32
	VirtualAddress  uint32
	SizeOfRawData   uint32
	PointerToRaw    uint32
	Characteristics uint32
}

// SectionTable holds the parsed section headers together with the alignment
// rules needed to place them, and acts as the section source for the memory
// map: it decides which headers are mappable and at what adjusted addresses
// and sizes.
type SectionTable struct {
	Headers []*SectionHeader

	fileLen   uint64
	lowAlign  bool
	fileAlign uint32
	sectAlign uint32
	diag      models.Diag
}

func readSectionTable(src models.ByteSource, off int64, count int, opt *OptionalHeader, diag models.Diag) (*SectionTable, error) {
	t := &SectionTable{
		fileLen: uint64(src.Size()),
		diag:    diag,
	}
	if opt != nil {
		t.lowAlign = opt.LowAlignment()
		t.fileAlign = opt.FileAlignment
		t.sectAlign = opt.SectionAlignment
	}
	if t.fileAlign == 0 || t.fileAlign&(t.fileAlign-1) != 0 {
		if !t.lowAlign {
			diag.Warnf("file alignment 0x%x is not a power of two, assuming 0x%x", t.fileAlign, defaultFileAlign)
			t.fileAlign = defaultFileAlign
		}
	}

	p, err := src.ReadRange(off, count*sectionHeaderSize)
	if err != nil {
		return nil, err
	}
	avail := len(p) / sectionHeaderSize
	if avail < count {
		diag.Warnf("section table truncated: %d of %d headers present", avail, count)
	}
	for i := 0; i < avail; i++ {
		var raw rawSectionHeader
		entry := p[i*sectionHeaderSize : (i+1)*sectionHeaderSize]
		if err := struc.UnpackWithOrder(bytes.NewReader(entry), &raw, binary.LittleEndian); err != nil {
			return nil, errors.Wrapf(err, "unpack section header %d", i)
		}
		t.Headers = append(t.Headers, &SectionHeader{
			Index:           i,
			Name:            sectionName(raw.Name[:]),
			VirtualSize:     raw.VirtualSize,
			VirtualAddress:  raw.VirtualAddress,
			SizeOfRawData:   raw.SizeOfRawData,
			PointerToRaw:    raw.PointerToRawData,
			Characteristics: raw.Characteristics,
		})
	}
	return t, nil
}

func sectionName(raw []byte) string {
	name := strings.TrimRight(string(raw), "\x00")
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return ""
		}
	}
	return name
}

// LowAlignment implements memmap.SectionSource.
func (t *SectionTable) LowAlignment() bool {
	return t.lowAlign
}

// AlignedPointerToRaw is the raw data pointer the loader actually uses:
// rounded down to the file alignment unless the file is in low-alignment
// mode, mirroring how Windows reads whole sectors.
func (t *SectionTable) AlignedPointerToRaw(h *SectionHeader) uint64 {
	if t.lowAlign {
		return uint64(h.PointerToRaw)
	}
	return uint64(h.PointerToRaw) &^ uint64(t.fileAlign-1)
}

// AlignedVirtualAddress is where the loader actually places the section:
// rounded down to the section alignment unless the file is in low-alignment
// mode, regardless of what the header declares.
func (t *SectionTable) AlignedVirtualAddress(h *SectionHeader) uint64 {
	if t.lowAlign || t.sectAlign == 0 || t.sectAlign&(t.sectAlign-1) != 0 {
		return uint64(h.VirtualAddress)
	}
	return uint64(h.VirtualAddress) &^ uint64(t.sectAlign-1)
}

// ReadSize is how many raw bytes the loader commits for the section: the
// file-aligned span from the adjusted pointer, clipped to end-of-file, and
// capped by the section-aligned virtual size when one is declared.
func (t *SectionTable) ReadSize(h *SectionHeader) uint64 {
	start := t.AlignedPointerToRaw(h)
	if start >= t.fileLen {
		return 0
	}
	end := alignUp(uint64(h.PointerToRaw)+uint64(h.SizeOfRawData), uint64(t.fileAlign))
	if end <= start {
		return 0
	}
	size := end - start
	if h.VirtualSize > 0 && t.sectAlign != 0 && t.sectAlign&(t.sectAlign-1) == 0 {
		if limit := alignUp(uint64(h.VirtualSize), uint64(t.sectAlign)); limit < size {
			size = limit
		}
	}
	if start+size > t.fileLen {
		size = t.fileLen - start
	}
	return size
}

// Valid reports whether the loader would map the section at all. Invalid
// sections are not errors; their addresses simply stay unmapped.
func (t *SectionTable) Valid(h *SectionHeader) bool {
	if h.VirtualAddress == 0 && h.VirtualSize == 0 && h.PointerToRaw == 0 && h.SizeOfRawData == 0 {
		return false
	}
	if h.PointerToRaw == 0 && h.SizeOfRawData != 0 && !t.lowAlign {
		t.diag.Warnf("section %d (%q) declares 0x%x raw bytes with no raw pointer, treating as uninitialized", h.Index, h.Name, h.SizeOfRawData)
		return false
	}
	return t.ReadSize(h) > 0
}

// Extents implements memmap.SectionSource.
func (t *SectionTable) Extents() []memmap.SectionExtent {
	exts := make([]memmap.SectionExtent, len(t.Headers))
	for i, h := range t.Headers {
		valid := t.Valid(h)
		if !valid {
			t.diag.Infof("section %d (%q) not mappable, leaving unmapped", h.Index, h.Name)
		}
		exts[i] = memmap.SectionExtent{
			Valid:     valid,
			VirtStart: t.AlignedVirtualAddress(h),
			PhysStart: t.AlignedPointerToRaw(h),
			ReadSize:  t.ReadSize(h),
		}
	}
	return exts
}

func alignUp(v, align uint64) uint64 {
	if align == 0 || align&(align-1) != 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
