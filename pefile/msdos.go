package pefile

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"pemap/models"
)

const (
	msdosHeaderSize = 64
	msdosPageSize   = 512
	msdosParagraph  = 16
)

var msdosMagic = []byte{'M', 'Z'}

// MSDOSHeader is the real-mode stub header at the start of every PE file.
type MSDOSHeader struct {
	Magic            uint16
	LastPageSize     uint16
	FilePages        uint16
	RelocItems       uint16
	HeaderParagraphs uint16
	MinAlloc         uint16
	MaxAlloc         uint16
	InitialSS        uint16
	InitialSP        uint16
	Checksum         uint16
	InitialIP        uint16
	InitialCS        uint16
	RelocTableOffset uint16
	OverlayNumber    uint16
	Reserved         [8]byte
	OEMID            uint16
	OEMInfo          uint16
	Reserved2        [20]byte
	PEHeaderOffset   uint32
}

// MatchMSDOS checks the MZ magic.
func MatchMSDOS(src models.ByteSource) bool {
	p, err := src.ReadRange(0, 2)
	return err == nil && bytes.Equal(p, msdosMagic)
}

func readMSDOSHeader(src models.ByteSource) (*MSDOSHeader, error) {
	p, err := src.ReadRange(0, msdosHeaderSize)
	if err != nil {
		return nil, err
	}
	if len(p) < msdosHeaderSize {
		return nil, errors.Errorf("file too small for MSDOS header: %d bytes", len(p))
	}
	var hdr MSDOSHeader
	if err := struc.UnpackWithOrder(bytes.NewReader(p), &hdr, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "unpack MSDOS header")
	}
	if hdr.Magic != binary.LittleEndian.Uint16(msdosMagic) {
		return nil, errors.Errorf("bad MSDOS magic 0x%x", hdr.Magic)
	}
	return &hdr, nil
}

// HeaderSize is the load-module start: header paragraphs times 16.
func (h *MSDOSHeader) HeaderSize() int64 {
	return int64(h.HeaderParagraphs) * msdosParagraph
}

// ImageSize derives the MSDOS image extent from the page counts. The last
// page counts in full when its declared size is zero.
func (h *MSDOSHeader) ImageSize() int64 {
	if h.FilePages == 0 {
		return 0
	}
	size := int64(h.FilePages-1)*msdosPageSize + int64(h.LastPageSize)
	if h.LastPageSize == 0 {
		size += msdosPageSize
	}
	return size
}

// LoadModule dumps the MSDOS load module, the real-mode program between the
// header and the end of the MSDOS image. On PE files this is the stub that
// prints "This program cannot be run in DOS mode".
func (h *MSDOSHeader) LoadModule(src models.ByteSource) ([]byte, error) {
	start := h.HeaderSize()
	end := h.ImageSize()
	if end <= start {
		return nil, nil
	}
	return src.ReadRange(start, int(end-start))
}
