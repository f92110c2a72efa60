package pefile

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"pemap/models"
)

const (
	magicPE32     = 0x10b
	magicPE32Plus = 0x20b

	opt32FixedSize = 96
	opt64FixedSize = 112

	maxDataDirs = 16
)

// Data directory indices.
const (
	DirExport = iota
	DirImport
	DirResource
	DirException
	DirSecurity
	DirBaseReloc
	DirDebug
	DirArchitecture
	DirGlobalPtr
	DirTLS
	DirLoadConfig
	DirBoundImport
	DirIAT
	DirDelayImport
	DirCOMDescriptor
)

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type opt32 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

type opt64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

// OptionalHeader is the decoded optional header, unified across PE32 and
// PE32+. Field values are untrusted; alignment fields in particular drive the
// mapping mode and are used as-is so malformed inputs map the way the loader
// would treat them.
type OptionalHeader struct {
	Is64Bit             bool
	AddressOfEntryPoint uint32
	ImageBase           uint64
	SectionAlignment    uint32
	FileAlignment       uint32
	SizeOfImage         uint32
	SizeOfHeaders       uint32
	CheckSum            uint32
	Subsystem           uint16
	DllCharacteristics  uint16
	DataDirs            []DataDirectory
}

// LowAlignment reports the degenerate alignment mode where virtual addresses
// equal file offsets and the loader maps the file one-to-one.
func (h *OptionalHeader) LowAlignment() bool {
	return h.SectionAlignment == h.FileAlignment
}

func readOptionalHeader(src models.ByteSource, off int64, size uint16, diag models.Diag) (*OptionalHeader, error) {
	if size < 2 {
		return nil, errors.Errorf("optional header size %d too small", size)
	}
	p, err := src.ReadRange(off, int(size))
	if err != nil {
		return nil, err
	}
	if len(p) < 2 {
		return nil, errors.New("optional header truncated")
	}
	magic := binary.LittleEndian.Uint16(p[:2])

	hdr := &OptionalHeader{}
	var fixed int
	switch magic {
	case magicPE32:
		fixed = opt32FixedSize
		if len(p) < fixed {
			return nil, errors.Errorf("PE32 optional header truncated: %d bytes", len(p))
		}
		var o opt32
		if err := struc.UnpackWithOrder(bytes.NewReader(p[:fixed]), &o, binary.LittleEndian); err != nil {
			return nil, errors.Wrap(err, "unpack optional header")
		}
		hdr.AddressOfEntryPoint = o.AddressOfEntryPoint
		hdr.ImageBase = uint64(o.ImageBase)
		hdr.SectionAlignment = o.SectionAlignment
		hdr.FileAlignment = o.FileAlignment
		hdr.SizeOfImage = o.SizeOfImage
		hdr.SizeOfHeaders = o.SizeOfHeaders
		hdr.CheckSum = o.CheckSum
		hdr.Subsystem = o.Subsystem
		hdr.DllCharacteristics = o.DllCharacteristics
		hdr.DataDirs = readDataDirs(p[fixed:], o.NumberOfRvaAndSizes, diag)
	case magicPE32Plus:
		fixed = opt64FixedSize
		if len(p) < fixed {
			return nil, errors.Errorf("PE32+ optional header truncated: %d bytes", len(p))
		}
		var o opt64
		if err := struc.UnpackWithOrder(bytes.NewReader(p[:fixed]), &o, binary.LittleEndian); err != nil {
			return nil, errors.Wrap(err, "unpack optional header")
		}
		hdr.Is64Bit = true
		hdr.AddressOfEntryPoint = o.AddressOfEntryPoint
		hdr.ImageBase = o.ImageBase
		hdr.SectionAlignment = o.SectionAlignment
		hdr.FileAlignment = o.FileAlignment
		hdr.SizeOfImage = o.SizeOfImage
		hdr.SizeOfHeaders = o.SizeOfHeaders
		hdr.CheckSum = o.CheckSum
		hdr.Subsystem = o.Subsystem
		hdr.DllCharacteristics = o.DllCharacteristics
		hdr.DataDirs = readDataDirs(p[fixed:], o.NumberOfRvaAndSizes, diag)
	default:
		return nil, errors.Errorf("unknown optional header magic 0x%x", magic)
	}
	return hdr, nil
}

func readDataDirs(p []byte, declared uint32, diag models.Diag) []DataDirectory {
	n := declared
	if n > maxDataDirs {
		diag.Warnf("NumberOfRvaAndSizes %d clamped to %d", declared, maxDataDirs)
		n = maxDataDirs
	}
	var dirs []DataDirectory
	for i := uint32(0); i < n; i++ {
		off := int(i) * 8
		if off+8 > len(p) {
			diag.Warnf("data directory table truncated after %d of %d entries", i, n)
			break
		}
		dirs = append(dirs, DataDirectory{
			VirtualAddress: binary.LittleEndian.Uint32(p[off : off+4]),
			Size:           binary.LittleEndian.Uint32(p[off+4 : off+8]),
		})
	}
	return dirs
}

// DataDir returns the directory entry at the index, or a zero entry when the
// table is shorter than that.
func (h *OptionalHeader) DataDir(index int) DataDirectory {
	if index < 0 || index >= len(h.DataDirs) {
		return DataDirectory{}
	}
	return h.DataDirs[index]
}
