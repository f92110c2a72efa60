// Package pefile parses the structure of Portable Executable files without
// trusting any of it: headers decode with graceful degradation so that
// malformed and hand-crafted samples can still be analyzed.
package pefile

import (
	"github.com/pkg/errors"

	"pemap/memmap"
	"pemap/models"
)

// File is the parsed structure of one PE file. The optional header and
// section table may be nil/empty on badly damaged inputs; whatever parsed
// stays usable.
type File struct {
	Src models.ByteSource

	MSDOS    *MSDOSHeader
	COFF     *COFFHeader
	Optional *OptionalHeader
	Sections *SectionTable

	diag models.Diag
}

// New parses the PE structure from the source. It fails only when not even
// the MSDOS/COFF skeleton can be located; damage further in degrades to
// diagnostics and nil fields.
func New(src models.ByteSource, diag models.Diag) (*File, error) {
	if diag == nil {
		diag = models.NopDiag
	}
	f := &File{Src: src, diag: diag}

	msdos, err := readMSDOSHeader(src)
	if err != nil {
		return nil, errors.Wrap(err, "MSDOS header")
	}
	f.MSDOS = msdos

	peOff := int64(msdos.PEHeaderOffset)
	coff, err := readCOFFHeader(src, peOff)
	if err != nil {
		return nil, errors.Wrap(err, "COFF header")
	}
	f.COFF = coff

	optOff := peOff + int64(len(peMagic)) + coffHeaderSize
	if coff.SizeOfOptionalHeader > 0 {
		opt, err := readOptionalHeader(src, optOff, coff.SizeOfOptionalHeader, diag)
		if err != nil {
			diag.Warnf("optional header unusable: %v", err)
		} else {
			f.Optional = opt
		}
	} else {
		diag.Warnf("no optional header declared")
	}

	secOff := optOff + int64(coff.SizeOfOptionalHeader)
	secs, err := readSectionTable(src, secOff, int(coff.NumberOfSections), f.Optional, diag)
	if err != nil {
		diag.Warnf("section table unusable: %v", err)
		secs = &SectionTable{fileLen: uint64(src.Size()), diag: diag}
	}
	f.Sections = secs

	return f, nil
}

// Open parses the PE file at path using a scoped-read file source.
func Open(path string, diag models.Diag) (*File, error) {
	src, err := NewFileSource(path)
	if err != nil {
		return nil, err
	}
	return New(src, diag)
}

// Map builds the simulated virtual address space for the file. Every
// downstream parser reads through this view rather than the raw file, so all
// of them see the same as-if-loaded bytes, including zero-filled holes and
// overlapping sections.
func (f *File) Map() *memmap.MemMap {
	return memmap.New(f.Sections, f.Src, f.diag)
}

// Is64Bit reports PE32+ when the optional header parsed, falling back to the
// machine type otherwise.
func (f *File) Is64Bit() bool {
	if f.Optional != nil {
		return f.Optional.Is64Bit
	}
	return f.COFF != nil && f.COFF.Machine == 0x8664
}
