package pefile

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"pemap/memmap"
)

// Hard caps on attacker-controlled counts. Real import tables are far below
// these; hitting one means the table loops or lies, and the walk stops with a
// diagnostic instead of spinning.
const (
	maxImportDescriptors = 4096
	maxImportThunks      = 0x10000
	maxImportNameLen     = 256
)

const importDescriptorSize = 20

// ImportedSymbol is one imported function, by name or by ordinal.
type ImportedSymbol struct {
	Name    string
	Hint    uint16
	Ordinal uint16
	ByOrd   bool
}

// ImportedLibrary is one DLL referenced by the import table.
type ImportedLibrary struct {
	Name    string
	Symbols []ImportedSymbol
}

// Imports walks the import table entirely through the mapped view, the same
// bytes the loader would resolve against. Bogus RVAs land in unmapped space,
// read as zero there, and terminate the walk cleanly.
func (f *File) Imports(mm *memmap.MemMap) ([]ImportedLibrary, error) {
	if f.Optional == nil {
		return nil, nil
	}
	dir := f.Optional.DataDir(DirImport)
	if dir.VirtualAddress == 0 {
		return nil, nil
	}

	var libs []ImportedLibrary
	base := uint64(dir.VirtualAddress)
	for i := 0; ; i++ {
		if i >= maxImportDescriptors {
			f.diag.Warnf("import descriptor walk stopped after %d entries", maxImportDescriptors)
			break
		}
		desc, err := mm.Slice(base+uint64(i*importDescriptorSize), base+uint64((i+1)*importDescriptorSize))
		if err != nil {
			return libs, errors.Wrap(err, "read import descriptor")
		}
		origThunk := binary.LittleEndian.Uint32(desc[0:4])
		nameRVA := binary.LittleEndian.Uint32(desc[12:16])
		firstThunk := binary.LittleEndian.Uint32(desc[16:20])
		if origThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			break
		}

		lib := ImportedLibrary{Name: f.readImportString(mm, uint64(nameRVA))}
		thunks := origThunk
		if thunks == 0 {
			thunks = firstThunk
		}
		syms, err := f.readThunks(mm, uint64(thunks))
		if err != nil {
			return libs, err
		}
		lib.Symbols = syms
		libs = append(libs, lib)
	}
	return libs, nil
}

func (f *File) readThunks(mm *memmap.MemMap, rva uint64) ([]ImportedSymbol, error) {
	if rva == 0 {
		return nil, nil
	}
	width := 4
	ordFlag := uint64(1) << 31
	if f.Is64Bit() {
		width = 8
		ordFlag = uint64(1) << 63
	}
	var syms []ImportedSymbol
	for i := 0; ; i++ {
		if i >= maxImportThunks {
			f.diag.Warnf("import thunk walk stopped after %d entries", maxImportThunks)
			break
		}
		entry, err := mm.ReadUintLE(rva+uint64(i*width), width)
		if err != nil {
			return syms, errors.Wrap(err, "read import thunk")
		}
		if entry == 0 {
			break
		}
		if entry&ordFlag != 0 {
			syms = append(syms, ImportedSymbol{Ordinal: uint16(entry), ByOrd: true})
			continue
		}
		hintRVA := entry &^ ordFlag
		hint, err := mm.ReadUintLE(hintRVA, 2)
		if err != nil {
			return syms, err
		}
		syms = append(syms, ImportedSymbol{
			Name: f.readImportString(mm, hintRVA+2),
			Hint: uint16(hint),
		})
	}
	return syms, nil
}

// readImportString reads a NUL-terminated ASCII string from the mapped view.
// Unmapped addresses read as zero, so a bogus RVA yields an empty string.
func (f *File) readImportString(mm *memmap.MemMap, va uint64) string {
	buf, err := mm.Slice(va, va+maxImportNameLen)
	if err != nil {
		return ""
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
