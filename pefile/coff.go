package pefile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"pemap/models"
)

const coffHeaderSize = 20

var peMagic = []byte{'P', 'E', 0, 0}

// COFFHeader is the file header following the PE signature.
type COFFHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

var machineMap = map[uint16]string{
	0x014c: "x86",
	0x8664: "x86_64",
	0x01c0: "arm",
	0x01c4: "armnt",
	0xaa64: "arm64",
	0x0200: "ia64",
	0x5032: "riscv32",
	0x5064: "riscv64",
}

func (h *COFFHeader) MachineName() string {
	if name, ok := machineMap[h.Machine]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%x)", h.Machine)
}

func readCOFFHeader(src models.ByteSource, off int64) (*COFFHeader, error) {
	p, err := src.ReadRange(off, len(peMagic)+coffHeaderSize)
	if err != nil {
		return nil, err
	}
	if len(p) < len(peMagic)+coffHeaderSize {
		return nil, errors.Errorf("COFF header truncated at 0x%x", off)
	}
	if !bytes.Equal(p[:len(peMagic)], peMagic) {
		return nil, errors.Errorf("bad PE signature at 0x%x", off)
	}
	var hdr COFFHeader
	if err := struc.UnpackWithOrder(bytes.NewReader(p[len(peMagic):]), &hdr, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "unpack COFF header")
	}
	return &hdr, nil
}
