package pefile

// Characteristic is one flag bit of a characteristics field, with the
// metadata forensic reports care about: reserved and deprecated bits set by a
// file are themselves an anomaly signal.
type Characteristic struct {
	Mask       uint32
	Name       string
	Reserved   bool
	Deprecated bool
}

var fileCharacteristics = []Characteristic{
	{0x0001, "RELOCS_STRIPPED", false, false},
	{0x0002, "EXECUTABLE_IMAGE", false, false},
	{0x0004, "LINE_NUMS_STRIPPED", false, true},
	{0x0008, "LOCAL_SYMS_STRIPPED", false, true},
	{0x0010, "AGGRESSIVE_WS_TRIM", false, true},
	{0x0020, "LARGE_ADDRESS_AWARE", false, false},
	{0x0040, "RESERVED_40", true, false},
	{0x0080, "BYTES_REVERSED_LO", false, true},
	{0x0100, "32BIT_MACHINE", false, false},
	{0x0200, "DEBUG_STRIPPED", false, false},
	{0x0400, "REMOVABLE_RUN_FROM_SWAP", false, false},
	{0x0800, "NET_RUN_FROM_SWAP", false, false},
	{0x1000, "SYSTEM", false, false},
	{0x2000, "DLL", false, false},
	{0x4000, "UP_SYSTEM_ONLY", false, false},
	{0x8000, "BYTES_REVERSED_HI", false, true},
}

var sectionCharacteristics = []Characteristic{
	{0x00000001, "RESERVED_1", true, false},
	{0x00000002, "RESERVED_2", true, false},
	{0x00000004, "RESERVED_4", true, false},
	{0x00000008, "TYPE_NO_PAD", false, true},
	{0x00000020, "CNT_CODE", false, false},
	{0x00000040, "CNT_INITIALIZED_DATA", false, false},
	{0x00000080, "CNT_UNINITIALIZED_DATA", false, false},
	{0x00000100, "LNK_OTHER", true, false},
	{0x00000200, "LNK_INFO", false, false},
	{0x00000800, "LNK_REMOVE", false, false},
	{0x00001000, "LNK_COMDAT", false, false},
	{0x00008000, "GPREL", false, false},
	{0x00020000, "MEM_PURGEABLE", true, false},
	{0x00040000, "MEM_LOCKED", true, false},
	{0x00080000, "MEM_PRELOAD", true, false},
	{0x01000000, "LNK_NRELOC_OVFL", false, false},
	{0x02000000, "MEM_DISCARDABLE", false, false},
	{0x04000000, "MEM_NOT_CACHED", false, false},
	{0x08000000, "MEM_NOT_PAGED", false, false},
	{0x10000000, "MEM_SHARED", false, false},
	{0x20000000, "MEM_EXECUTE", false, false},
	{0x40000000, "MEM_READ", false, false},
	{0x80000000, "MEM_WRITE", false, false},
}

func setFlags(value uint32, table []Characteristic) []Characteristic {
	var set []Characteristic
	for _, c := range table {
		if value&c.Mask != 0 {
			set = append(set, c)
		}
	}
	return set
}

// FileCharacteristics lists the flags set in the COFF characteristics field.
func (h *COFFHeader) FileCharacteristics() []Characteristic {
	return setFlags(uint32(h.Characteristics), fileCharacteristics)
}

// SectionFlags lists the flags set in the section characteristics field.
func (h *SectionHeader) SectionFlags() []Characteristic {
	return setFlags(h.Characteristics, sectionCharacteristics)
}
