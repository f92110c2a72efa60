package main

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"pemap/models"
	"pemap/pefile"
	"pemap/tools"
)

var (
	warnColor = color.New(color.FgYellow)
	infoColor = color.New(color.FgCyan)
	headColor = color.New(color.FgGreen, color.Bold)
)

// colorDiag routes parser and mapper diagnostics to stderr.
type colorDiag struct{}

func (colorDiag) Warnf(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func (colorDiag) Infof(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stderr, "note: "+format+"\n", args...)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if st, ok := err.(stackTracer); ok {
		for _, f := range st.StackTrace() {
			fmt.Fprintf(os.Stderr, "  %+v\n", f)
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [options] <file> [args...]

Commands:
  info       headers, sections and anomalies
  map        print the simulated memory map
  translate  <va>: virtual address to file offset
  read       <va> <len>: hexdump bytes from the mapped view
  find       <hex>: locate a byte pattern in the mapped view
  hash       file and section hashes
  strings    printable strings from the mapped view
  imports    imported libraries and symbols
`, os.Args[0])
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, argv := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	useMmap := fs.Bool("mmap", false, "map the file into memory instead of per-query reads")
	quiet := fs.Bool("q", false, "suppress diagnostics")
	fs.Parse(argv)
	args := fs.Args()
	if len(args) < 1 {
		usage()
	}
	path := args[0]
	rest := args[1:]

	var diag models.Diag = colorDiag{}
	if *quiet {
		diag = models.NopDiag
	}

	var src models.ByteSource
	if *useMmap {
		m, err := pefile.NewMmapSource(path)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		defer m.Close()
		src = m
	} else {
		f, err := pefile.NewFileSource(path)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		src = f
	}

	f, err := pefile.New(src, diag)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	switch cmd {
	case "info":
		err = runInfo(f)
	case "map":
		err = runMap(f)
	case "translate":
		err = runTranslate(f, rest)
	case "read":
		err = runRead(f, rest)
	case "find":
		err = runFind(f, rest)
	case "hash":
		err = runHash(f, diag)
	case "strings":
		err = runStrings(f)
	case "imports":
		err = runImports(f)
	default:
		usage()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func runInfo(f *pefile.File) error {
	headColor.Println("COFF header")
	fmt.Printf("  machine:   %s\n", f.COFF.MachineName())
	fmt.Printf("  sections:  %d\n", f.COFF.NumberOfSections)
	fmt.Printf("  timestamp: 0x%x\n", f.COFF.TimeDateStamp)
	var flags []string
	for _, c := range f.COFF.FileCharacteristics() {
		name := c.Name
		if c.Reserved {
			name += " (reserved)"
		}
		if c.Deprecated {
			name += " (deprecated)"
		}
		flags = append(flags, name)
	}
	fmt.Printf("  flags:     %s\n", strings.Join(flags, ", "))

	if opt := f.Optional; opt != nil {
		headColor.Println("Optional header")
		fmt.Printf("  64-bit:         %v\n", opt.Is64Bit)
		fmt.Printf("  image base:     0x%x\n", opt.ImageBase)
		fmt.Printf("  entry point:    0x%x\n", opt.AddressOfEntryPoint)
		fmt.Printf("  section align:  0x%x\n", opt.SectionAlignment)
		fmt.Printf("  file align:     0x%x\n", opt.FileAlignment)
		fmt.Printf("  size of image:  0x%x\n", opt.SizeOfImage)
		if opt.LowAlignment() {
			fmt.Printf("  low-alignment mode: file is identity-mapped\n")
		}
	}

	headColor.Println("Sections")
	t := f.Sections
	for _, h := range t.Headers {
		status := "mapped"
		if !t.Valid(h) {
			status = "unmapped"
		}
		fmt.Printf("  %2d %-8q va=0x%08x vsize=0x%08x raw=0x%08x rawsize=0x%08x %s\n",
			h.Index, h.Name, h.VirtualAddress, h.VirtualSize, h.PointerToRaw, h.SizeOfRawData, status)
	}

	if f.MSDOS != nil {
		headColor.Println("MSDOS stub")
		fmt.Printf("  header size: 0x%x\n", f.MSDOS.HeaderSize())
		fmt.Printf("  image size:  0x%x\n", f.MSDOS.ImageSize())
	}
	return nil
}

func runMap(f *pefile.File) error {
	mm := f.Map()
	headColor.Println("Simulated memory map")
	for _, m := range mm.Mappings() {
		fmt.Printf("  %s\n", m)
	}
	fmt.Printf("virtual extent: 0x%x\n", mm.Len())
	return nil
}

func runTranslate(f *pefile.File, args []string) error {
	if len(args) < 1 {
		return errors.New("translate needs a virtual address")
	}
	va, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return errors.Wrap(err, "parse virtual address")
	}
	mm := f.Map()
	offs := mm.TranslateAll(va)
	if len(offs) == 0 {
		fmt.Printf("0x%x: unmapped (reads as zero)\n", va)
		return nil
	}
	for _, off := range offs {
		fmt.Printf("0x%x -> file offset 0x%x\n", va, off)
	}
	if off, ok := mm.Translate(va); ok && len(offs) > 1 {
		fmt.Printf("effective (last mapping wins): 0x%x\n", off)
	}
	return nil
}

func runRead(f *pefile.File, args []string) error {
	if len(args) < 2 {
		return errors.New("read needs a virtual address and length")
	}
	va, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return errors.Wrap(err, "parse virtual address")
	}
	n, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return errors.Wrap(err, "parse length")
	}
	mm := f.Map()
	buf, err := mm.Slice(va, va+n)
	if err != nil {
		return err
	}
	hexdump(va, buf)
	return nil
}

func runFind(f *pefile.File, args []string) error {
	if len(args) < 1 {
		return errors.New("find needs a hex pattern")
	}
	pattern, err := parsePattern(args[0])
	if err != nil {
		return err
	}
	mm := f.Map()
	va, ok, err := tools.FindPattern(mm, pattern, 0)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("not found")
		return nil
	}
	fmt.Printf("found at 0x%x\n", va)
	return nil
}

func parsePattern(s string) ([]byte, error) {
	clean := strings.TrimPrefix(s, "0x")
	pattern, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrapf(err, "parse pattern %q", s)
	}
	if len(pattern) == 0 {
		return nil, errors.New("empty pattern")
	}
	return pattern, nil
}

func runHash(f *pefile.File, diag models.Diag) error {
	for _, algo := range []struct {
		name string
		sum  func() ([]byte, error)
	}{
		{"md5", func() ([]byte, error) { return tools.FileHash(f.Src, md5.New()) }},
		{"sha1", func() ([]byte, error) { return tools.FileHash(f.Src, sha1.New()) }},
		{"sha256", func() ([]byte, error) { return tools.FileHash(f.Src, sha256.New()) }},
	} {
		sum, err := algo.sum()
		if err != nil {
			return err
		}
		fmt.Printf("%-7s %x\n", algo.name, sum)
	}
	if ss, err := tools.SpamSum(f.Src); err == nil {
		fmt.Printf("%-7s %s\n", "ssdeep", ss)
	} else {
		diag.Warnf("fuzzy hash failed: %v", err)
	}
	for i, h := range f.Sections.Headers {
		sum, err := tools.SectionHash(f, i, sha256.New(), diag)
		if err != nil {
			return err
		}
		if sum == nil {
			continue
		}
		fmt.Printf("sha256 section %d (%q): %x\n", i, h.Name, sum)
	}
	return nil
}

func runStrings(f *pefile.File) error {
	mm := f.Map()
	found, err := tools.ExtractStrings(mm, 5)
	if err != nil {
		return err
	}
	for _, s := range found {
		fmt.Printf("0x%08x %s\n", s.VA, s.Text)
	}
	return nil
}

func runImports(f *pefile.File) error {
	mm := f.Map()
	libs, err := f.Imports(mm)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		headColor.Println(lib.Name)
		for _, sym := range lib.Symbols {
			if sym.ByOrd {
				fmt.Printf("  ordinal %d\n", sym.Ordinal)
			} else {
				fmt.Printf("  %s (hint %d)\n", sym.Name, sym.Hint)
			}
		}
	}
	return nil
}

func hexdump(base uint64, buf []byte) {
	for off := 0; off < len(buf); off += 16 {
		end := off + 16
		if end > len(buf) {
			end = len(buf)
		}
		line := buf[off:end]
		fmt.Printf("%08x  ", base+uint64(off))
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Printf("%02x ", line[i])
			} else {
				fmt.Printf("   ")
			}
		}
		fmt.Printf(" |")
		for _, b := range line {
			if b >= 0x20 && b <= 0x7e {
				fmt.Printf("%c", b)
			} else {
				fmt.Printf(".")
			}
		}
		fmt.Println("|")
	}
}
