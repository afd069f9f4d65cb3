package view

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

// Format represents the container format of an opened file.
type Format int

const (
	// FormatUnknown indicates an unrecognized container format.
	FormatUnknown Format = iota
	// FormatELF indicates an ELF (Executable and Linkable Format) binary.
	FormatELF
	// FormatPE indicates a PE (Portable Executable) binary.
	FormatPE
	// FormatMachO indicates a Mach-O binary, thin or universal.
	FormatMachO
	// FormatRaw indicates a raw file mapped as a single segment at 0.
	FormatRaw
)

// String returns the string representation of the Format.
func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	case FormatMachO:
		return "Mach-O"
	case FormatRaw:
		return "Raw"
	default:
		return "Unknown"
	}
}

// span maps a segment back to the region of the file that backs it. fileLen
// may be shorter than the segment length (zero-filled tails such as .bss);
// reads past fileLen return fewer bytes than requested.
type span struct {
	fileOff int64
	fileLen int64
}

// FileView is a View over a binary file on disk. Loadable segments are
// exposed at their virtual addresses; files with no recognized container
// format become a single segment based at 0. The file is memory-mapped when
// possible, falling back to regular file I/O.
type FileView struct {
	r      io.ReaderAt
	closer io.Closer
	format Format
	size   int64
	segs   []Segment
	spans  []span
}

// OpenFile opens path and maps its contents as an address space.
func OpenFile(path string) (*FileView, error) {
	r, closer, size, err := openReader(path)
	if err != nil {
		return nil, err
	}

	v := &FileView{r: r, closer: closer, size: size}
	v.format = DetectFormat(r)

	switch v.format {
	case FormatELF:
		err = v.loadELF()
	case FormatPE:
		err = v.loadPE()
	case FormatMachO:
		err = v.loadMachO()
	default:
		v.format = FormatRaw
		v.segs = []Segment{{Name: "raw", Base: 0, Length: uint64(size)}}
		v.spans = []span{{fileOff: 0, fileLen: size}}
	}
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// openReader memory-maps the file, falling back to plain file I/O when the
// mapping fails (permissions, OS limits, special files).
func openReader(path string) (io.ReaderAt, io.Closer, int64, error) {
	if m, err := mmap.Open(path); err == nil {
		return m, m, int64(m.Len()), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, 0, err
	}
	return f, f, info.Size(), nil
}

// DetectFormat identifies the container format of the data behind r.
func DetectFormat(r io.ReaderAt) Format {
	if _, err := elf.NewFile(r); err == nil {
		return FormatELF
	}
	if _, err := pe.NewFile(r); err == nil {
		return FormatPE
	}

	// Universal Mach-O binaries: 0xcafebabe (BE) or 0xbebafeca (LE).
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 0); err == nil {
		m := binary.BigEndian.Uint32(magic[:])
		if m == 0xcafebabe || m == 0xbebafeca {
			return FormatMachO
		}
	}
	if _, err := macho.NewFile(r); err == nil {
		return FormatMachO
	}
	return FormatRaw
}

// Format reports the detected container format.
func (v *FileView) Format() Format {
	return v.format
}

// Segments implements View. Segment order follows the order the container
// format declares its loadable regions in.
func (v *FileView) Segments() []Segment {
	out := make([]Segment, len(v.segs))
	copy(out, v.segs)
	return out
}

// ReadBytes implements View.
func (v *FileView) ReadBytes(addr uint64, maxLen int) ([]byte, error) {
	if maxLen <= 0 {
		return nil, nil
	}
	for i, seg := range v.segs {
		if addr < seg.Base || addr >= seg.Base+seg.Length {
			continue
		}

		off := int64(addr - seg.Base)
		avail := v.spans[i].fileLen - off
		if avail <= 0 {
			// Mapped but not file-backed (a bss tail): no bytes to
			// return, callers treat it as a short read.
			return nil, nil
		}
		n := int64(maxLen)
		if n > avail {
			n = avail
		}

		buf := make([]byte, n)
		read, err := v.r.ReadAt(buf, v.spans[i].fileOff+off)
		if err != nil && err != io.EOF {
			return nil, err
		}
		return buf[:read], nil
	}
	return nil, fmt.Errorf("%w: 0x%X", ErrUnmapped, addr)
}

// Close releases the underlying mapping or file handle.
func (v *FileView) Close() error {
	return v.closer.Close()
}

func (v *FileView) loadELF() error {
	f, err := elf.NewFile(v.r)
	if err != nil {
		return fmt.Errorf("not a valid ELF file: %w", err)
	}

	for i, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		v.segs = append(v.segs, Segment{
			Name:   fmt.Sprintf("load%d:%s", i, progPerms(prog.Flags)),
			Base:   prog.Vaddr,
			Length: prog.Memsz,
		})
		v.spans = append(v.spans, span{
			fileOff: int64(prog.Off),
			fileLen: int64(prog.Filesz),
		})
	}
	if len(v.segs) == 0 {
		return fmt.Errorf("ELF file has no loadable segments")
	}
	return nil
}

func progPerms(flags elf.ProgFlag) string {
	perms := []byte("---")
	if flags&elf.PF_R != 0 {
		perms[0] = 'r'
	}
	if flags&elf.PF_W != 0 {
		perms[1] = 'w'
	}
	if flags&elf.PF_X != 0 {
		perms[2] = 'x'
	}
	return string(perms)
}

func (v *FileView) loadPE() error {
	f, err := pe.NewFile(v.r)
	if err != nil {
		return fmt.Errorf("not a valid PE file: %w", err)
	}

	var imageBase uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
	}

	for _, sect := range f.Sections {
		if sect.VirtualAddress == 0 {
			continue
		}
		memsz := uint64(sect.VirtualSize)
		if memsz == 0 {
			memsz = uint64(sect.Size)
		}
		if memsz == 0 {
			continue
		}
		fileLen := int64(sect.Size)
		if fileLen > int64(memsz) {
			fileLen = int64(memsz)
		}
		v.segs = append(v.segs, Segment{
			Name:   sect.Name,
			Base:   imageBase + uint64(sect.VirtualAddress),
			Length: memsz,
		})
		v.spans = append(v.spans, span{
			fileOff: int64(sect.Offset),
			fileLen: fileLen,
		})
	}
	if len(v.segs) == 0 {
		return fmt.Errorf("PE file has no mapped sections")
	}
	return nil
}

func (v *FileView) loadMachO() error {
	// Universal binaries: use the first architecture, offsetting file
	// reads by where its slice starts.
	if fat, err := macho.NewFatFile(v.r); err == nil {
		if len(fat.Arches) == 0 {
			return fmt.Errorf("universal binary has no architectures")
		}
		arch := fat.Arches[0]
		return v.loadMachOSegments(arch.File, int64(arch.Offset))
	}

	f, err := macho.NewFile(v.r)
	if err != nil {
		return fmt.Errorf("not a valid Mach-O file: %w", err)
	}
	return v.loadMachOSegments(f, 0)
}

func (v *FileView) loadMachOSegments(f *macho.File, archOff int64) error {
	for _, load := range f.Loads {
		seg, ok := load.(*macho.Segment)
		if !ok || seg.Memsz == 0 || seg.Name == "__PAGEZERO" {
			continue
		}
		v.segs = append(v.segs, Segment{
			Name:   seg.Name,
			Base:   seg.Addr,
			Length: seg.Memsz,
		})
		v.spans = append(v.spans, span{
			fileOff: archOff + int64(seg.Offset),
			fileLen: int64(seg.Filesz),
		})
	}
	if len(v.segs) == 0 {
		return fmt.Errorf("Mach-O file has no loadable segments")
	}
	return nil
}
