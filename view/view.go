// Package view models the address space of a loaded binary as an ordered set
// of read-only segments. The scan engine consumes the View interface; callers
// with their own binary model (a debugger, an emulator, a live process)
// implement it, while FileView provides the file-backed implementation for
// ELF, PE, Mach-O and raw files.
package view

import (
	"errors"
	"fmt"
)

// ErrUnmapped is returned by ReadBytes for an address outside every segment.
var ErrUnmapped = errors.New("address not mapped")

// Segment is a contiguous mapped region of the target address space.
type Segment struct {
	Name   string
	Base   uint64
	Length uint64
}

func (s Segment) String() string {
	return fmt.Sprintf("%s [0x%X..0x%X)", s.Name, s.Base, s.Base+s.Length)
}

// View exposes a segmented, read-only address space.
//
// Segments returns the mapped regions in a fixed order that must be stable
// for the duration of one scan. ReadBytes reads up to maxLen bytes starting
// at addr; it may return fewer bytes than requested when the tail of a
// segment is not backed by data. Implementations must be safe to call
// repeatedly from a single goroutine; the scan engine never calls them
// concurrently.
type View interface {
	Segments() []Segment
	ReadBytes(addr uint64, maxLen int) ([]byte, error)
}

// StaticSegment is one in-memory region of a Static view.
type StaticSegment struct {
	Name string
	Base uint64
	Data []byte
}

// Static is a View over in-memory segments, for embedders and tests.
type Static struct {
	segs []StaticSegment
}

// NewStatic builds a Static view. Segment order is preserved as given.
func NewStatic(segs ...StaticSegment) *Static {
	return &Static{segs: segs}
}

// Segments implements View.
func (s *Static) Segments() []Segment {
	out := make([]Segment, len(s.segs))
	for i, seg := range s.segs {
		out[i] = Segment{Name: seg.Name, Base: seg.Base, Length: uint64(len(seg.Data))}
	}
	return out
}

// ReadBytes implements View. The returned slice aliases the segment data and
// must be treated as read-only.
func (s *Static) ReadBytes(addr uint64, maxLen int) ([]byte, error) {
	for _, seg := range s.segs {
		if addr < seg.Base || addr >= seg.Base+uint64(len(seg.Data)) {
			continue
		}
		off := int(addr - seg.Base)
		n := len(seg.Data) - off
		if n > maxLen {
			n = maxLen
		}
		return seg.Data[off : off+n], nil
	}
	return nil, fmt.Errorf("%w: 0x%X", ErrUnmapped, addr)
}
