package pattern

import "bytes"

// Find reports every offset in data where the pattern matches, in ascending
// order, invoking emit for each. Scanning stops early when emit returns
// false. A pattern longer than data never matches.
func (p *Pattern) Find(data []byte, emit func(offset int) bool) {
	m := len(p.values)
	if m == 0 || m > len(data) {
		return
	}
	last := len(data) - m

	if p.firstFixed < 0 {
		// Every position carries a wildcard nibble; nothing to anchor
		// the search on, so slide one byte at a time.
		for i := 0; i <= last; i++ {
			if p.matchAt(data, i) && !emit(i) {
				return
			}
		}
		return
	}

	// Anchor on the first fully-fixed byte and let bytes.IndexByte skip
	// ahead. Candidates are still visited in ascending order, so the
	// result set and ordering are identical to the naive scan.
	f := p.firstFixed
	anchor := p.values[f]
	for i := 0; i <= last; {
		rel := bytes.IndexByte(data[i+f:last+f+1], anchor)
		if rel < 0 {
			return
		}
		i += rel
		if p.matchAt(data, i) && !emit(i) {
			return
		}
		i++
	}
}

// FindAll returns every offset in data where the pattern matches, ascending.
func (p *Pattern) FindAll(data []byte) []int {
	var out []int
	p.Find(data, func(off int) bool {
		out = append(out, off)
		return true
	})
	return out
}

// FindInto writes match offsets into out, stopping once out is full, and
// returns the number of offsets written. It performs no allocation, making it
// suitable for embedding behind a foreign-function boundary.
func (p *Pattern) FindInto(data []byte, out []uint64) int {
	if len(out) == 0 {
		return 0
	}
	n := 0
	p.Find(data, func(off int) bool {
		out[n] = uint64(off)
		n++
		return n < len(out)
	})
	return n
}

func (p *Pattern) matchAt(data []byte, off int) bool {
	for j, mask := range p.masks {
		if data[off+j]&mask != p.values[j] {
			return false
		}
	}
	return true
}
