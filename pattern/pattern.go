// Package pattern compiles byte patterns with wildcard positions and finds
// every place they occur in a raw byte buffer.
//
// Two authoring forms are supported. The mixed form is a string of hex pairs
// and wildcard tokens, whitespace separated or run together:
//
//	48 8B ?? ?? 89    full-byte wildcards
//	E8 ? ? ? ? C3     ? alone also means any byte
//	?A 1?             nibble wildcards (?A = any byte whose low nibble is A)
//
// The masked form pairs an escaped byte string with a same-length mask where
// '?' marks a wildcard byte and 'x' a fixed one:
//
//	ParseMasked(`\x48\x8B\x00\x00\x89`, "xx??x")
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPattern is returned when a pattern parses to zero positions.
var ErrEmptyPattern = errors.New("empty pattern")

// SyntaxError reports an uninterpretable token in a pattern or mask string.
type SyntaxError struct {
	Token string // offending text
	Pos   int    // byte offset in the input
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed pattern: unexpected %q at offset %d", e.Token, e.Pos)
}

// LengthMismatchError reports a masked pattern whose byte string and mask
// string disagree in length.
type LengthMismatchError struct {
	PatternLen int
	MaskLen    int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("pattern/mask length mismatch (%d != %d)", e.PatternLen, e.MaskLen)
}

// Pattern is a compiled byte pattern. It is immutable after parsing and safe
// for concurrent use.
//
// Each position holds a pre-masked value byte and a mask byte: position j
// matches input byte b when b&masks[j] == values[j]. Fixed bytes carry mask
// 0xFF, full-byte wildcards 0x00, nibble wildcards 0xF0 or 0x0F.
type Pattern struct {
	values []byte
	masks  []byte

	// index of the first position with mask 0xFF, or -1 when every
	// position carries at least one wildcard nibble
	firstFixed int
}

// Parse compiles a mixed hex/wildcard pattern string. Whitespace between
// tokens is ignored. A token is a run of hex digits and '?' characters; it
// must describe whole bytes (two characters per byte) except for the lone
// token "?", which is shorthand for a full-byte wildcard.
func Parse(text string) (*Pattern, error) {
	var values, masks []byte

	pos := 0
	for pos < len(text) {
		if isSpace(text[pos]) {
			pos++
			continue
		}

		start := pos
		for pos < len(text) && !isSpace(text[pos]) {
			pos++
		}
		token := text[start:pos]

		if token == "?" {
			values = append(values, 0)
			masks = append(masks, 0)
			continue
		}

		if len(token)%2 != 0 {
			return nil, &SyntaxError{Token: token, Pos: start}
		}

		for i := 0; i < len(token); i += 2 {
			hi, hiWild, ok := nibble(token[i])
			if !ok {
				return nil, &SyntaxError{Token: token[i : i+1], Pos: start + i}
			}
			lo, loWild, ok := nibble(token[i+1])
			if !ok {
				return nil, &SyntaxError{Token: token[i+1 : i+2], Pos: start + i + 1}
			}

			var value, mask byte
			if !hiWild {
				value |= hi << 4
				mask |= 0xF0
			}
			if !loWild {
				value |= lo
				mask |= 0x0F
			}
			values = append(values, value)
			masks = append(masks, mask)
		}
	}

	if len(values) == 0 {
		return nil, ErrEmptyPattern
	}
	return newPattern(values, masks), nil
}

// ParseMasked compiles a raw byte string against an explicit per-byte mask.
// The byte string may use the escapes \xNN, \\, \n, \r, \t and \0; the mask
// marks each byte wildcard ('?') or fixed ('x' or 'X'). The two must describe
// the same number of bytes; a mismatch is reported before any scanning can
// take place.
func ParseMasked(raw, mask string) (*Pattern, error) {
	bytes, err := unescape(raw)
	if err != nil {
		return nil, err
	}
	if len(bytes) != len(mask) {
		return nil, &LengthMismatchError{PatternLen: len(bytes), MaskLen: len(mask)}
	}
	if len(bytes) == 0 {
		return nil, ErrEmptyPattern
	}

	values := make([]byte, len(bytes))
	masks := make([]byte, len(bytes))
	for i := 0; i < len(mask); i++ {
		switch mask[i] {
		case '?':
			// wildcard: value stays zero
		case 'x', 'X':
			values[i] = bytes[i]
			masks[i] = 0xFF
		default:
			return nil, &SyntaxError{Token: mask[i : i+1], Pos: i}
		}
	}
	return newPattern(values, masks), nil
}

func newPattern(values, masks []byte) *Pattern {
	p := &Pattern{values: values, masks: masks, firstFixed: -1}
	for i, m := range masks {
		if m == 0xFF {
			p.firstFixed = i
			break
		}
	}
	return p
}

// Len returns the pattern length in bytes.
func (p *Pattern) Len() int {
	return len(p.values)
}

// String returns the canonical form of the pattern: uppercase hex pairs with
// wildcard nibbles rendered as '?', space separated. Compiling the returned
// string yields an identical pattern.
func (p *Pattern) String() string {
	var b strings.Builder
	b.Grow(len(p.values) * 3)
	for i := range p.values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(nibbleChar(p.values[i]>>4, p.masks[i]&0xF0 == 0))
		b.WriteByte(nibbleChar(p.values[i]&0x0F, p.masks[i]&0x0F == 0))
	}
	return b.String()
}

const hexDigits = "0123456789ABCDEF"

func nibbleChar(v byte, wild bool) byte {
	if wild {
		return '?'
	}
	return hexDigits[v]
}

// nibble decodes a single pattern character into a nibble value, reporting
// whether it is a wildcard and whether it was interpretable at all.
func nibble(c byte) (v byte, wild, ok bool) {
	switch {
	case c == '?':
		return 0, true, true
	case c >= '0' && c <= '9':
		return c - '0', false, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, false, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, false, true
	}
	return 0, false, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// unescape decodes the byte-string form used by masked patterns.
func unescape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}
		if i+1 >= len(s) {
			return nil, &SyntaxError{Token: s[i:], Pos: i}
		}
		switch s[i+1] {
		case '\\':
			out = append(out, '\\')
			i += 2
		case 'n':
			out = append(out, '\n')
			i += 2
		case 'r':
			out = append(out, '\r')
			i += 2
		case 't':
			out = append(out, '\t')
			i += 2
		case '0':
			out = append(out, 0)
			i += 2
		case 'x':
			if i+4 > len(s) {
				return nil, &SyntaxError{Token: s[i:], Pos: i}
			}
			hi, hiWild, ok := nibble(s[i+2])
			lo, loWild, ok2 := nibble(s[i+3])
			if !ok || !ok2 || hiWild || loWild {
				return nil, &SyntaxError{Token: s[i : i+4], Pos: i}
			}
			out = append(out, hi<<4|lo)
			i += 4
		default:
			return nil, &SyntaxError{Token: s[i : i+2], Pos: i}
		}
	}
	return out, nil
}
