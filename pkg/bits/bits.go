// Package bits provides the bit sequence type exchanged between the
// scrambler, frame generator and channel model.
package bits

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedBitStream is returned when a textual bit stream contains
// anything other than '0' and '1'
var ErrMalformedBitStream = errors.New("malformed bit stream")

// Bits is an ordered sequence of 0/1 values
type Bits []uint8

// Parse converts a string of '0' and '1' characters into Bits.
// Leading and trailing whitespace is ignored.
func Parse(s string) (Bits, error) {
	s = strings.TrimSpace(s)
	b := make(Bits, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			b[i] = 0
		case '1':
			b[i] = 1
		default:
			return nil, fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformedBitStream, s[i], i)
		}
	}
	return b, nil
}

// Read parses a bit stream from r
func Read(r io.Reader) (Bits, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bit stream: %w", err)
	}
	return Parse(string(data))
}

// String renders the sequence as '0'/'1' characters
func (b Bits) String() string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, bit := range b {
		if bit == 0 {
			sb.WriteByte('0')
		} else {
			sb.WriteByte('1')
		}
	}
	return sb.String()
}

// Clone returns an independent copy of b
func (b Bits) Clone() Bits {
	if b == nil {
		return nil
	}
	c := make(Bits, len(b))
	copy(c, b)
	return c
}

// Equal reports whether b and other hold the same bits
func (b Bits) Equal(other Bits) bool {
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if b[i] != other[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether every bit is 0. An empty sequence is zero.
func (b Bits) IsZero() bool {
	for _, bit := range b {
		if bit != 0 {
			return false
		}
	}
	return true
}

// Ones returns the number of set bits
func (b Bits) Ones() int {
	n := 0
	for _, bit := range b {
		if bit != 0 {
			n++
		}
	}
	return n
}

// Concat returns a new sequence holding all parts in order
func Concat(parts ...Bits) Bits {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make(Bits, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// CountErrors returns the number of positions where a and b differ.
// Only the common prefix of both sequences is compared.
func CountErrors(a, b Bits) int {
	n := min(len(a), len(b))
	errs := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			errs++
		}
	}
	return errs
}

// ErrorRate returns errs/length, or 0 for an empty frame
func ErrorRate(errs, length int) float64 {
	if length <= 0 {
		return 0
	}
	return float64(errs) / float64(length)
}
