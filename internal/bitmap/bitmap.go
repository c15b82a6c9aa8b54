package bitmap

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// ErrWidthMismatch is returned when two bitmaps of different widths are combined.
var ErrWidthMismatch = errors.New("bitmap width mismatch")

// Bitmap is a fixed-width set of committee member indices.
// Bit i lives in byte i/8 at position i%8, the same layout used for signer bitmaps on the wire.
type Bitmap struct {
	width int    // width is the number of addressable bits
	bits  []byte // bits holds (width+7)/8 bytes, padding bits always zero
}

// New creates an empty bitmap of the given width.
func New(width int) Bitmap {
	if width < 0 {
		width = 0
	}

	return Bitmap{
		width: width,
		bits:  make([]byte, (width+7)/8),
	}
}

// FromIndices builds a bitmap with the given indices set.
// Indices outside [0, width) are ignored.
func FromIndices(width int, indices ...int) Bitmap {
	b := New(width)

	for _, idx := range indices {
		if idx >= 0 && idx < width {
			b.bits[idx/8] |= 1 << (idx % 8)
		}
	}

	return b
}

// FromBytes builds a bitmap of the given width from its byte representation.
func FromBytes(width int, data []byte) (Bitmap, error) {
	want := (width + 7) / 8
	if len(data) != want {
		return Bitmap{}, fmt.Errorf("%w: %d bytes for width %d, want %d", ErrWidthMismatch, len(data), width, want)
	}

	b := New(width)
	copy(b.bits, data)

	// Padding bits must stay clear or popcount would count them
	if rem := width % 8; rem != 0 {
		b.bits[want-1] &= byte(1<<rem) - 1
	}

	return b, nil
}

// Parse reads a bit string where character i is bit i ("1101" sets bits 0, 1 and 3).
// The resulting width is the string length.
func Parse(s string) (Bitmap, error) {
	b := New(len(s))

	for i, c := range s {
		switch c {
		case '1':
			b.bits[i/8] |= 1 << (i % 8)
		case '0':
		default:
			return Bitmap{}, fmt.Errorf("invalid bit %q at position %d", c, i)
		}
	}

	return b, nil
}

// Width returns the number of addressable bits.
func (b Bitmap) Width() int {
	return b.width
}

// Has reports whether bit i is set. Out of range indices are never set.
func (b Bitmap) Has(i int) bool {
	if i < 0 || i >= b.width {
		return false
	}

	return b.bits[i/8]&(1<<(i%8)) != 0
}

// Set sets bit i. Out of range indices are ignored.
func (b Bitmap) Set(i int) {
	if i < 0 || i >= b.width {
		return
	}

	b.bits[i/8] |= 1 << (i % 8)
}

// Clear clears bit i. Out of range indices are ignored.
func (b Bitmap) Clear(i int) {
	if i < 0 || i >= b.width {
		return
	}

	b.bits[i/8] &^= 1 << (i % 8)
}

// Count returns the number of set bits.
func (b Bitmap) Count() int {
	n := 0
	for _, x := range b.bits {
		n += bits.OnesCount8(x)
	}

	return n
}

// Len returns the index of the highest set bit plus one, or 0 for an empty bitmap.
func (b Bitmap) Len() int {
	for i := len(b.bits) - 1; i >= 0; i-- {
		if b.bits[i] != 0 {
			return i*8 + bits.Len8(b.bits[i])
		}
	}

	return 0
}

// Full reports whether every bit of the width is set.
func (b Bitmap) Full() bool {
	return b.Count() == b.width
}

// Union sets every bit of other in b and returns how many bits were newly set.
func (b Bitmap) Union(other Bitmap) (int, error) {
	if b.width != other.width {
		return 0, fmt.Errorf("%w: %d != %d", ErrWidthMismatch, b.width, other.width)
	}

	added := 0
	for i, x := range other.bits {
		fresh := x &^ b.bits[i]
		added += bits.OnesCount8(fresh)
		b.bits[i] |= fresh
	}

	return added, nil
}

// Difference returns a new bitmap holding the bits of b that are not in other.
func (b Bitmap) Difference(other Bitmap) (Bitmap, error) {
	if b.width != other.width {
		return Bitmap{}, fmt.Errorf("%w: %d != %d", ErrWidthMismatch, b.width, other.width)
	}

	out := New(b.width)
	for i, x := range b.bits {
		out.bits[i] = x &^ other.bits[i]
	}

	return out, nil
}

// Contains reports whether every bit of other is also set in b.
func (b Bitmap) Contains(other Bitmap) bool {
	if b.width != other.width {
		return false
	}

	for i, x := range other.bits {
		if x&^b.bits[i] != 0 {
			return false
		}
	}

	return true
}

// Equal reports whether both bitmaps have the same width and bits.
func (b Bitmap) Equal(other Bitmap) bool {
	if b.width != other.width {
		return false
	}

	for i, x := range b.bits {
		if other.bits[i] != x {
			return false
		}
	}

	return true
}

// Clone returns an independent copy.
func (b Bitmap) Clone() Bitmap {
	out := Bitmap{width: b.width, bits: make([]byte, len(b.bits))}
	copy(out.bits, b.bits)

	return out
}

// Indices returns the set bits in ascending order.
func (b Bitmap) Indices() []int {
	indices := make([]int, 0, b.Count())

	for byteIdx, x := range b.bits {
		for x != 0 {
			bit := bits.TrailingZeros8(x)
			indices = append(indices, byteIdx*8+bit)
			x &= x - 1
		}
	}

	return indices
}

// Bytes returns a copy of the byte representation.
func (b Bitmap) Bytes() []byte {
	out := make([]byte, len(b.bits))
	copy(out, b.bits)

	return out
}

// String renders the bitmap with bit 0 first, the inverse of Parse.
func (b Bitmap) String() string {
	var sb strings.Builder
	sb.Grow(b.width)

	for i := 0; i < b.width; i++ {
		if b.Has(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}
