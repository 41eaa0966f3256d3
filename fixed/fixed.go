// Package fixed implements the signed Q-format values every hardware block
// operates on: the truncation rule, range checks and the two's-complement
// bit-string codec used by the interchange files.
package fixed

import (
	"fmt"
	"math"
)

// MaxWidth is the widest value representable in an int64 register.
const MaxWidth = 64

// Wrap keeps the low width bits of v and sign-extends them. This is the
// truncation rule used by every block when a result exceeds its output width.
func Wrap(v int64, width int) int64 {
	if width >= MaxWidth {
		return v
	}
	shift := uint(MaxWidth - width)
	return (v << shift) >> shift
}

// WrapUnsigned keeps the low width bits of v.
func WrapUnsigned(v uint64, width int) uint64 {
	if width >= MaxWidth {
		return v
	}
	return v & (uint64(1)<<uint(width) - 1)
}

// MinSigned returns -2^(width-1).
func MinSigned(width int) int64 {
	return -1 << uint(width-1)
}

// MaxSigned returns 2^(width-1)-1.
func MaxSigned(width int) int64 {
	if width >= MaxWidth {
		return math.MaxInt64
	}
	return 1<<uint(width-1) - 1
}

// MaxUnsigned returns 2^width-1.
func MaxUnsigned(width int) uint64 {
	if width >= MaxWidth {
		return math.MaxUint64
	}
	return uint64(1)<<uint(width) - 1
}

// ValidWidth reports whether width can be held in an int64 register.
func ValidWidth(width int) bool {
	return width >= 1 && width <= MaxWidth
}

// Format describes a signed fixed-point value: Width total bits, of which
// Frac are fractional (scale factor 2^Frac).
type Format struct {
	Width int
	Frac  int
}

// NewFormat validates and returns a format.
func NewFormat(width, frac int) (Format, error) {
	if !ValidWidth(width) {
		return Format{}, fmt.Errorf("%w: width %d not in [1, %d]", ErrInvalidConfig, width, MaxWidth)
	}
	if frac < 0 || frac >= width {
		return Format{}, fmt.Errorf("%w: fractional bits %d not in [0, %d)", ErrInvalidConfig, frac, width)
	}
	return Format{Width: width, Frac: frac}, nil
}

// Min returns the most negative representable raw value.
func (f Format) Min() int64 { return MinSigned(f.Width) }

// Max returns the most positive representable raw value.
func (f Format) Max() int64 { return MaxSigned(f.Width) }

// HalfRange returns 2^(Width-1), the magnitude tolerances are expressed against.
func (f Format) HalfRange() float64 { return math.Ldexp(1, f.Width-1) }

// Scale returns 2^Frac.
func (f Format) Scale() int64 { return 1 << uint(f.Frac) }

// Fits reports whether v is representable.
func (f Format) Fits(v int64) bool {
	return v >= f.Min() && v <= f.Max()
}

// Wrap truncates v to the format's width.
func (f Format) Wrap(v int64) int64 { return Wrap(v, f.Width) }

// Check is the strict-range variant of Wrap used for test fixtures: it fails
// instead of truncating.
func (f Format) Check(v int64) error {
	if !f.Fits(v) {
		return fmt.Errorf("%w: %d not in [%d, %d] (Q%d.%d)", ErrValueOutOfRange, v, f.Min(), f.Max(), f.Width-f.Frac, f.Frac)
	}
	return nil
}

// ToFloat converts a raw value to its real-valued meaning.
func (f Format) ToFloat(v int64) float64 {
	return math.Ldexp(float64(v), -f.Frac)
}

// FromFloat rounds x to the nearest raw value and truncates it to the width.
func (f Format) FromFloat(x float64) int64 {
	return f.Wrap(int64(math.Round(math.Ldexp(x, f.Frac))))
}

func (f Format) String() string {
	return fmt.Sprintf("Q%d.%d", f.Width-f.Frac, f.Frac)
}
