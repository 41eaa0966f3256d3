package fixed

import (
	"fmt"
	"strings"
)

// DefaultInterchangeWidth is the usual line width of interchange files.
const DefaultInterchangeWidth = 32

// EncodeSigned renders v as a width-character two's-complement bit string,
// most significant bit first.
func EncodeSigned(v int64, width int) (string, error) {
	if !ValidWidth(width) {
		return "", fmt.Errorf("%w: width %d", ErrInvalidConfig, width)
	}
	if v < MinSigned(width) || v > MaxSigned(width) {
		return "", fmt.Errorf("%w: %d does not fit %d bits", ErrValueOutOfRange, v, width)
	}
	return EncodeUnsigned(uint64(v), width)
}

// EncodeUnsigned renders the low width bits of v, most significant bit first.
func EncodeUnsigned(v uint64, width int) (string, error) {
	if !ValidWidth(width) {
		return "", fmt.Errorf("%w: width %d", ErrInvalidConfig, width)
	}
	var sb strings.Builder
	sb.Grow(width)
	for i := width - 1; i >= 0; i-- {
		if v>>uint(i)&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String(), nil
}

// DecodeUnsigned parses a bit string of exactly width characters.
func DecodeUnsigned(bits string, width int) (uint64, error) {
	if !ValidWidth(width) {
		return 0, fmt.Errorf("%w: width %d", ErrInvalidConfig, width)
	}
	if len(bits) != width {
		return 0, fmt.Errorf("%w: got %d bits, want exactly %d", ErrMalformedBits, len(bits), width)
	}
	var v uint64
	for i := 0; i < len(bits); i++ {
		v <<= 1
		switch bits[i] {
		case '0':
		case '1':
			v |= 1
		default:
			return 0, fmt.Errorf("%w: invalid character %q at position %d", ErrMalformedBits, bits[i], i)
		}
	}
	return v, nil
}

// DecodeSigned parses a width-character two's-complement bit string. The
// most negative value (a one followed by zeros) decodes to -2^(width-1).
func DecodeSigned(bits string, width int) (int64, error) {
	u, err := DecodeUnsigned(bits, width)
	if err != nil {
		return 0, err
	}
	return Wrap(int64(u), width), nil
}
