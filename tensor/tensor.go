package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"fxcnn/fixed"
)

// Volume is an H×W×C array of raw fixed-point values backed by a flat
// []int64 in row-major (y, x, c) order.
type Volume struct {
	H, W, C int
	Data    []int64
}

// New allocates a zeroed Volume of the given shape.
func New(h, w, c int) *Volume {
	if h < 0 || w < 0 || c < 0 {
		panic(fmt.Sprintf("New: negative shape %dx%dx%d", h, w, c))
	}
	return &Volume{H: h, W: w, C: c, Data: make([]int64, h*w*c)}
}

// NewWithData wraps a copy of data as an H×W×C volume.
func NewWithData(h, w, c int, data []int64) (*Volume, error) {
	if len(data) != h*w*c {
		return nil, fmt.Errorf("%w: %d values for shape %dx%dx%d", fixed.ErrShapeMismatch, len(data), h, w, c)
	}
	return &Volume{H: h, W: w, C: c, Data: append([]int64(nil), data...)}, nil
}

// Shape returns (H, W, C).
func (v *Volume) Shape() (int, int, int) { return v.H, v.W, v.C }

// Len returns the number of elements.
func (v *Volume) Len() int { return len(v.Data) }

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	return &Volume{H: v.H, W: v.W, C: v.C, Data: append([]int64(nil), v.Data...)}
}

func (v *Volume) index(op string, y, x, c int) int {
	if y < 0 || y >= v.H || x < 0 || x >= v.W || c < 0 || c >= v.C {
		panic(fmt.Sprintf("%s: index (%d, %d, %d) out of bounds for shape %dx%dx%d", op, y, x, c, v.H, v.W, v.C))
	}
	return (y*v.W+x)*v.C + c
}

// At returns the element at (y, x, c).
func (v *Volume) At(y, x, c int) int64 {
	return v.Data[v.index("At", y, x, c)]
}

// Set stores value at (y, x, c).
func (v *Volume) Set(value int64, y, x, c int) {
	v.Data[v.index("Set", y, x, c)] = value
}

// Pad returns a copy zero-filled by p on each spatial side.
func (v *Volume) Pad(p int) *Volume {
	if p <= 0 {
		return v.Clone()
	}
	out := New(v.H+2*p, v.W+2*p, v.C)
	for y := 0; y < v.H; y++ {
		src := v.Data[y*v.W*v.C : (y+1)*v.W*v.C]
		dst := out.index("Pad", y+p, p, 0)
		copy(out.Data[dst:dst+len(src)], src)
	}
	return out
}

// CheckRange validates every element against a signed width. It is the
// strict fixture check; arithmetic never calls it.
func (v *Volume) CheckRange(width int) error {
	lo, hi := fixed.MinSigned(width), fixed.MaxSigned(width)
	for i, d := range v.Data {
		if d < lo || d > hi {
			c := i % v.C
			x := (i / v.C) % v.W
			y := i / (v.C * v.W)
			return fmt.Errorf("%w: %d at (%d, %d, %d) does not fit %d bits", fixed.ErrValueOutOfRange, d, y, x, c, width)
		}
	}
	return nil
}

// Equal reports whether a and b have the same shape and contents.
func Equal(a, b *Volume) bool {
	if a.H != b.H || a.W != b.W || a.C != b.C {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// Plane returns channel c as an H×W float matrix.
func (v *Volume) Plane(c int) *mat.Dense {
	if c < 0 || c >= v.C {
		panic(fmt.Sprintf("Plane: channel %d out of range [0, %d)", c, v.C))
	}
	m := mat.NewDense(max(v.H, 1), max(v.W, 1), nil)
	for y := 0; y < v.H; y++ {
		for x := 0; x < v.W; x++ {
			m.Set(y, x, float64(v.At(y, x, c)))
		}
	}
	return m
}

// FromPlanes builds a volume from equally sized channel planes, rounding
// each element to the nearest integer.
func FromPlanes(planes ...mat.Matrix) (*Volume, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: no planes", fixed.ErrShapeMismatch)
	}
	h, w := planes[0].Dims()
	out := New(h, w, len(planes))
	for c, p := range planes {
		ph, pw := p.Dims()
		if ph != h || pw != w {
			return nil, fmt.Errorf("%w: plane %d is %dx%d, want %dx%d", fixed.ErrShapeMismatch, c, ph, pw, h, w)
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(roundHalfAway(p.At(y, x)), y, x, c)
			}
		}
	}
	return out, nil
}

func roundHalfAway(f float64) int64 {
	if f < 0 {
		return -int64(-f + 0.5)
	}
	return int64(f + 0.5)
}
