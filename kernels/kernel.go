// Package kernels holds convolution filter value objects and the registry of
// named presets used to build test fixtures.
package kernels

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"fxcnn/fixed"
)

// KernelSpec is one filter: a square, odd-sized integer weight matrix per
// input channel plus a single bias. Divisor is the normalization a float
// baseline applies to the weights; the fixed-point engine ignores it.
//
// A KernelSpec is immutable once built; the accessors return copies.
type KernelSpec struct {
	Name    string
	Bias    int64
	Divisor int64
	weights [][][]int64
}

// New validates weights, indexed [channel][row][col], and returns a kernel with
// divisor 1.
func New(name string, weights [][][]int64, bias int64) (KernelSpec, error) {
	if len(weights) == 0 {
		return KernelSpec{}, fmt.Errorf("%w: kernel %q has no channels", fixed.ErrShapeMismatch, name)
	}
	k := len(weights[0])
	if k == 0 || k%2 == 0 {
		return KernelSpec{}, fmt.Errorf("%w: kernel %q size %d must be odd", fixed.ErrShapeMismatch, name, k)
	}
	for c, plane := range weights {
		if len(plane) != k {
			return KernelSpec{}, fmt.Errorf("%w: kernel %q channel %d has %d rows, want %d", fixed.ErrShapeMismatch, name, c, len(plane), k)
		}
		for r, row := range plane {
			if len(row) != k {
				return KernelSpec{}, fmt.Errorf("%w: kernel %q channel %d row %d has %d columns, want %d", fixed.ErrShapeMismatch, name, c, r, len(row), k)
			}
		}
	}
	return KernelSpec{Name: name, Bias: bias, Divisor: 1, weights: copyWeights(weights)}, nil
}

// Size returns the kernel side length.
func (k KernelSpec) Size() int {
	if len(k.weights) == 0 {
		return 0
	}
	return len(k.weights[0])
}

// Channels returns the number of input channels the kernel spans.
func (k KernelSpec) Channels() int { return len(k.weights) }

// Weight returns the weight at (channel, row, col).
func (k KernelSpec) Weight(c, r, col int) int64 { return k.weights[c][r][col] }

// Weights returns a copy of the weights, indexed [channel][row][col].
func (k KernelSpec) Weights() [][][]int64 { return copyWeights(k.weights) }

// Taps returns the number of multiply-adds per output element.
func (k KernelSpec) Taps() int { return k.Channels() * k.Size() * k.Size() }

// Flipped returns the kernel rotated by 180 degrees in every channel, so that
// correlating with it equals convolving with k.
func (k KernelSpec) Flipped() KernelSpec {
	n := k.Size()
	w := make([][][]int64, len(k.weights))
	for c, plane := range k.weights {
		w[c] = make([][]int64, n)
		for r := range plane {
			w[c][r] = make([]int64, n)
			for col := range plane[r] {
				w[c][r][col] = plane[n-1-r][n-1-col]
			}
		}
	}
	return KernelSpec{Name: k.Name, Bias: k.Bias, Divisor: k.Divisor, weights: w}
}

// CheckRange validates every weight and the bias against signed widths.
func (k KernelSpec) CheckRange(weightWidth, biasWidth int) error {
	for c, plane := range k.weights {
		for r, row := range plane {
			for col, w := range row {
				if w < fixed.MinSigned(weightWidth) || w > fixed.MaxSigned(weightWidth) {
					return fmt.Errorf("%w: kernel %q weight %d at (%d, %d, %d) does not fit %d bits", fixed.ErrValueOutOfRange, k.Name, w, c, r, col, weightWidth)
				}
			}
		}
	}
	if k.Bias < fixed.MinSigned(biasWidth) || k.Bias > fixed.MaxSigned(biasWidth) {
		return fmt.Errorf("%w: kernel %q bias %d does not fit %d bits", fixed.ErrValueOutOfRange, k.Name, k.Bias, biasWidth)
	}
	return nil
}

// Normalized returns each channel as a float matrix divided by Divisor.
func (k KernelSpec) Normalized() []*mat.Dense {
	d := float64(k.Divisor)
	if d == 0 {
		d = 1
	}
	n := k.Size()
	out := make([]*mat.Dense, len(k.weights))
	for c, plane := range k.weights {
		m := mat.NewDense(n, n, nil)
		for r, row := range plane {
			for col, w := range row {
				m.Set(r, col, float64(w))
			}
		}
		m.Scale(1/d, m)
		out[c] = m
	}
	return out
}

func copyWeights(w [][][]int64) [][][]int64 {
	out := make([][][]int64, len(w))
	for c, plane := range w {
		out[c] = make([][]int64, len(plane))
		for r, row := range plane {
			out[c][r] = append([]int64(nil), row...)
		}
	}
	return out
}
