package verify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"fxcnn/fixed"
	"fxcnn/kernels"
	"fxcnn/tensor"
)

// ReferenceOptions controls the float convolution baseline.
type ReferenceOptions struct {
	Stride  int
	Padding int
	// Normalize divides each kernel by its Divisor, as a float pipeline
	// would apply blur and Gaussian presets.
	Normalize bool
}

// ReferenceConv computes the float baseline of the convolution engine: one
// output plane per filter, each the sum over channels of the valid-mode
// correlation of the zero-padded input with that channel's kernel, plus bias.
// Nothing is truncated.
func ReferenceConv(in *tensor.Volume, filters []kernels.KernelSpec, opts ReferenceOptions) ([]*mat.Dense, error) {
	if opts.Stride < 1 || opts.Padding < 0 {
		return nil, fmt.Errorf("%w: stride %d, padding %d", fixed.ErrInvalidConfig, opts.Stride, opts.Padding)
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: no filters", fixed.ErrShapeMismatch)
	}
	padded := in.Pad(opts.Padding)
	planes := make([]*mat.Dense, in.C)
	for c := range planes {
		planes[c] = padded.Plane(c)
	}

	out := make([]*mat.Dense, len(filters))
	for f, spec := range filters {
		if spec.Channels() != in.C {
			return nil, fmt.Errorf("%w: filter %d (%s) spans %d channels, input has %d", fixed.ErrShapeMismatch, f, spec.Name, spec.Channels(), in.C)
		}
		k := spec.Size()
		if padded.H < k || padded.W < k {
			return nil, fmt.Errorf("%w: padded input %dx%d smaller than kernel %d", fixed.ErrShapeMismatch, padded.H, padded.W, k)
		}
		raw := spec
		if !opts.Normalize {
			raw.Divisor = 1
		}
		ks := raw.Normalized()
		outH := (padded.H-k)/opts.Stride + 1
		outW := (padded.W-k)/opts.Stride + 1
		res := mat.NewDense(outH, outW, nil)
		prod := mat.NewDense(k, k, nil)
		for y := 0; y < outH; y++ {
			for x := 0; x < outW; x++ {
				sum := float64(spec.Bias)
				for c, plane := range planes {
					win := plane.Slice(y*opts.Stride, y*opts.Stride+k, x*opts.Stride, x*opts.Stride+k)
					prod.MulElem(win, ks[c])
					sum += mat.Sum(prod)
				}
				res.Set(y, x, sum)
			}
		}
		out[f] = res
	}
	return out, nil
}

// CompareReport summarizes the element-wise gap between a fixed-point volume
// and a float baseline.
type CompareReport struct {
	Elements    int
	MaxAbsError float64
	MeanAbsErr  float64
	Mismatches  int
}

// CompareVolume compares got channel c against want[c]. Elements further
// than tol from the baseline count as mismatches.
func CompareVolume(got *tensor.Volume, want []*mat.Dense, tol float64) (*CompareReport, error) {
	if len(want) != got.C {
		return nil, fmt.Errorf("%w: %d baseline planes for %d channels", fixed.ErrShapeMismatch, len(want), got.C)
	}
	rep := &CompareReport{}
	total := 0.0
	for c, w := range want {
		h, wd := w.Dims()
		if h != got.H || wd != got.W {
			return nil, fmt.Errorf("%w: baseline plane %d is %dx%d, volume is %dx%d", fixed.ErrShapeMismatch, c, h, wd, got.H, got.W)
		}
		for y := 0; y < h; y++ {
			for x := 0; x < wd; x++ {
				d := math.Abs(float64(got.At(y, x, c)) - w.At(y, x))
				total += d
				rep.MaxAbsError = math.Max(rep.MaxAbsError, d)
				if d > tol {
					rep.Mismatches++
				}
				rep.Elements++
			}
		}
	}
	if rep.Elements > 0 {
		rep.MeanAbsErr = total / float64(rep.Elements)
	}
	return rep, nil
}
