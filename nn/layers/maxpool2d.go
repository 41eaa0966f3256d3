package layers

import (
	"context"
	"fmt"

	"fxcnn/fixed"
	"fxcnn/tensor"
)

// MaxPool2D takes the per-channel maximum over k×k windows of a zero-padded
// input.
type MaxPool2D struct {
	kernel  int
	stride  int
	padding int
}

// NewMaxPool2D validates the window geometry.
func NewMaxPool2D(kernel, stride, padding int) (*MaxPool2D, error) {
	if kernel < 1 {
		return nil, fmt.Errorf("%w: pool kernel %d must be at least 1", fixed.ErrInvalidConfig, kernel)
	}
	if stride < 1 {
		return nil, fmt.Errorf("%w: pool stride %d must be at least 1", fixed.ErrInvalidConfig, stride)
	}
	if padding < 0 {
		return nil, fmt.Errorf("%w: negative pool padding %d", fixed.ErrInvalidConfig, padding)
	}
	return &MaxPool2D{kernel: kernel, stride: stride, padding: padding}, nil
}

// GetOutputShape returns the output dimensions for given input dimensions.
func (m *MaxPool2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return OutputSize(inH, m.kernel, m.stride, m.padding), OutputSize(inW, m.kernel, m.stride, m.padding)
}

func (m *MaxPool2D) Forward(ctx context.Context, x *tensor.Volume) (*tensor.Volume, error) {
	if x.H+2*m.padding < m.kernel || x.W+2*m.padding < m.kernel {
		return nil, fmt.Errorf("%w: padded input %dx%d smaller than pool kernel %d", fixed.ErrShapeMismatch, x.H+2*m.padding, x.W+2*m.padding, m.kernel)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := x.Pad(m.padding)
	outH, outW := m.GetOutputShape(x.H, x.W)
	out := tensor.New(outH, outW, x.C)
	for c := 0; c < x.C; c++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				best := in.At(oy*m.stride, ox*m.stride, c)
				for dy := 0; dy < m.kernel; dy++ {
					for dx := 0; dx < m.kernel; dx++ {
						best = max(best, in.At(oy*m.stride+dy, ox*m.stride+dx, c))
					}
				}
				out.Set(best, oy, ox, c)
			}
		}
	}
	return out, nil
}

func (m *MaxPool2D) Latency() int { return 1 }

func (m *MaxPool2D) Tag() string {
	return fmt.Sprintf("MaxPool2D_%d_%d_%d", m.kernel, m.stride, m.padding)
}
