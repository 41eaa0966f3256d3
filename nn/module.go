package nn

import (
	"context"
	"strings"

	"fxcnn/tensor"
)

// Module is one stage of the fixed-point datapath.
type Module interface {
	Forward(ctx context.Context, x *tensor.Volume) (*tensor.Volume, error)
	// Latency is the number of ticks between the last input contributing to
	// an output element and that element becoming visible.
	Latency() int
	Tag() string
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(ctx context.Context, x *tensor.Volume) (*tensor.Volume, error) {
	out := x
	for _, layer := range s.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		out, err = layer.Forward(ctx, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Latency sums Latency() of all layers.
func (s *Sequential) Latency() int {
	sum := 0
	for _, layer := range s.Layers {
		sum += layer.Latency()
	}
	return sum
}

func (s *Sequential) Tag() string {
	tags := make([]string, len(s.Layers))
	for i, layer := range s.Layers {
		tags[i] = layer.Tag()
	}
	return "Sequential(" + strings.Join(tags, ", ") + ")"
}
