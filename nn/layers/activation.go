package layers

import (
	"context"
	"fmt"

	"fxcnn/hw"
	"fxcnn/tensor"
)

// SupportedActivations contains the stock SiLU scale-factor configurations.
var SupportedActivations = map[string]hw.SiLUConfig{
	"silu_p8": {
		Width:      16,
		ScalePower: 8,
		Tolerance:  hw.DefaultTolerance,
	},
	"silu_p10": {
		Width:      16,
		ScalePower: 10,
		Tolerance:  hw.DefaultTolerance,
	},
	"silu_p12": {
		Width:      16,
		ScalePower: 12,
		Tolerance:  hw.DefaultTolerance,
	},
	"silu_p16_w32": {
		Width:      32,
		ScalePower: 16,
		Tolerance:  hw.DefaultTolerance,
	},
}

// Activation streams every element of a volume through one SiLU block, one
// element per tick.
type Activation struct {
	name  string
	block *hw.SiLU
	ticks int64
}

// NewActivation creates an activation layer from a SupportedActivations name.
func NewActivation(name string) (*Activation, error) {
	cfg, ok := SupportedActivations[name]
	if !ok {
		return nil, fmt.Errorf("unsupported activation: %s", name)
	}
	a, err := NewActivationFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.name = name
	return a, nil
}

// NewActivationFromConfig creates an activation layer with an explicit
// configuration.
func NewActivationFromConfig(cfg hw.SiLUConfig) (*Activation, error) {
	block, err := hw.NewSiLU(cfg)
	if err != nil {
		return nil, err
	}
	if err := hw.ApplyReset(block, hw.MinResetTicks); err != nil {
		return nil, err
	}
	return &Activation{name: fmt.Sprintf("silu_p%d_w%d", cfg.ScalePower, cfg.Width), block: block}, nil
}

// Config returns the block configuration.
func (a *Activation) Config() hw.SiLUConfig { return a.block.Config() }

// Block exposes the underlying datapath block.
func (a *Activation) Block() *hw.SiLU { return a.block }

// Ticks returns the number of enabled ticks consumed so far.
func (a *Activation) Ticks() int64 { return a.ticks }

func (a *Activation) Forward(ctx context.Context, x *tensor.Volume) (*tensor.Volume, error) {
	out := tensor.New(x.H, x.W, x.C)
	for i, v := range x.Data {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out.Data[i] = a.block.Compute(v)
		a.ticks++
	}
	return out, nil
}

func (a *Activation) Latency() int { return a.block.Latency() }

func (a *Activation) Tag() string { return "Activation_" + a.name }
