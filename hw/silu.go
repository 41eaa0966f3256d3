package hw

import (
	"fmt"
	"math/bits"

	"fxcnn/fixed"
)

// DefaultTolerance is the acceptance bound, as a fraction of the output
// half-range, used when verifying the activation approximation.
const DefaultTolerance = 0.1

// SiLUConfig parameterizes the piecewise activation. Tolerance is not used
// by the datapath; it travels with the instance so every scale-factor
// configuration is checked against its own bound.
type SiLUConfig struct {
	Width      int
	ScalePower int // P, scale factor 2^P
	Tolerance  float64
}

// SiLUPorts are the per-tick inputs of a SiLU block.
type SiLUPorts struct {
	Ctrl Control
	Data int64
}

// SiLU approximates x*sigmoid(x) with the hard-swish segments
//
//	x < -3s          -> 0
//	-3s <= x < 3s    -> x*(x+3s) / 6s
//	x >= 3s          -> x
//
// where s = 2^P, registered with one tick of latency.
type SiLU struct {
	cfg   SiLUConfig
	out   int64
	state ControlState
}

// NewSiLU builds a zeroed activation block.
func NewSiLU(cfg SiLUConfig) (*SiLU, error) {
	if err := checkWidth("silu", cfg.Width); err != nil {
		return nil, err
	}
	// 3*2^P must be representable in the input width.
	if cfg.ScalePower < 0 || cfg.ScalePower > cfg.Width-3 {
		return nil, fmt.Errorf("%w: scale power %d not in [0, %d] for width %d", fixed.ErrInvalidConfig, cfg.ScalePower, cfg.Width-3, cfg.Width)
	}
	if cfg.Tolerance < 0 {
		return nil, fmt.Errorf("%w: negative tolerance %g", fixed.ErrInvalidConfig, cfg.Tolerance)
	}
	return &SiLU{cfg: cfg, state: StateReset}, nil
}

// HardSwish evaluates the transfer function for scale 2^p, 0 <= p <= 61.
// The middle segment forms the product at 128 bits and divides with
// truncation toward zero.
func HardSwish(x int64, p int) int64 {
	three := int64(3) << uint(p)
	switch {
	case x < -three:
		return 0
	case x < three:
		// |x| <= 3s and 0 <= x+3s < 6s, so the quotient is at most 3s.
		mag := uint64(x)
		if x < 0 {
			mag = uint64(-x)
		}
		hi, lo := bits.Mul64(mag, uint64(x)+uint64(three))
		q, _ := bits.Div64(hi, lo, 2*uint64(three))
		if x < 0 {
			return -int64(q)
		}
		return int64(q)
	default:
		return x
	}
}

// Step commits one edge.
func (s *SiLU) Step(ports *SiLUPorts) int64 {
	s.state = ports.Ctrl.State()
	switch s.state {
	case StateReset:
		s.out = 0
	case StateRunning:
		x := fixed.Wrap(ports.Data, s.cfg.Width)
		s.out = fixed.Wrap(HardSwish(x, s.cfg.ScalePower), s.cfg.Width)
	}
	return s.out
}

// Compute is Step with enable asserted.
func (s *SiLU) Compute(x int64) int64 {
	return s.Step(&SiLUPorts{Ctrl: Run, Data: x})
}

// Config returns the construction parameters.
func (s *SiLU) Config() SiLUConfig { return s.cfg }

// Bound returns the absolute error allowed against the ideal reference:
// Tolerance * 2^(Width-1).
func (s *SiLU) Bound() float64 {
	return s.cfg.Tolerance * fixed.Format{Width: s.cfg.Width}.HalfRange()
}

func (s *SiLU) Tick(ctrl Control) int64 {
	return s.Step(&SiLUPorts{Ctrl: ctrl})
}

func (s *SiLU) Name() string        { return fmt.Sprintf("silu[p=%d]", s.cfg.ScalePower) }
func (s *SiLU) Latency() int        { return 1 }
func (s *SiLU) State() ControlState { return s.state }
