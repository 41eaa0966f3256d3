package hw

import (
	"fmt"

	"fxcnn/fixed"
)

// SqrtConfig parameterizes an unsigned integer square root. Width is the
// radicand width; the root is ceil(Width/2) bits.
type SqrtConfig struct {
	Width     int
	Pipelined bool
}

// SqrtPorts are the per-tick inputs of a Sqrt block.
type SqrtPorts struct {
	Ctrl Control
	Data uint64
}

// sqrtStage is the partial state carried between digit iterations.
type sqrtStage struct {
	x    uint64
	rem  uint64
	root uint64
}

// Sqrt computes floor(sqrt(x)) by the restoring digit-by-digit method, one
// root bit per iteration. The single-cycle variant runs every iteration in
// one edge (latency 1); the pipelined variant registers each iteration and
// accepts a new radicand every tick (latency ceil(Width/2)).
type Sqrt struct {
	cfg    SqrtConfig
	digits int
	stages []sqrtStage
	state  ControlState
}

// NewSqrt builds a zeroed square root unit.
func NewSqrt(cfg SqrtConfig) (*Sqrt, error) {
	if err := checkWidth("sqrt", cfg.Width); err != nil {
		return nil, err
	}
	digits := (cfg.Width + 1) / 2
	n := 1
	if cfg.Pipelined {
		n = digits
	}
	return &Sqrt{
		cfg:    cfg,
		digits: digits,
		stages: make([]sqrtStage, n),
		state:  StateReset,
	}, nil
}

// sqrtDigit performs iteration i of digits, consuming the next two radicand
// bits from the top.
func sqrtDigit(s sqrtStage, i, digits int) sqrtStage {
	shift := uint(2 * (digits - 1 - i))
	s.rem = s.rem<<2 | (s.x>>shift)&3
	trial := s.root<<2 | 1
	s.root <<= 1
	if s.rem >= trial {
		s.rem -= trial
		s.root |= 1
	}
	return s
}

// ISqrt returns floor(sqrt(x)) for a radicand of the given width.
func ISqrt(x uint64, width int) uint64 {
	digits := (width + 1) / 2
	s := sqrtStage{x: fixed.WrapUnsigned(x, width)}
	for i := 0; i < digits; i++ {
		s = sqrtDigit(s, i, digits)
	}
	return s.root
}

// Step commits one edge.
func (q *Sqrt) Step(ports *SqrtPorts) uint64 {
	q.state = ports.Ctrl.State()
	switch q.state {
	case StateReset:
		clear(q.stages)
	case StateRunning:
		in := sqrtStage{x: fixed.WrapUnsigned(ports.Data, q.cfg.Width)}
		if !q.cfg.Pipelined {
			for i := 0; i < q.digits; i++ {
				in = sqrtDigit(in, i, q.digits)
			}
			q.stages[0] = in
			break
		}
		for i := len(q.stages) - 1; i > 0; i-- {
			q.stages[i] = sqrtDigit(q.stages[i-1], i, q.digits)
		}
		q.stages[0] = sqrtDigit(in, 0, q.digits)
	}
	return q.Output()
}

// Compute is Step with enable asserted.
func (q *Sqrt) Compute(x uint64) uint64 {
	return q.Step(&SqrtPorts{Ctrl: Run, Data: x})
}

// Output returns the root currently driven by the last stage.
func (q *Sqrt) Output() uint64 {
	return q.stages[len(q.stages)-1].root
}

func (q *Sqrt) Tick(ctrl Control) int64 {
	return int64(q.Step(&SqrtPorts{Ctrl: ctrl}))
}

func (q *Sqrt) Name() string {
	if q.cfg.Pipelined {
		return fmt.Sprintf("sqrt_pipelined[%d]", q.cfg.Width)
	}
	return fmt.Sprintf("sqrt[%d]", q.cfg.Width)
}

func (q *Sqrt) Latency() int        { return len(q.stages) }
func (q *Sqrt) State() ControlState { return q.state }
