package hw

import (
	"fmt"
	"math/bits"

	"fxcnn/fixed"
)

// AdderTreeConfig parameterizes a balanced reduction of Inputs addends.
// When Registered is set each reduction level is a register stage and the
// latency is ceil(log2 Inputs); otherwise the sum is combinational.
type AdderTreeConfig struct {
	Inputs     int
	InWidth    int
	OutWidth   int
	Registered bool
}

// AdderTreePorts are the per-tick inputs of an AdderTree. Addends must hold
// exactly Inputs values.
type AdderTreePorts struct {
	Ctrl    Control
	Addends []int64
}

// AdderTree sums a fixed number of addends by pairwise levels. Every partial
// sum is truncated to OutWidth, which keeps the result equal to the wrapped
// exact sum whatever the pairing.
type AdderTree struct {
	cfg    AdderTreeConfig
	levels [][]int64
	out    int64
	state  ControlState
}

// TreeDepth returns ceil(log2 k), the number of pairwise levels for k addends.
func TreeDepth(k int) int {
	if k <= 1 {
		return 0
	}
	return bits.Len(uint(k - 1))
}

// NewAdderTree builds a zeroed tree.
func NewAdderTree(cfg AdderTreeConfig) (*AdderTree, error) {
	if cfg.Inputs < 1 {
		return nil, fmt.Errorf("%w: adder tree needs at least one addend, got %d", fixed.ErrInvalidConfig, cfg.Inputs)
	}
	if err := checkWidth("adder tree input", cfg.InWidth); err != nil {
		return nil, err
	}
	if err := checkWidth("adder tree output", cfg.OutWidth); err != nil {
		return nil, err
	}

	t := &AdderTree{cfg: cfg, state: StateReset}
	if cfg.Registered {
		n := cfg.Inputs
		for d := TreeDepth(cfg.Inputs); d > 0; d-- {
			n = (n + 1) / 2
			t.levels = append(t.levels, make([]int64, n))
		}
	}
	return t, nil
}

// Step commits one edge. It panics if the addend count differs from the
// configured Inputs, which is a wiring error rather than a data error.
func (t *AdderTree) Step(ports *AdderTreePorts) int64 {
	t.state = ports.Ctrl.State()
	switch t.state {
	case StateReset:
		for _, l := range t.levels {
			clear(l)
		}
		t.out = 0
	case StateRunning:
		if len(ports.Addends) != t.cfg.Inputs {
			panic(fmt.Sprintf("adder tree: got %d addends, configured for %d", len(ports.Addends), t.cfg.Inputs))
		}
		in := make([]int64, len(ports.Addends))
		for i, a := range ports.Addends {
			in[i] = fixed.Wrap(a, t.cfg.InWidth)
		}
		if len(t.levels) == 0 {
			t.out = TreeSum(in, t.cfg.OutWidth)
			break
		}
		// Deepest level first so each level consumes last tick's values.
		for d := len(t.levels) - 1; d > 0; d-- {
			reduceInto(t.levels[d], t.levels[d-1], t.cfg.OutWidth)
		}
		reduceInto(t.levels[0], in, t.cfg.OutWidth)
		t.out = t.levels[len(t.levels)-1][0]
	}
	return t.out
}

// Output returns the value currently driven by the last level.
func (t *AdderTree) Output() int64 { return t.out }

// Sum is Step with enable asserted.
func (t *AdderTree) Sum(addends ...int64) int64 {
	return t.Step(&AdderTreePorts{Ctrl: Run, Addends: addends})
}

func (t *AdderTree) Tick(ctrl Control) int64 {
	return t.Step(&AdderTreePorts{Ctrl: ctrl, Addends: make([]int64, t.cfg.Inputs)})
}

func (t *AdderTree) Name() string { return fmt.Sprintf("adder_tree[%d]", t.cfg.Inputs) }

func (t *AdderTree) Latency() int {
	if !t.cfg.Registered {
		return 0
	}
	return TreeDepth(t.cfg.Inputs)
}

func (t *AdderTree) State() ControlState { return t.state }

// TreeSum reduces addends pairwise in a single combinational pass, truncating
// each partial sum to width.
func TreeSum(addends []int64, width int) int64 {
	if len(addends) == 0 {
		return 0
	}
	level := append([]int64(nil), addends...)
	for len(level) > 1 {
		next := make([]int64, (len(level)+1)/2)
		reduceInto(next, level, width)
		level = next
	}
	return fixed.Wrap(level[0], width)
}

// reduceInto writes the pairwise sums of src into dst; an odd trailing
// element passes through unchanged.
func reduceInto(dst, src []int64, width int) {
	for i := range dst {
		a := src[2*i]
		if 2*i+1 < len(src) {
			a += src[2*i+1]
		}
		dst[i] = fixed.Wrap(a, width)
	}
}
