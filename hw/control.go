// Package hw holds cycle-level reference models of the synchronous datapath
// blocks. Each block owns its registers exclusively and advances only through
// Step, which commits exactly one clock edge.
//
// Tick convention: the value returned by Step is the output visible after
// the edge. A block of latency L returns, from the Step call at tick T, the
// result of the inputs presented at tick T-L+1. Counting the output of call T
// as "on tick T+1", an input presented on tick T appears on tick T+L.
package hw

import (
	"fmt"

	"fxcnn/fixed"
)

// MinResetTicks is the number of consecutive ticks reset must be held in a
// conformant test sequence.
const MinResetTicks = 2

// ControlState is the externally observable mode of a block.
type ControlState int

const (
	// StateReset forces registers and output to zero.
	StateReset ControlState = iota
	// StateIdle holds the last computed state.
	StateIdle
	// StateRunning advances one logical step per tick.
	StateRunning
)

func (s ControlState) String() string {
	switch s {
	case StateReset:
		return "RESET"
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	default:
		return fmt.Sprintf("ControlState(%d)", int(s))
	}
}

// Control carries the per-tick control inputs shared by every block.
// Reset has priority over Enable; Clear only acts together with Enable and
// is ignored by blocks without an accumulator.
type Control struct {
	Reset  bool
	Enable bool
	Clear  bool
}

// Run is the control word of an ordinary enabled tick.
var Run = Control{Enable: true}

// State resolves the control inputs into the state the next edge applies.
func (c Control) State() ControlState {
	if c.Reset {
		return StateReset
	}
	if c.Enable {
		return StateRunning
	}
	return StateIdle
}

// Clearing reports whether the accumulator clear takes effect this tick.
func (c Control) Clearing() bool {
	return !c.Reset && c.Enable && c.Clear
}

// Block is the common surface of every datapath model.
type Block interface {
	Name() string
	// Latency is fixed at construction.
	Latency() int
	// State reports the control state applied by the most recent edge.
	State() ControlState
	// Tick commits one edge with the given control word, holding data
	// inputs at zero.
	Tick(ctrl Control) int64
}

// ApplyReset holds reset on b for n ticks, as a conformant sequence does
// before releasing it.
func ApplyReset(b Block, n int) error {
	if n < MinResetTicks {
		return fmt.Errorf("%w: reset held %d ticks, need at least %d", fixed.ErrInvalidConfig, n, MinResetTicks)
	}
	for i := 0; i < n; i++ {
		b.Tick(Control{Reset: true})
	}
	return nil
}

func checkWidth(name string, width int) error {
	if !fixed.ValidWidth(width) {
		return fmt.Errorf("%w: %s width %d not in [1, %d]", fixed.ErrInvalidConfig, name, width, fixed.MaxWidth)
	}
	return nil
}
