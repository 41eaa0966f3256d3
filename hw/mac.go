package hw

import (
	"fxcnn/fixed"
)

// MACConfig holds the port widths of a multiply-accumulate unit.
type MACConfig struct {
	Multiplier1Width int
	Multiplier2Width int
	AddWidth         int
	OutWidth         int
}

// DefaultMACConfig is the common datapath: 16-bit operands feeding a
// 32-bit result.
func DefaultMACConfig() MACConfig {
	return MACConfig{
		Multiplier1Width: 16,
		Multiplier2Width: 16,
		AddWidth:         32,
		OutWidth:         32,
	}
}

// MACPorts are the per-tick inputs of a MAC.
type MACPorts struct {
	Ctrl        Control
	Multiplier1 int64
	Multiplier2 int64
	Add         int64
}

// MAC registers multiplier1*multiplier2+add, truncated to OutWidth, with one
// tick of latency.
type MAC struct {
	cfg    MACConfig
	result int64
	state  ControlState
	ops    int64
}

// NewMAC builds a zeroed MAC.
func NewMAC(cfg MACConfig) (*MAC, error) {
	for _, w := range []struct {
		name  string
		width int
	}{
		{"multiplier1", cfg.Multiplier1Width},
		{"multiplier2", cfg.Multiplier2Width},
		{"add", cfg.AddWidth},
		{"result", cfg.OutWidth},
	} {
		if err := checkWidth("mac "+w.name, w.width); err != nil {
			return nil, err
		}
	}
	return &MAC{cfg: cfg, state: StateReset}, nil
}

// Step commits one edge.
func (m *MAC) Step(ports *MACPorts) int64 {
	m.state = ports.Ctrl.State()
	switch m.state {
	case StateReset:
		m.result = 0
	case StateRunning:
		a := fixed.Wrap(ports.Multiplier1, m.cfg.Multiplier1Width)
		b := fixed.Wrap(ports.Multiplier2, m.cfg.Multiplier2Width)
		c := fixed.Wrap(ports.Add, m.cfg.AddWidth)
		// int64 arithmetic wraps mod 2^64, so the low OutWidth bits are exact.
		m.result = fixed.Wrap(a*b+c, m.cfg.OutWidth)
		m.ops++
	}
	return m.result
}

// Compute is Step with enable asserted.
func (m *MAC) Compute(multiplier1, multiplier2, add int64) int64 {
	return m.Step(&MACPorts{Ctrl: Run, Multiplier1: multiplier1, Multiplier2: multiplier2, Add: add})
}

// Result returns the registered output.
func (m *MAC) Result() int64 { return m.result }

// Ops returns the number of enabled multiply-adds performed since construction.
func (m *MAC) Ops() int64 { return m.ops }

func (m *MAC) Tick(ctrl Control) int64 {
	return m.Step(&MACPorts{Ctrl: ctrl})
}

func (m *MAC) Name() string        { return "mac" }
func (m *MAC) Latency() int        { return 1 }
func (m *MAC) State() ControlState { return m.state }
