package hw

// AccumulativeMACConfig holds the port widths of an accumulating MAC. The
// accumulator is OutWidth bits wide.
type AccumulativeMACConfig struct {
	Multiplier1Width int
	Multiplier2Width int
	OutWidth         int
}

// AccumulativeMACPorts are the per-tick inputs of an AccumulativeMAC.
type AccumulativeMACPorts struct {
	Ctrl        Control
	Multiplier1 int64
	Multiplier2 int64
}

// AccumulativeMAC feeds a MAC's registered result back into its add port.
//
// A clear tick discards the prior sum but still loads the current product
// (clear-and-load), so a clear followed by no further taps leaves the
// product of the clearing tick, not zero.
type AccumulativeMAC struct {
	mac *MAC
}

// NewAccumulativeMAC builds a zeroed accumulator.
func NewAccumulativeMAC(cfg AccumulativeMACConfig) (*AccumulativeMAC, error) {
	mac, err := NewMAC(MACConfig{
		Multiplier1Width: cfg.Multiplier1Width,
		Multiplier2Width: cfg.Multiplier2Width,
		AddWidth:         cfg.OutWidth,
		OutWidth:         cfg.OutWidth,
	})
	if err != nil {
		return nil, err
	}
	return &AccumulativeMAC{mac: mac}, nil
}

// Step commits one edge.
func (a *AccumulativeMAC) Step(ports *AccumulativeMACPorts) int64 {
	feedback := a.mac.Result()
	if ports.Ctrl.Clearing() {
		feedback = 0
	}
	return a.mac.Step(&MACPorts{
		Ctrl:        ports.Ctrl,
		Multiplier1: ports.Multiplier1,
		Multiplier2: ports.Multiplier2,
		Add:         feedback,
	})
}

// Compute accumulates one product with enable asserted.
func (a *AccumulativeMAC) Compute(multiplier1, multiplier2 int64) int64 {
	return a.Step(&AccumulativeMACPorts{Ctrl: Run, Multiplier1: multiplier1, Multiplier2: multiplier2})
}

// Load is a clearing tick: the accumulator restarts from this product.
func (a *AccumulativeMAC) Load(multiplier1, multiplier2 int64) int64 {
	return a.Step(&AccumulativeMACPorts{
		Ctrl:        Control{Enable: true, Clear: true},
		Multiplier1: multiplier1,
		Multiplier2: multiplier2,
	})
}

// Result returns the accumulator.
func (a *AccumulativeMAC) Result() int64 { return a.mac.Result() }

// Ops returns the number of enabled multiply-adds performed since construction.
func (a *AccumulativeMAC) Ops() int64 { return a.mac.Ops() }

func (a *AccumulativeMAC) Tick(ctrl Control) int64 {
	return a.Step(&AccumulativeMACPorts{Ctrl: ctrl})
}

func (a *AccumulativeMAC) Name() string        { return "accumulative_mac" }
func (a *AccumulativeMAC) Latency() int        { return 1 }
func (a *AccumulativeMAC) State() ControlState { return a.mac.State() }
