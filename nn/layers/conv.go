package layers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"fxcnn/fixed"
	"fxcnn/hw"
	"fxcnn/kernels"
	"fxcnn/tensor"
)

// ConvMode selects how taps are reduced.
type ConvMode int

const (
	// ModeSequential gives every output element its own accumulating MAC and
	// feeds one tap per tick.
	ModeSequential ConvMode = iota
	// ModeParallel forms every tap product in one tick on a MAC bank and
	// reduces them through a registered adder tree, one output position per
	// tick.
	ModeParallel
)

func (m ConvMode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeParallel:
		return "parallel"
	default:
		return fmt.Sprintf("ConvMode(%d)", int(m))
	}
}

// ParseConvMode maps "sequential" or "parallel" to a ConvMode.
func ParseConvMode(s string) (ConvMode, error) {
	switch strings.ToLower(s) {
	case "sequential", "seq":
		return ModeSequential, nil
	case "parallel", "par":
		return ModeParallel, nil
	}
	return 0, fmt.Errorf("%w: unknown conv mode %q", fixed.ErrInvalidConfig, s)
}

// ConvConfig holds the datapath widths of the engine. Activation, when set,
// chains a SiLU block after every output element.
type ConvConfig struct {
	DataWidth   int
	WeightWidth int
	AccWidth    int
	Mode        ConvMode
	Activation  *hw.SiLUConfig
}

// DefaultConvConfig returns 16-bit samples and weights into a 32-bit
// accumulator, sequential mode, no activation.
func DefaultConvConfig() ConvConfig {
	return ConvConfig{DataWidth: 16, WeightWidth: 16, AccWidth: 32, Mode: ModeSequential}
}

// OutputSize returns the floor-formula output extent for one dimension.
func OutputSize(in, k, stride, padding int) int {
	return (in-k+2*padding)/stride + 1
}

// ConvJob is one validated convolution request. Output channel f holds the
// result of filter f. Jobs are immutable; build them with NewConvJob.
type ConvJob struct {
	input   *tensor.Volume
	filters []kernels.KernelSpec
	stride  int
	padding int
	outH    int
	outW    int
}

func (j *ConvJob) Input() *tensor.Volume          { return j.input }
func (j *ConvJob) Filters() []kernels.KernelSpec { return append([]kernels.KernelSpec(nil), j.filters...) }
func (j *ConvJob) Stride() int                    { return j.stride }
func (j *ConvJob) Padding() int                   { return j.padding }

// OutputShape returns the output extent (H, W, C).
func (j *ConvJob) OutputShape() (int, int, int) { return j.outH, j.outW, len(j.filters) }

// NewConvJob checks every structural constraint up front so that Apply never
// fails on shape.
func NewConvJob(input *tensor.Volume, filters []kernels.KernelSpec, stride, padding int) (*ConvJob, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: nil input volume", fixed.ErrShapeMismatch)
	}
	if err := checkGeometry(filters, stride, padding); err != nil {
		return nil, err
	}
	k := filters[0].Size()
	if filters[0].Channels() != input.C {
		return nil, fmt.Errorf("%w: filters span %d channels, input has %d", fixed.ErrShapeMismatch, filters[0].Channels(), input.C)
	}
	if input.H+2*padding < k || input.W+2*padding < k {
		return nil, fmt.Errorf("%w: padded input %dx%d smaller than kernel %d", fixed.ErrShapeMismatch, input.H+2*padding, input.W+2*padding, k)
	}
	return &ConvJob{
		input:   input,
		filters: append([]kernels.KernelSpec(nil), filters...),
		stride:  stride,
		padding: padding,
		outH:    OutputSize(input.H, k, stride, padding),
		outW:    OutputSize(input.W, k, stride, padding),
	}, nil
}

func checkGeometry(filters []kernels.KernelSpec, stride, padding int) error {
	if stride < 1 {
		return fmt.Errorf("%w: stride %d must be at least 1", fixed.ErrInvalidConfig, stride)
	}
	if padding < 0 {
		return fmt.Errorf("%w: negative padding %d", fixed.ErrInvalidConfig, padding)
	}
	if len(filters) == 0 {
		return fmt.Errorf("%w: no filters", fixed.ErrShapeMismatch)
	}
	k, ch := filters[0].Size(), filters[0].Channels()
	for i, f := range filters {
		if f.Size() != k || f.Channels() != ch {
			return fmt.Errorf("%w: filter %d (%s) is %dx%dx%d, filter 0 is %dx%dx%d",
				fixed.ErrShapeMismatch, i, f.Name, f.Size(), f.Size(), f.Channels(), k, k, ch)
		}
	}
	return nil
}

// ConvStats describes the most recent Apply.
type ConvStats struct {
	Mode      ConvMode
	Filters   int
	Positions int
	// Ticks is the number of enabled clock edges per filter datapath,
	// excluding the reset sequence. Filters run side by side.
	Ticks int64
	// MACOps counts enabled multiply-adds across all filters.
	MACOps int64
}

// Conv2D is the convolution engine: valid-mode 2D correlation over a
// zero-padded input, summed across channels, plus bias.
type Conv2D struct {
	cfg     ConvConfig
	filters []kernels.KernelSpec
	stride  int
	padding int

	mu    sync.Mutex
	stats ConvStats
}

// NewConv2D validates the configuration and filter bank.
func NewConv2D(cfg ConvConfig, filters []kernels.KernelSpec, stride, padding int) (*Conv2D, error) {
	if !fixed.ValidWidth(cfg.DataWidth) || !fixed.ValidWidth(cfg.AccWidth) {
		return nil, fmt.Errorf("%w: data width %d / accumulator width %d not in [1, %d]", fixed.ErrInvalidConfig, cfg.DataWidth, cfg.AccWidth, fixed.MaxWidth)
	}
	// The bias enters as bias*1, so the weight port must hold +1.
	if cfg.WeightWidth < 2 || cfg.WeightWidth > fixed.MaxWidth {
		return nil, fmt.Errorf("%w: weight width %d not in [2, %d]", fixed.ErrInvalidConfig, cfg.WeightWidth, fixed.MaxWidth)
	}
	if cfg.Mode != ModeSequential && cfg.Mode != ModeParallel {
		return nil, fmt.Errorf("%w: %v", fixed.ErrInvalidConfig, cfg.Mode)
	}
	if cfg.Activation != nil {
		if _, err := hw.NewSiLU(*cfg.Activation); err != nil {
			return nil, err
		}
	}
	if err := checkGeometry(filters, stride, padding); err != nil {
		return nil, err
	}
	return &Conv2D{
		cfg:     cfg,
		filters: append([]kernels.KernelSpec(nil), filters...),
		stride:  stride,
		padding: padding,
	}, nil
}

// Filters returns the configured filter bank.
func (c *Conv2D) Filters() []kernels.KernelSpec {
	return append([]kernels.KernelSpec(nil), c.filters...)
}

// Config returns the construction parameters.
func (c *Conv2D) Config() ConvConfig { return c.cfg }

// Stats returns the counters of the most recent Apply.
func (c *Conv2D) Stats() ConvStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Forward runs the configured filter bank over x.
func (c *Conv2D) Forward(ctx context.Context, x *tensor.Volume) (*tensor.Volume, error) {
	job, err := NewConvJob(x, c.filters, c.stride, c.padding)
	if err != nil {
		return nil, err
	}
	return c.Apply(ctx, job)
}

type filterRun struct {
	ticks int64
	ops   int64
}

// Apply evaluates job on this engine's datapath. Filters are independent
// hardware and run concurrently; each writes only its own output channel.
func (c *Conv2D) Apply(ctx context.Context, job *ConvJob) (*tensor.Volume, error) {
	if job == nil || job.input == nil {
		return nil, fmt.Errorf("%w: job was not built by NewConvJob", fixed.ErrShapeMismatch)
	}
	out := tensor.New(job.outH, job.outW, len(job.filters))
	padded := job.input.Pad(job.padding)

	runs := make([]filterRun, len(job.filters))
	g, ctx := errgroup.WithContext(ctx)
	for f := range job.filters {
		g.Go(func() error {
			var err error
			if c.cfg.Mode == ModeParallel {
				runs[f], err = c.runParallel(ctx, padded, job, f, out)
			} else {
				runs[f], err = c.runSequential(ctx, padded, job, f, out)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st := ConvStats{Mode: c.cfg.Mode, Filters: len(job.filters), Positions: job.outH * job.outW}
	for _, r := range runs {
		st.Ticks = max(st.Ticks, r.ticks)
		st.MACOps += r.ops
	}
	c.mu.Lock()
	c.stats = st
	c.mu.Unlock()
	return out, nil
}

func (c *Conv2D) sample(v int64) int64 { return fixed.Wrap(v, c.cfg.DataWidth) }

func (c *Conv2D) newActivation() (*hw.SiLU, error) {
	if c.cfg.Activation == nil {
		return nil, nil
	}
	s, err := hw.NewSiLU(*c.cfg.Activation)
	if err != nil {
		return nil, err
	}
	return s, hw.ApplyReset(s, hw.MinResetTicks)
}

// runSequential steps one accumulator per output element in lockstep: the
// clearing tick loads the bias, then each tick applies one tap everywhere.
func (c *Conv2D) runSequential(ctx context.Context, in *tensor.Volume, job *ConvJob, f int, out *tensor.Volume) (filterRun, error) {
	spec := job.filters[f]
	n := job.outH * job.outW
	accs := make([]*hw.AccumulativeMAC, n)
	for i := range accs {
		a, err := hw.NewAccumulativeMAC(hw.AccumulativeMACConfig{
			// Samples are narrowed to DataWidth before entering; the
			// wide port carries the bias on the clearing tick.
			Multiplier1Width: c.cfg.AccWidth,
			Multiplier2Width: c.cfg.WeightWidth,
			OutWidth:         c.cfg.AccWidth,
		})
		if err != nil {
			return filterRun{}, err
		}
		if err := hw.ApplyReset(a, hw.MinResetTicks); err != nil {
			return filterRun{}, err
		}
		accs[i] = a
	}

	var run filterRun
	bias := fixed.Wrap(spec.Bias, c.cfg.AccWidth)
	for _, a := range accs {
		a.Load(bias, 1)
	}
	run.ticks++

	k := spec.Size()
	for ch := 0; ch < spec.Channels(); ch++ {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		for r := 0; r < k; r++ {
			for col := 0; col < k; col++ {
				w := spec.Weight(ch, r, col)
				for i, a := range accs {
					y := (i / job.outW) * job.stride
					x := (i % job.outW) * job.stride
					a.Compute(c.sample(in.At(y+r, x+col, ch)), w)
				}
				run.ticks++
			}
		}
	}

	results := make([]int64, n)
	for i, a := range accs {
		results[i] = a.Result()
		run.ops += a.Ops()
	}
	if c.cfg.Activation != nil {
		for i := range results {
			s, err := c.newActivation()
			if err != nil {
				return run, err
			}
			results[i] = s.Compute(results[i])
		}
		run.ticks++
	}
	for i, v := range results {
		out.Set(v, i/job.outW, i%job.outW, f)
	}
	return run, nil
}

// runParallel streams output positions through MAC bank -> adder tree ->
// optional activation, one position per tick. A delay line of the same
// total latency carries each position's tag (index+1, 0 for a bubble) so the
// result is written when it emerges.
func (c *Conv2D) runParallel(ctx context.Context, in *tensor.Volume, job *ConvJob, f int, out *tensor.Volume) (filterRun, error) {
	spec := job.filters[f]
	taps := spec.Taps()
	k := spec.Size()

	bank := make([]*hw.MAC, taps)
	for i := range bank {
		m, err := hw.NewMAC(hw.MACConfig{
			Multiplier1Width: c.cfg.DataWidth,
			Multiplier2Width: c.cfg.WeightWidth,
			AddWidth:         c.cfg.AccWidth,
			OutWidth:         c.cfg.AccWidth,
		})
		if err != nil {
			return filterRun{}, err
		}
		bank[i] = m
	}
	tree, err := hw.NewAdderTree(hw.AdderTreeConfig{
		Inputs:     taps + 1,
		InWidth:    c.cfg.AccWidth,
		OutWidth:   c.cfg.AccWidth,
		Registered: true,
	})
	if err != nil {
		return filterRun{}, err
	}
	act, err := c.newActivation()
	if err != nil {
		return filterRun{}, err
	}

	latency := bank[0].Latency() + tree.Latency()
	if act != nil {
		latency += act.Latency()
	}
	tags, err := hw.NewPipeline(hw.PipelineConfig{Stages: latency, Width: fixed.MaxWidth})
	if err != nil {
		return filterRun{}, err
	}
	blocks := []hw.Block{tree, tags}
	for _, m := range bank {
		blocks = append(blocks, m)
	}
	for _, b := range blocks {
		if err := hw.ApplyReset(b, hw.MinResetTicks); err != nil {
			return filterRun{}, err
		}
	}

	weights := make([]int64, 0, taps)
	for ch := 0; ch < spec.Channels(); ch++ {
		for r := 0; r < k; r++ {
			for col := 0; col < k; col++ {
				weights = append(weights, spec.Weight(ch, r, col))
			}
		}
	}

	var run filterRun
	n := job.outH * job.outW
	addends := make([]int64, taps+1)
	addends[taps] = fixed.Wrap(spec.Bias, c.cfg.AccWidth)
	for tick := 0; tick < n+latency-1; tick++ {
		if tick%256 == 0 {
			if err := ctx.Err(); err != nil {
				return run, err
			}
		}

		// Registered chain, evaluated back to front so every stage
		// consumes what its predecessor held before this edge.
		var y int64
		if act != nil {
			y = act.Compute(tree.Output())
		}
		for i, m := range bank {
			addends[i] = m.Result()
		}
		sum := tree.Sum(addends...)
		if act == nil {
			y = sum
		}

		var tag int64
		if tick < n {
			tag = int64(tick) + 1
			oy := (tick / job.outW) * job.stride
			ox := (tick % job.outW) * job.stride
			i := 0
			for ch := 0; ch < spec.Channels(); ch++ {
				for r := 0; r < k; r++ {
					for col := 0; col < k; col++ {
						bank[i].Compute(c.sample(in.At(oy+r, ox+col, ch)), weights[i], 0)
						i++
					}
				}
			}
		} else {
			for _, m := range bank {
				m.Compute(0, 0, 0)
			}
		}

		if done := tags.Advance(tag); done > 0 {
			p := int(done - 1)
			out.Set(y, p/job.outW, p%job.outW, f)
		}
		run.ticks++
	}

	for _, m := range bank {
		run.ops += m.Ops()
	}
	return run, nil
}

// Latency is the number of ticks from an element's last tap to its result.
func (c *Conv2D) Latency() int {
	l := 1
	if c.cfg.Mode == ModeParallel {
		l += hw.TreeDepth(c.filters[0].Taps() + 1)
	}
	if c.cfg.Activation != nil {
		l++
	}
	return l
}

func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%d_%s", c.filters[0].Channels(), len(c.filters), c.filters[0].Size(), c.cfg.Mode)
}
