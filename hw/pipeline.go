package hw

import (
	"fmt"

	"fxcnn/fixed"
)

// PipelineConfig parameterizes a fixed-length delay line.
type PipelineConfig struct {
	Stages int // N_STAGES, at least 1
	Width  int
}

// PipelinePorts are the per-tick inputs of a Pipeline.
type PipelinePorts struct {
	Ctrl Control
	Data int64
}

// Pipeline is an N-stage shift register. Slot 0 receives the input on each
// enabled tick and slot N-1 drives the output, so a value presented on tick
// T is visible on tick T+N and only on that tick.
type Pipeline struct {
	cfg    PipelineConfig
	stages []int64
	state  ControlState
}

// NewPipeline builds a zeroed delay line.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Stages < 1 {
		return nil, fmt.Errorf("%w: pipeline needs at least one stage, got %d", fixed.ErrInvalidConfig, cfg.Stages)
	}
	if err := checkWidth("pipeline", cfg.Width); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:    cfg,
		stages: make([]int64, cfg.Stages),
		state:  StateReset,
	}, nil
}

// Step commits one edge.
func (p *Pipeline) Step(ports *PipelinePorts) int64 {
	p.state = ports.Ctrl.State()
	switch p.state {
	case StateReset:
		clear(p.stages)
	case StateRunning:
		copy(p.stages[1:], p.stages[:len(p.stages)-1])
		p.stages[0] = fixed.Wrap(ports.Data, p.cfg.Width)
	}
	return p.Output()
}

// Advance is Step with enable asserted.
func (p *Pipeline) Advance(input int64) int64 {
	return p.Step(&PipelinePorts{Ctrl: Run, Data: input})
}

// Output returns the value currently driven by the last stage.
func (p *Pipeline) Output() int64 {
	return p.stages[len(p.stages)-1]
}

func (p *Pipeline) Tick(ctrl Control) int64 {
	return p.Step(&PipelinePorts{Ctrl: ctrl})
}

func (p *Pipeline) Name() string        { return fmt.Sprintf("pipeline[%d]", p.cfg.Stages) }
func (p *Pipeline) Latency() int        { return p.cfg.Stages }
func (p *Pipeline) State() ControlState { return p.state }
