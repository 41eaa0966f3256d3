// Package verify holds the ideal floating-point references the fixed-point
// datapath is judged against, and the sweeps that collect violations across
// a whole input domain.
package verify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"fxcnn/fixed"
	"fxcnn/hw"
)

// IdealSiLU returns x*sigmoid(x).
func IdealSiLU(x float64) float64 {
	return x / (1 + math.Exp(-x))
}

// IdealSiLUScaled evaluates IdealSiLU on a raw value with scale 2^p and
// returns the result in the same raw scale.
func IdealSiLUScaled(raw int64, p int) float64 {
	s := math.Ldexp(1, p)
	return IdealSiLU(float64(raw)/s) * s
}

// Violation is one sample whose error exceeds the bound.
type Violation struct {
	Input int64
	Got   int64
	Ideal float64
	Error float64
}

func (v Violation) String() string {
	return fmt.Sprintf("x=%d got=%d ideal=%.3f |err|=%.3f", v.Input, v.Got, v.Ideal, v.Error)
}

// ToleranceError aggregates every violation of a sweep.
type ToleranceError struct {
	Bound      float64
	Samples    int
	Violations []Violation
	Worst      Violation
}

func (e *ToleranceError) Error() string {
	return fmt.Sprintf("%v: %d of %d samples exceed %.3f, worst %s",
		fixed.ErrToleranceExceeded, len(e.Violations), e.Samples, e.Bound, e.Worst)
}

func (e *ToleranceError) Unwrap() error { return fixed.ErrToleranceExceeded }

// SweepReport summarizes the absolute error over a swept domain.
type SweepReport struct {
	Config     hw.SiLUConfig `json:"config"`
	Lo         int64         `json:"lo"`
	Hi         int64         `json:"hi"`
	Samples    int           `json:"samples"`
	Bound      float64       `json:"bound"`
	MeanError  float64       `json:"mean_error"`
	StdDev     float64       `json:"std_dev"`
	MaxError   float64       `json:"max_error"`
	WorstInput int64         `json:"worst_input"`
	Violations []Violation   `json:"violations,omitempty"`
}

// Passed reports whether no sample exceeded the bound.
func (r *SweepReport) Passed() bool { return len(r.Violations) == 0 }

// Err returns a *ToleranceError when any sample exceeded the bound.
func (r *SweepReport) Err() error {
	if r.Passed() {
		return nil
	}
	worst := r.Violations[0]
	for _, v := range r.Violations[1:] {
		if v.Error > worst.Error {
			worst = v
		}
	}
	return &ToleranceError{Bound: r.Bound, Samples: r.Samples, Violations: r.Violations, Worst: worst}
}

// SweepActivation drives a fresh SiLU block with every input in [lo, hi),
// one per tick, and compares each output with the ideal reference.
func SweepActivation(cfg hw.SiLUConfig, lo, hi int64) (*SweepReport, error) {
	if hi <= lo {
		return nil, fmt.Errorf("%w: empty sweep [%d, %d)", fixed.ErrInvalidConfig, lo, hi)
	}
	block, err := hw.NewSiLU(cfg)
	if err != nil {
		return nil, err
	}
	if err := hw.ApplyReset(block, hw.MinResetTicks); err != nil {
		return nil, err
	}

	rep := &SweepReport{Config: cfg, Lo: lo, Hi: hi, Bound: block.Bound()}
	errs := make([]float64, 0, hi-lo)
	for x := lo; x < hi; x++ {
		got := block.Compute(x)
		ideal := IdealSiLUScaled(fixed.Wrap(x, cfg.Width), cfg.ScalePower)
		e := math.Abs(float64(got) - ideal)
		errs = append(errs, e)
		if e > rep.Bound {
			rep.Violations = append(rep.Violations, Violation{Input: x, Got: got, Ideal: ideal, Error: e})
		}
	}

	rep.Samples = len(errs)
	rep.MeanError, rep.StdDev = stat.MeanStdDev(errs, nil)
	if rep.Samples == 1 {
		rep.StdDev = 0
	}
	i := floats.MaxIdx(errs)
	rep.MaxError = errs[i]
	rep.WorstInput = lo + int64(i)
	return rep, nil
}

// DefaultSweepDomain returns [-7*2^p, 7*2^p).
func DefaultSweepDomain(p int) (lo, hi int64) {
	s := int64(7) << uint(p)
	return -s, s
}
