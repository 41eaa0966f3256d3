package utils

import (
	"fmt"
	"strings"

	"fxcnn/fixed"
)

// Config holds the parameters of one verification run
type Config struct {
	Mode string // conv, silu, sqrt or check

	InputPath   string
	OutputPath  string
	PresetsPath string
	StoreDir    string

	// Interchange
	InterchangeWidth int
	Height           int
	Width            int

	// Convolution engine
	Filters     []string
	Bias        int64
	Stride      int
	Padding     int
	DataWidth   int
	WeightWidth int
	AccWidth    int
	ConvMode    string

	// Activation
	Activation  bool
	SiLUWidth   int
	ScalePower  int
	Tolerance   float64
	SweepLo     int64
	SweepHi     int64
	SweepCustom bool

	// Square root
	SqrtWidth int
	Pipelined bool
}

// DefaultConfig returns the usual setup: 32-bit interchange, 16-bit
// samples and weights, 32-bit accumulation, P=10 activation at 10%.
func DefaultConfig() *Config {
	return &Config{
		Mode:             "conv",
		InterchangeWidth: fixed.DefaultInterchangeWidth,
		Filters:          []string{"identity"},
		Stride:           1,
		Padding:          1,
		DataWidth:        16,
		WeightWidth:      16,
		AccWidth:         32,
		ConvMode:         "sequential",
		SiLUWidth:        16,
		ScalePower:       10,
		Tolerance:        0.1,
		SqrtWidth:        16,
	}
}

// ParseFilters parses a comma or space separated preset list
func ParseFilters(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// ValidateConfig validates run configuration
func ValidateConfig(config *Config) error {
	switch config.Mode {
	case "conv", "silu", "sqrt", "check":
	default:
		return fmt.Errorf("%w: mode must be one of conv, silu, sqrt, check; got %q", fixed.ErrInvalidConfig, config.Mode)
	}

	if !fixed.ValidWidth(config.InterchangeWidth) {
		return fmt.Errorf("%w: interchange width %d not in [1, %d]", fixed.ErrInvalidConfig, config.InterchangeWidth, fixed.MaxWidth)
	}

	switch config.Mode {
	case "conv":
		if config.InputPath == "" {
			return fmt.Errorf("%w: conv mode needs an input file", fixed.ErrInvalidConfig)
		}
		if config.Height <= 0 || config.Width <= 0 {
			return fmt.Errorf("%w: frame size must be positive, got %dx%d", fixed.ErrInvalidConfig, config.Height, config.Width)
		}
		if len(config.Filters) == 0 {
			return fmt.Errorf("%w: at least one filter is required", fixed.ErrInvalidConfig)
		}
		if config.Stride < 1 {
			return fmt.Errorf("%w: stride must be positive", fixed.ErrInvalidConfig)
		}
		if config.Padding < 0 {
			return fmt.Errorf("%w: padding must not be negative", fixed.ErrInvalidConfig)
		}
		for _, w := range []int{config.DataWidth, config.WeightWidth, config.AccWidth} {
			if !fixed.ValidWidth(w) {
				return fmt.Errorf("%w: datapath width %d not in [1, %d]", fixed.ErrInvalidConfig, w, fixed.MaxWidth)
			}
		}
	case "silu":
		if config.Tolerance <= 0 {
			return fmt.Errorf("%w: tolerance must be positive", fixed.ErrInvalidConfig)
		}
		if config.SweepCustom && config.SweepHi <= config.SweepLo {
			return fmt.Errorf("%w: empty sweep [%d, %d)", fixed.ErrInvalidConfig, config.SweepLo, config.SweepHi)
		}
	case "sqrt":
		if config.SqrtWidth < 1 || config.SqrtWidth > 24 {
			return fmt.Errorf("%w: exhaustive sqrt sweep supports widths 1..24, got %d", fixed.ErrInvalidConfig, config.SqrtWidth)
		}
	case "check":
		if config.InputPath == "" || config.OutputPath == "" {
			return fmt.Errorf("%w: check mode needs an input and an expected file", fixed.ErrInvalidConfig)
		}
	}

	return nil
}
