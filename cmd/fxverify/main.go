// fxverify: golden-model runs and checks for the fixed-point datapath
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"fxcnn/hw"
	"fxcnn/kernels"
	"fxcnn/nn/layers"
	"fxcnn/store"
	"fxcnn/tensor"
	"fxcnn/utils"
	"fxcnn/verify"
)

var (
	mode        = flag.String("mode", "conv", "Run mode: conv, silu, sqrt or check")
	inputFile   = flag.String("input", "", "Input interchange file (conv: image frames, check: DUT output)")
	outputFile  = flag.String("output", "", "Output interchange file (conv: result, check: expected values)")
	presetsFile = flag.String("presets", "", "Extra kernel presets JSON file")
	storeDir    = flag.String("store", "", "Badger directory for golden vectors and reports")
	bits        = flag.Int("bits", 32, "Interchange bit width")
	height      = flag.Int("height", 0, "Frame height")
	width       = flag.Int("width", 0, "Frame width")
	filters     = flag.String("filters", "identity", "Comma separated kernel presets")
	bias        = flag.Int64("bias", 0, "Bias applied to every filter")
	stride      = flag.Int("stride", 1, "Convolution stride")
	padding     = flag.Int("padding", 1, "Convolution zero padding")
	dataWidth   = flag.Int("data-width", 16, "Sample width")
	weightWidth = flag.Int("weight-width", 16, "Weight width")
	accWidth    = flag.Int("acc-width", 32, "Accumulator width")
	convMode    = flag.String("conv-mode", "sequential", "Tap reduction: sequential or parallel")
	activate    = flag.Bool("silu", false, "Chain the SiLU block after the convolution")
	siluWidth   = flag.Int("silu-width", 16, "SiLU data width")
	scalePower  = flag.Int("p", 10, "SiLU scale factor power")
	tolerance   = flag.Float64("tol", hw.DefaultTolerance, "SiLU tolerance as a fraction of the half-range")
	sweepLo     = flag.Int64("lo", 0, "Sweep start (default -7*2^p)")
	sweepHi     = flag.Int64("hi", 0, "Sweep end, exclusive (default 7*2^p)")
	sqrtWidth   = flag.Int("sqrt-width", 16, "Square root radicand width")
	pipelined   = flag.Bool("pipelined", false, "Use the digit-pipelined square root")
	verbose     = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose
	log.SetFlags(0)
	log.SetPrefix("fxverify: ")

	cfg := configFromFlags()
	if err := utils.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(cfg))
}

// run executes one validated configuration and returns the exit code:
// 0 on success, 1 on error, 2 when the run completed but a check failed.
// Deferred cleanup runs before the caller exits.
func run(cfg *utils.Config) int {
	if cfg.PresetsPath != "" {
		f, err := utils.LoadPresets(cfg.PresetsPath)
		if err != nil {
			log.Printf("loading presets: %v", err)
			return 1
		}
		if err := utils.RegisterPresets(kernels.DefaultRegistry, f); err != nil {
			log.Printf("registering presets: %v", err)
			return 1
		}
		log.Printf("registered %d presets from %s", len(f.Presets), cfg.PresetsPath)
	}

	var db *store.VectorStore
	if cfg.StoreDir != "" {
		var err error
		db, err = store.Open(cfg.StoreDir)
		if err != nil {
			log.Print(err)
			return 1
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("closing store: %v", err)
			}
		}()
	}

	var ok bool
	var err error
	switch cfg.Mode {
	case "conv":
		ok, err = runConv(cfg, db)
	case "silu":
		ok, err = runSiLU(cfg, db)
	case "sqrt":
		ok, err = runSqrt(cfg)
	case "check":
		ok, err = runCheck(cfg)
	}
	if err != nil {
		log.Printf("%s: %v", cfg.Mode, err)
		return 1
	}
	if !ok {
		return 2
	}
	return 0
}

func configFromFlags() *utils.Config {
	cfg := utils.DefaultConfig()
	cfg.Mode = *mode
	cfg.InputPath = *inputFile
	cfg.OutputPath = *outputFile
	cfg.PresetsPath = *presetsFile
	cfg.StoreDir = *storeDir
	cfg.InterchangeWidth = *bits
	cfg.Height = *height
	cfg.Width = *width
	cfg.Filters = utils.ParseFilters(*filters)
	cfg.Bias = *bias
	cfg.Stride = *stride
	cfg.Padding = *padding
	cfg.DataWidth = *dataWidth
	cfg.WeightWidth = *weightWidth
	cfg.AccWidth = *accWidth
	cfg.ConvMode = *convMode
	cfg.Activation = *activate
	cfg.SiLUWidth = *siluWidth
	cfg.ScalePower = *scalePower
	cfg.Tolerance = *tolerance
	cfg.SqrtWidth = *sqrtWidth
	cfg.Pipelined = *pipelined
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "lo" || f.Name == "hi" {
			cfg.SweepCustom = true
		}
	})
	cfg.SweepLo, cfg.SweepHi = *sweepLo, *sweepHi
	return cfg
}

func siluConfig(cfg *utils.Config) hw.SiLUConfig {
	return hw.SiLUConfig{Width: cfg.SiLUWidth, ScalePower: cfg.ScalePower, Tolerance: cfg.Tolerance}
}

func runConv(cfg *utils.Config, db *store.VectorStore) (bool, error) {
	stats := &utils.RunStats{}
	start := time.Now()

	data, err := utils.ReadVectorFile(cfg.InputPath, cfg.InterchangeWidth)
	if err != nil {
		return false, err
	}
	in, err := utils.FramesToVolume(data, cfg.Height, cfg.Width)
	if err != nil {
		return false, err
	}
	if err := in.CheckRange(cfg.DataWidth); err != nil {
		log.Printf("warning: %v (samples will be truncated)", err)
	}
	stats.LoadTime = time.Since(start)

	var bank []kernels.KernelSpec
	for _, name := range cfg.Filters {
		k, err := kernels.Preset(name, in.C, cfg.Bias)
		if err != nil {
			return false, err
		}
		bank = append(bank, k)
	}
	m, err := layers.ParseConvMode(cfg.ConvMode)
	if err != nil {
		return false, err
	}
	convCfg := layers.ConvConfig{
		DataWidth:   cfg.DataWidth,
		WeightWidth: cfg.WeightWidth,
		AccWidth:    cfg.AccWidth,
		Mode:        m,
	}
	if cfg.Activation {
		act := siluConfig(cfg)
		convCfg.Activation = &act
	}
	conv, err := layers.NewConv2D(convCfg, bank, cfg.Stride, cfg.Padding)
	if err != nil {
		return false, err
	}

	t := time.Now()
	out, err := conv.Forward(context.Background(), in)
	if err != nil {
		return false, err
	}
	stats.ComputeTime = time.Since(t)
	st := conv.Stats()
	stats.Ticks, stats.MACOps = st.Ticks, st.MACOps
	log.Printf("%s: %dx%dx%d -> %dx%dx%d, latency %d", conv.Tag(), in.H, in.W, in.C, out.H, out.W, out.C, conv.Latency())

	if !cfg.Activation {
		t = time.Now()
		base, err := verify.ReferenceConv(in, bank, verify.ReferenceOptions{Stride: cfg.Stride, Padding: cfg.Padding})
		if err != nil {
			return false, err
		}
		rep, err := verify.CompareVolume(out, base, 0)
		if err != nil {
			return false, err
		}
		stats.VerifyTime = time.Since(t)
		stats.MaxError = rep.MaxAbsError
		if rep.Mismatches > 0 {
			log.Printf("%d of %d elements differ from the float baseline (truncation), max |err| %.0f", rep.Mismatches, rep.Elements, rep.MaxAbsError)
		}
	}

	if cfg.OutputPath != "" {
		if err := utils.WriteVectorFile(cfg.OutputPath, utils.VolumeToFrames(out), cfg.InterchangeWidth); err != nil {
			return false, err
		}
	}
	if db != nil {
		t = time.Now()
		if err := db.PutVolume("conv/"+conv.Tag(), cfg.AccWidth, out); err != nil {
			return false, err
		}
		stats.StoreTime = time.Since(t)
	}

	stats.TotalTime = time.Since(start)
	utils.PrintRunStats("CONVOLUTION", stats)
	return true, nil
}

func runSiLU(cfg *utils.Config, db *store.VectorStore) (bool, error) {
	start := time.Now()
	lo, hi := verify.DefaultSweepDomain(cfg.ScalePower)
	if cfg.SweepCustom {
		lo, hi = cfg.SweepLo, cfg.SweepHi
	}
	rep, err := verify.SweepActivation(siluConfig(cfg), lo, hi)
	if err != nil {
		return false, err
	}
	stats := &utils.RunStats{
		ComputeTime: time.Since(start),
		Ticks:       int64(rep.Samples),
		Samples:     rep.Samples,
		Violations:  len(rep.Violations),
		MaxError:    rep.MaxError,
	}
	if db != nil {
		t := time.Now()
		name := fmt.Sprintf("silu_w%d_p%d", cfg.SiLUWidth, cfg.ScalePower)
		if err := db.PutReport(name, rep); err != nil {
			return false, err
		}
		stats.StoreTime = time.Since(t)
	}
	stats.TotalTime = time.Since(start)
	utils.PrintRunStats("SILU SWEEP", stats)

	if err := rep.Err(); err != nil {
		log.Print(err)
		return false, nil
	}
	log.Printf("sweep [%d, %d) within %.1f (mean %.2f, std %.2f, worst %.2f at x=%d)",
		lo, hi, rep.Bound, rep.MeanError, rep.StdDev, rep.MaxError, rep.WorstInput)
	return true, nil
}

func runSqrt(cfg *utils.Config) (bool, error) {
	start := time.Now()
	q, err := hw.NewSqrt(hw.SqrtConfig{Width: cfg.SqrtWidth, Pipelined: cfg.Pipelined})
	if err != nil {
		return false, err
	}
	if err := hw.ApplyReset(q, hw.MinResetTicks); err != nil {
		return false, err
	}

	n := uint64(1) << uint(cfg.SqrtWidth)
	lat := q.Latency()
	bad := 0
	var prev uint64
	var ticks int64
	for tick := uint64(0); tick < n+uint64(lat)-1; tick++ {
		var x uint64
		if tick < n {
			x = tick
		}
		got := q.Compute(x)
		ticks++
		if tick+1 < uint64(lat) {
			continue
		}
		src := tick + 1 - uint64(lat)
		want := uint64(math.Sqrt(float64(src)))
		if got != want || got < prev {
			if bad < 10 {
				log.Printf("sqrt(%d) = %d, want %d", src, got, want)
			}
			bad++
		}
		prev = got
	}

	stats := &utils.RunStats{
		ComputeTime: time.Since(start),
		TotalTime:   time.Since(start),
		Ticks:       ticks,
		Samples:     int(n),
		Violations:  bad,
	}
	utils.PrintRunStats(q.Name(), stats)
	return bad == 0, nil
}

func runCheck(cfg *utils.Config) (bool, error) {
	got, err := utils.ReadVectorFile(cfg.InputPath, cfg.InterchangeWidth)
	if err != nil {
		return false, err
	}
	want, err := utils.ReadVectorFile(cfg.OutputPath, cfg.InterchangeWidth)
	if err != nil {
		return false, err
	}
	if len(got) != len(want) {
		return false, fmt.Errorf("DUT produced %d values, expected %d", len(got), len(want))
	}
	if cfg.Height > 0 && cfg.Width > 0 {
		v, err := utils.FramesToVolume(got, cfg.Height, cfg.Width)
		if err != nil {
			return false, err
		}
		w, err := utils.FramesToVolume(want, cfg.Height, cfg.Width)
		if err != nil {
			return false, err
		}
		if tensor.Equal(v, w) {
			log.Printf("%d frames of %dx%d match", v.C, v.H, v.W)
			return true, nil
		}
	}
	bad := 0
	for i := range got {
		if got[i] != want[i] {
			if bad < 10 {
				log.Printf("value %d: got %d, want %d", i, got[i], want[i])
			}
			bad++
		}
	}
	log.Printf("%d of %d values differ", bad, len(got))
	return bad == 0, nil
}
