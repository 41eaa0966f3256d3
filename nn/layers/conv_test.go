package layers

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxcnn/fixed"
	"fxcnn/hw"
	"fxcnn/kernels"
	"fxcnn/nn"
	"fxcnn/tensor"
)

var modes = []ConvMode{ModeSequential, ModeParallel}

func randomVolume(rng *rand.Rand, h, w, c int, lim int64) *tensor.Volume {
	v := tensor.New(h, w, c)
	for i := range v.Data {
		v.Data[i] = rng.Int63n(2*lim+1) - lim
	}
	return v
}

// naiveConv is the direct wrapped-sum definition.
func naiveConv(in *tensor.Volume, filters []kernels.KernelSpec, stride, pad, accWidth int) *tensor.Volume {
	k := filters[0].Size()
	p := in.Pad(pad)
	outH, outW := OutputSize(in.H, k, stride, pad), OutputSize(in.W, k, stride, pad)
	out := tensor.New(outH, outW, len(filters))
	for f, spec := range filters {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				sum := spec.Bias
				for c := 0; c < spec.Channels(); c++ {
					for r := 0; r < k; r++ {
						for col := 0; col < k; col++ {
							sum += p.At(oy*stride+r, ox*stride+col, c) * spec.Weight(c, r, col)
						}
					}
				}
				out.Set(fixed.Wrap(sum, accWidth), oy, ox, f)
			}
		}
	}
	return out
}

func TestConv2D_IdentityCrop(t *testing.T) {
	in := tensor.New(5, 5, 1)
	for i := range in.Data {
		in.Data[i] = int64(i + 1)
	}
	id, err := kernels.Preset("identity", 1, 0)
	require.NoError(t, err)

	for _, mode := range modes {
		cfg := DefaultConvConfig()
		cfg.Mode = mode
		conv, err := NewConv2D(cfg, []kernels.KernelSpec{id}, 1, 0)
		require.NoError(t, err)
		out, err := conv.Forward(context.Background(), in)
		require.NoError(t, err)

		require.Equal(t, 3, out.H, mode.String())
		require.Equal(t, 3, out.W, mode.String())
		require.Equal(t, 1, out.C, mode.String())
		for y := 0; y < 3; y++ {
			for x := 0; x < 3; x++ {
				assert.Equal(t, in.At(y+1, x+1, 0), out.At(y, x, 0), "%s (%d,%d)", mode, y, x)
			}
		}
	}
}

func TestConv2D_ModesMatchReference(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	in := randomVolume(rng, 7, 6, 3, 255)

	var filters []kernels.KernelSpec
	for _, name := range []string{"sobel_x", "test", "randoml_33"} {
		k, err := kernels.Preset(name, 3, rng.Int63n(200)-100)
		require.NoError(t, err)
		filters = append(filters, k)
	}

	for _, stride := range []int{1, 2, 3} {
		for _, pad := range []int{0, 1, 2} {
			want := naiveConv(in, filters, stride, pad, 32)
			for _, mode := range modes {
				cfg := DefaultConvConfig()
				cfg.Mode = mode
				conv, err := NewConv2D(cfg, filters, stride, pad)
				require.NoError(t, err)
				got, err := conv.Forward(context.Background(), in)
				require.NoError(t, err)
				require.True(t, tensor.Equal(want, got), "mode=%s stride=%d pad=%d\nwant %v\ngot  %v", mode, stride, pad, want.Data, got.Data)
			}
		}
	}
}

func TestConv2D_FiveByFiveKernel(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	in := randomVolume(rng, 9, 9, 2, 100)
	k, err := kernels.Preset("laplacian_gaussian", 2, 17)
	require.NoError(t, err)
	want := naiveConv(in, []kernels.KernelSpec{k}, 2, 2, 32)
	for _, mode := range modes {
		cfg := DefaultConvConfig()
		cfg.Mode = mode
		conv, err := NewConv2D(cfg, []kernels.KernelSpec{k}, 2, 2)
		require.NoError(t, err)
		got, err := conv.Forward(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, tensor.Equal(want, got), mode.String())
	}
}

func TestConv2D_TruncatesAccumulator(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	in := randomVolume(rng, 4, 4, 1, 120)
	k, err := kernels.Preset("edge", 1, 90)
	require.NoError(t, err)
	cfg := ConvConfig{DataWidth: 8, WeightWidth: 8, AccWidth: 10}
	want := naiveConv(in, []kernels.KernelSpec{k}, 1, 1, 10)
	for _, mode := range modes {
		cfg.Mode = mode
		conv, err := NewConv2D(cfg, []kernels.KernelSpec{k}, 1, 1)
		require.NoError(t, err)
		got, err := conv.Forward(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, tensor.Equal(want, got), mode.String())
		assert.NoError(t, got.CheckRange(10))
	}
}

func TestConv2D_WithActivation(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	in := randomVolume(rng, 6, 6, 1, 2000)
	k, err := kernels.Preset("sharp", 1, 0)
	require.NoError(t, err)
	act := SupportedActivations["silu_p10"]
	act.Width = 32

	plain := naiveConv(in, []kernels.KernelSpec{k}, 1, 1, 32)
	for _, mode := range modes {
		cfg := DefaultConvConfig()
		cfg.Mode = mode
		cfg.Activation = &act
		conv, err := NewConv2D(cfg, []kernels.KernelSpec{k}, 1, 1)
		require.NoError(t, err)
		got, err := conv.Forward(context.Background(), in)
		require.NoError(t, err)
		for i, v := range plain.Data {
			require.Equal(t, fixed.Wrap(hw.HardSwish(v, 10), 32), got.Data[i], "%s element %d", mode, i)
		}
	}
}

func TestConv2D_StatsAndLatency(t *testing.T) {
	in := tensor.New(5, 5, 3)
	k, err := kernels.Preset("blur", 3, 0)
	require.NoError(t, err)
	filters := []kernels.KernelSpec{k, k}

	seq, err := NewConv2D(DefaultConvConfig(), filters, 1, 0)
	require.NoError(t, err)
	_, err = seq.Forward(context.Background(), in)
	require.NoError(t, err)
	st := seq.Stats()
	assert.Equal(t, ModeSequential, st.Mode)
	assert.Equal(t, 9, st.Positions)
	assert.Equal(t, 2, st.Filters)
	assert.Equal(t, int64(27+1), st.Ticks)
	assert.Equal(t, int64(2*9*(27+1)), st.MACOps)
	assert.Equal(t, 1, seq.Latency())

	cfg := DefaultConvConfig()
	cfg.Mode = ModeParallel
	par, err := NewConv2D(cfg, filters, 1, 0)
	require.NoError(t, err)
	_, err = par.Forward(context.Background(), in)
	require.NoError(t, err)
	st = par.Stats()
	// 28 addends need 5 levels; one more tick for the MAC bank.
	assert.Equal(t, 6, par.Latency())
	assert.Equal(t, int64(9+6-1), st.Ticks)
	assert.Equal(t, int64(2*27*(9+6-1)), st.MACOps)
	assert.Equal(t, "Conv2D_3_2_3_parallel", par.Tag())
}

func TestNewConvJobValidation(t *testing.T) {
	k3, _ := kernels.Preset("identity", 3, 0)
	k1, _ := kernels.Preset("identity", 1, 0)
	k5, _ := kernels.Preset("gaussian_55", 3, 0)
	in := tensor.New(5, 5, 3)

	_, err := NewConvJob(in, []kernels.KernelSpec{k1}, 1, 0)
	assert.ErrorIs(t, err, fixed.ErrShapeMismatch, "channel mismatch")

	_, err = NewConvJob(in, []kernels.KernelSpec{k3, k5}, 1, 0)
	assert.ErrorIs(t, err, fixed.ErrShapeMismatch, "mixed kernel sizes")

	_, err = NewConvJob(in, nil, 1, 0)
	assert.ErrorIs(t, err, fixed.ErrShapeMismatch, "no filters")

	_, err = NewConvJob(in, []kernels.KernelSpec{k3}, 0, 0)
	assert.ErrorIs(t, err, fixed.ErrInvalidConfig, "zero stride")

	_, err = NewConvJob(in, []kernels.KernelSpec{k3}, 1, -1)
	assert.ErrorIs(t, err, fixed.ErrInvalidConfig, "negative padding")

	_, err = NewConvJob(tensor.New(2, 2, 3), []kernels.KernelSpec{k3}, 1, 0)
	assert.ErrorIs(t, err, fixed.ErrShapeMismatch, "input smaller than kernel")

	job, err := NewConvJob(in, []kernels.KernelSpec{k3}, 2, 1)
	require.NoError(t, err)
	h, w, c := job.OutputShape()
	assert.Equal(t, []int{3, 3, 1}, []int{h, w, c})
	assert.Equal(t, 2, job.Stride())
	assert.Equal(t, 1, job.Padding())
	assert.Same(t, in, job.Input())

	job, err = NewConvJob(tensor.New(6, 8, 3), []kernels.KernelSpec{k3}, 2, 0)
	require.NoError(t, err)
	h, w, _ = job.OutputShape()
	assert.Equal(t, 2, h)
	assert.Equal(t, 3, w)
}

func TestApplyRejectsUnbuiltJob(t *testing.T) {
	k, _ := kernels.Preset("identity", 1, 0)
	conv, err := NewConv2D(DefaultConvConfig(), []kernels.KernelSpec{k}, 1, 0)
	require.NoError(t, err)

	_, err = conv.Apply(context.Background(), &ConvJob{})
	assert.ErrorIs(t, err, fixed.ErrShapeMismatch)
	_, err = conv.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, fixed.ErrShapeMismatch)

	// The job keeps its own filter slice.
	filters := []kernels.KernelSpec{k}
	job, err := NewConvJob(tensor.New(3, 3, 1), filters, 1, 0)
	require.NoError(t, err)
	k5, _ := kernels.Preset("gaussian_55", 1, 0)
	filters[0] = k5
	got := job.Filters()
	assert.Equal(t, 3, got[0].Size())
	got[0] = k5
	out, err := conv.Apply(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, []int{out.H, out.W, out.C})
}

func TestNewConv2DValidation(t *testing.T) {
	k, _ := kernels.Preset("identity", 1, 0)
	filters := []kernels.KernelSpec{k}

	cfg := DefaultConvConfig()
	cfg.WeightWidth = 1
	_, err := NewConv2D(cfg, filters, 1, 0)
	assert.ErrorIs(t, err, fixed.ErrInvalidConfig)

	cfg = DefaultConvConfig()
	cfg.Mode = ConvMode(7)
	_, err = NewConv2D(cfg, filters, 1, 0)
	assert.ErrorIs(t, err, fixed.ErrInvalidConfig)

	cfg = DefaultConvConfig()
	cfg.Activation = &hw.SiLUConfig{Width: 16, ScalePower: 15}
	_, err = NewConv2D(cfg, filters, 1, 0)
	assert.ErrorIs(t, err, fixed.ErrInvalidConfig)

	conv, err := NewConv2D(DefaultConvConfig(), filters, 1, 0)
	require.NoError(t, err)
	_, err = conv.Forward(context.Background(), tensor.New(4, 4, 2))
	assert.ErrorIs(t, err, fixed.ErrShapeMismatch)
}

func TestParseConvMode(t *testing.T) {
	m, err := ParseConvMode("Parallel")
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, m)
	m, err = ParseConvMode("seq")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m)
	_, err = ParseConvMode("systolic")
	assert.ErrorIs(t, err, fixed.ErrInvalidConfig)
}

func TestConv2D_Cancelled(t *testing.T) {
	k, _ := kernels.Preset("identity", 1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, mode := range modes {
		cfg := DefaultConvConfig()
		cfg.Mode = mode
		conv, err := NewConv2D(cfg, []kernels.KernelSpec{k}, 1, 0)
		require.NoError(t, err)
		_, err = conv.Forward(ctx, tensor.New(5, 5, 1))
		assert.ErrorIs(t, err, context.Canceled, mode.String())
	}
}

func TestSequentialPipeline(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	in := randomVolume(rng, 8, 8, 1, 500)
	k, _ := kernels.Preset("laplacian", 1, 3)
	conv, err := NewConv2D(DefaultConvConfig(), []kernels.KernelSpec{k}, 1, 1)
	require.NoError(t, err)
	act, err := NewActivation("silu_p8")
	require.NoError(t, err)
	pool, err := NewMaxPool2D(2, 2, 0)
	require.NoError(t, err)

	model := &nn.Sequential{Layers: []nn.Module{conv, act, pool}}
	out, err := model.Forward(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 4, out.H)
	assert.Equal(t, 4, out.W)
	assert.Equal(t, 1+1+1, model.Latency())

	ref := naiveConv(in, []kernels.KernelSpec{k}, 1, 1, 32)
	for oy := 0; oy < 4; oy++ {
		for ox := 0; ox < 4; ox++ {
			var best int64 = -1 << 62
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					v := fixed.Wrap(hw.HardSwish(fixed.Wrap(ref.At(2*oy+dy, 2*ox+dx, 0), 16), 8), 16)
					best = max(best, v)
				}
			}
			assert.Equal(t, best, out.At(oy, ox, 0))
		}
	}
}
