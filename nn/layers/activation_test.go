package layers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxcnn/hw"
	"fxcnn/tensor"
)

func TestActivationForward(t *testing.T) {
	a, err := NewActivation("silu_p10")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Latency())
	assert.Equal(t, "Activation_silu_p10", a.Tag())

	in, err := tensor.NewWithData(1, 5, 1, []int64{-4000, -1024, 0, 1024, 4000})
	require.NoError(t, err)
	out, err := a.Forward(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, -341, 0, 682, 4000}, out.Data)
	assert.Equal(t, int64(5), a.Ticks())
}

func TestActivationUnknown(t *testing.T) {
	_, err := NewActivation("gelu")
	assert.Error(t, err)
}

func TestActivationFromConfig(t *testing.T) {
	a, err := NewActivationFromConfig(hw.SiLUConfig{Width: 12, ScalePower: 4, Tolerance: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 4, a.Config().ScalePower)
	assert.Equal(t, "Activation_silu_p4_w12", a.Tag())

	_, err = NewActivationFromConfig(hw.SiLUConfig{Width: 12, ScalePower: 10})
	assert.Error(t, err)
}

func TestSupportedActivationsValid(t *testing.T) {
	for name, cfg := range SupportedActivations {
		_, err := hw.NewSiLU(cfg)
		assert.NoError(t, err, name)
	}
}
