package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxcnn/store"
	"fxcnn/utils"
)

func init() {
	utils.Verbose = false
}

func TestRunSqrt(t *testing.T) {
	for _, pipelined := range []bool{false, true} {
		cfg := utils.DefaultConfig()
		cfg.Mode = "sqrt"
		cfg.SqrtWidth = 10
		cfg.Pipelined = pipelined
		ok, err := runSqrt(cfg)
		require.NoError(t, err)
		assert.True(t, ok, "pipelined=%v", pipelined)
	}
}

func TestRunConvThenCheck(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	frames := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, -1, -2, -3, -4, -5, -6, -7, -8, -9}
	require.NoError(t, utils.WriteVectorFile(in, frames, 32))

	db, err := store.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	cfg := utils.DefaultConfig()
	cfg.InputPath, cfg.OutputPath = in, out
	cfg.Height, cfg.Width = 3, 3
	cfg.Filters = []string{"identity"}
	for _, mode := range []string{"sequential", "parallel"} {
		cfg.ConvMode = mode
		require.NoError(t, utils.ValidateConfig(cfg))
		ok, err := runConv(cfg, db)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := utils.ReadVectorFile(out, 32)
		require.NoError(t, err)
		// identity over two channels sums the frames
		assert.Equal(t, make([]int64, 9), got, mode)
	}
	names, err := db.ListVectors()
	require.NoError(t, err)
	assert.Len(t, names, 2)

	check := utils.DefaultConfig()
	check.Mode = "check"
	check.InputPath, check.OutputPath = out, out
	check.Height, check.Width = 3, 3
	ok, err := runCheck(check)
	require.NoError(t, err)
	assert.True(t, ok)

	check.OutputPath = in
	_, err = runCheck(check)
	assert.Error(t, err, "length mismatch")
}

func TestRunCheckMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, utils.WriteVectorFile(a, []int64{1, 2, 3}, 8))
	require.NoError(t, utils.WriteVectorFile(b, []int64{1, 2, 4}, 8))

	cfg := utils.DefaultConfig()
	cfg.Mode = "check"
	cfg.InterchangeWidth = 8
	cfg.InputPath, cfg.OutputPath = a, b
	ok, err := runCheck(cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunSiLU(t *testing.T) {
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	cfg := utils.DefaultConfig()
	cfg.Mode = "silu"
	ok, err := runSiLU(cfg, db)
	require.NoError(t, err)
	assert.True(t, ok)
	rep, err := db.GetReport("silu_w16_p10")
	require.NoError(t, err)
	assert.Equal(t, 14336, rep.Samples)

	cfg.Tolerance = 0.001
	ok, err = runSiLU(cfg, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunClosesStoreOnFailedCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	cfg := utils.DefaultConfig()
	cfg.Mode = "silu"
	cfg.Tolerance = 0.001
	cfg.StoreDir = dir
	assert.Equal(t, 2, run(cfg))

	// A clean close releases the directory lock and keeps the report.
	db, err := store.Open(dir)
	require.NoError(t, err)
	defer db.Close()
	rep, err := db.GetReport("silu_w16_p10")
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Violations)

	cfg.PresetsPath = filepath.Join(t.TempDir(), "missing.json")
	cfg.StoreDir = ""
	assert.Equal(t, 1, run(cfg))
}
