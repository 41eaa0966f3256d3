package kernels

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"fxcnn/fixed"
)

// Base is a registered preset: one square matrix that is replicated across
// channels when a KernelSpec is built from it. A preset with a nonzero Seed
// is random: channel c is RandomTernary(size, Seed+c) and Matrix holds
// channel 0.
type Base struct {
	Matrix  [][]int64
	Divisor int64
	Seed    int64
}

// channel returns the weight matrix for channel c.
func (b Base) channel(c int) [][]int64 {
	if b.Seed == 0 {
		return b.Matrix
	}
	return RandomTernary(len(b.Matrix), b.Seed+int64(c))
}

// Registry maps preset names to their base matrices. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]Base
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{presets: make(map[string]Base)}
}

// Register adds or replaces a preset. The matrix must be square with an odd
// side; divisor 0 is stored as 1.
func (r *Registry) Register(name string, matrix [][]int64, divisor int64) error {
	if name == "" {
		return fmt.Errorf("%w: empty preset name", fixed.ErrInvalidConfig)
	}
	if divisor == 0 {
		divisor = 1
	}
	if _, err := New(name, [][][]int64{matrix}, 0); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[name] = Base{Matrix: copyWeights([][][]int64{matrix})[0], Divisor: divisor}
	return nil
}

// RegisterRandom adds or replaces a k×k ternary preset drawn independently
// per channel from seed, seed+1, ... Seed 0 is reserved for fixed presets.
func (r *Registry) RegisterRandom(name string, k int, seed, divisor int64) error {
	if name == "" {
		return fmt.Errorf("%w: empty preset name", fixed.ErrInvalidConfig)
	}
	if seed == 0 {
		return fmt.Errorf("%w: random preset %q needs a nonzero seed", fixed.ErrInvalidConfig, name)
	}
	if k < 1 || k%2 == 0 {
		return fmt.Errorf("%w: random preset %q size %d must be odd and positive", fixed.ErrShapeMismatch, name, k)
	}
	if divisor == 0 {
		divisor = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[name] = Base{Matrix: RandomTernary(k, seed), Divisor: divisor, Seed: seed}
	return nil
}

// Lookup returns a copy of the named preset.
func (r *Registry) Lookup(name string) (Base, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.presets[name]
	if !ok {
		return Base{}, false
	}
	return Base{Matrix: copyWeights([][][]int64{b.Matrix})[0], Divisor: b.Divisor, Seed: b.Seed}, true
}

// Preset builds a KernelSpec by replicating the named matrix over channels,
// or by drawing one matrix per channel for a random preset.
func (r *Registry) Preset(name string, channels int, bias int64) (KernelSpec, error) {
	if channels < 1 {
		return KernelSpec{}, fmt.Errorf("%w: preset %q needs at least one channel, got %d", fixed.ErrShapeMismatch, name, channels)
	}
	b, ok := r.Lookup(name)
	if !ok {
		return KernelSpec{}, fmt.Errorf("%w: unknown preset %q", fixed.ErrInvalidConfig, name)
	}
	w := make([][][]int64, channels)
	for c := range w {
		w[c] = b.channel(c)
	}
	k, err := New(name, w, bias)
	if err != nil {
		return KernelSpec{}, err
	}
	k.Divisor = b.Divisor
	return k, nil
}

// Names returns the registered preset names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.presets))
	for n := range r.presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RandomTernary returns a k×k matrix of weights drawn uniformly from
// {-1, 0, 1}. The same seed always yields the same matrix.
func RandomTernary(k int, seed int64) [][]int64 {
	rng := rand.New(rand.NewSource(seed))
	m := make([][]int64, k)
	for i := range m {
		m[i] = make([]int64, k)
		for j := range m[i] {
			m[i][j] = rng.Int63n(3) - 1
		}
	}
	return m
}

var gauss55 = [][]int64{
	{1, 4, 6, 4, 1},
	{4, 16, 24, 16, 4},
	{6, 24, 36, 24, 6},
	{4, 16, 24, 16, 4},
	{1, 4, 6, 4, 1},
}

// builtin lists the stock presets. Fractional filters keep integer
// numerators and record the denominator as the divisor.
var builtin = map[string]Base{
	"identity": {Matrix: [][]int64{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}}},
	"ridge":    {Matrix: [][]int64{{0, -1, 0}, {-1, 4, -1}, {0, -1, 0}}},
	"edge":     {Matrix: [][]int64{{-1, -1, -1}, {-1, 8, -1}, {-1, -1, -1}}},
	"sharp":    {Matrix: [][]int64{{0, -1, 0}, {-1, 5, -1}, {0, -1, 0}}},
	"blur":     {Matrix: [][]int64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}, Divisor: 9},
	"gaussian_33": {
		Matrix:  [][]int64{{1, 2, 1}, {2, 4, 2}, {1, 2, 1}},
		Divisor: 16,
	},
	"gaussian_55": {Matrix: gauss55, Divisor: 256},
	"unsharp_55": {
		Matrix: [][]int64{
			{1, 4, 6, 4, 1},
			{4, 16, 24, 16, 4},
			{6, 24, -476, 24, 6},
			{4, 16, 24, 16, 4},
			{1, 4, 6, 4, 1},
		},
		Divisor: 256,
	},
	"emboss":         {Matrix: [][]int64{{-2, -1, 0}, {-1, 1, 1}, {0, 1, 2}}},
	"sobel_x":        {Matrix: [][]int64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}},
	"sobel_y":        {Matrix: [][]int64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}},
	"prewitt_x":      {Matrix: [][]int64{{-1, 0, 1}, {-1, 0, 1}, {-1, 0, 1}}},
	"prewitt_y":      {Matrix: [][]int64{{-1, -1, -1}, {0, 0, 0}, {1, 1, 1}}},
	"laplacian":      {Matrix: [][]int64{{0, 1, 0}, {1, -4, 1}, {0, 1, 0}}},
	"laplacian_diag": {Matrix: [][]int64{{1, 1, 1}, {1, -8, 1}, {1, 1, 1}}},
	"laplacian_gaussian": {
		Matrix: [][]int64{
			{0, 0, -1, 0, 0},
			{0, -1, -2, -1, 0},
			{-1, -2, 16, -2, -1},
			{0, -1, -2, -1, 0},
			{0, 0, -1, 0, 0},
		},
	},
	"randoml_33": {Matrix: make([][]int64, 3), Seed: 33},
	"randoml_55": {Matrix: make([][]int64, 5), Seed: 55},
	"test":       {Matrix: [][]int64{{-30, -21, 7}, {-19, 10, -1}, {-4, -2, 8}}},
}

// DefaultRegistry holds the stock presets.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	for name, b := range builtin {
		var err error
		if b.Seed != 0 {
			err = r.RegisterRandom(name, len(b.Matrix), b.Seed, b.Divisor)
		} else {
			err = r.Register(name, b.Matrix, b.Divisor)
		}
		if err != nil {
			panic(fmt.Sprintf("kernels: bad builtin preset %q: %v", name, err))
		}
	}
	return r
}

// Preset builds a KernelSpec from DefaultRegistry.
func Preset(name string, channels int, bias int64) (KernelSpec, error) {
	return DefaultRegistry.Preset(name, channels, bias)
}
