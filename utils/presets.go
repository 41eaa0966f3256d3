package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"fxcnn/kernels"
)

// PresetData is the serializable form of one kernel preset.
type PresetData struct {
	Name    string    `json:"name"`
	Matrix  [][]int64 `json:"matrix"`
	Divisor int64     `json:"divisor,omitempty"`
	// Seed marks a random preset; Matrix then holds channel 0 and sets the size.
	Seed int64 `json:"seed,omitempty"`
}

// PresetFile holds a set of presets.
type PresetFile struct {
	Version string       `json:"version"`
	Presets []PresetData `json:"presets"`
}

// SavePresets saves presets to a JSON file
func SavePresets(filepath string, presets *PresetFile) error {
	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadPresets loads presets from a JSON file
func LoadPresets(filepath string) (*PresetFile, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}
	var presets PresetFile
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presets: %w", err)
	}
	return &presets, nil
}

// RegisterPresets adds every preset in f to r. It stops at the first
// malformed matrix.
func RegisterPresets(r *kernels.Registry, f *PresetFile) error {
	for _, p := range f.Presets {
		var err error
		if p.Seed != 0 {
			err = r.RegisterRandom(p.Name, len(p.Matrix), p.Seed, p.Divisor)
		} else {
			err = r.Register(p.Name, p.Matrix, p.Divisor)
		}
		if err != nil {
			return fmt.Errorf("failed to register preset %q: %w", p.Name, err)
		}
	}
	return nil
}

// ExportPresets converts the named presets of r, or all of them when names
// is empty, to serializable form.
func ExportPresets(r *kernels.Registry, names ...string) (*PresetFile, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	f := &PresetFile{Version: "1.0"}
	for _, n := range names {
		b, ok := r.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", n)
		}
		f.Presets = append(f.Presets, PresetData{Name: n, Matrix: b.Matrix, Divisor: b.Divisor, Seed: b.Seed})
	}
	return f, nil
}
