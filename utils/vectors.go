package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"fxcnn/fixed"
	"fxcnn/tensor"
)

// ReadVectors decodes newline-delimited two's-complement bit strings of the
// given width. Surrounding whitespace is ignored; any other deviation,
// including a blank line, is an error naming the line.
func ReadVectors(r io.Reader, width int) ([]int64, error) {
	var out []int64
	err := scanLines(r, func(n int, line string) error {
		v, err := fixed.DecodeSigned(line, width)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// ReadUnsignedVectors is ReadVectors for the unsigned domain.
func ReadUnsignedVectors(r io.Reader, width int) ([]uint64, error) {
	var out []uint64
	err := scanLines(r, func(n int, line string) error {
		v, err := fixed.DecodeUnsigned(line, width)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func scanLines(r io.Reader, fn func(n int, line string) error) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		if err := fn(n, strings.TrimSpace(sc.Text())); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read vectors: %w", err)
	}
	return nil
}

// WriteVectors encodes each value as one width-bit line.
func WriteVectors(w io.Writer, values []int64, width int) error {
	bw := bufio.NewWriter(w)
	for i, v := range values {
		s, err := fixed.EncodeSigned(v, width)
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		bw.WriteString(s)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadVectorFile loads an interchange file.
func ReadVectorFile(path string, width int) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector file: %w", err)
	}
	defer f.Close()
	return ReadVectors(f, width)
}

// WriteVectorFile writes an interchange file.
func WriteVectorFile(path string, values []int64, width int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create vector file: %w", err)
	}
	if err := WriteVectors(f, values, width); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FramesToVolume splits data into h×w row-major frames, one per channel.
func FramesToVolume(data []int64, h, w int) (*tensor.Volume, error) {
	frame := h * w
	if frame <= 0 {
		return nil, fmt.Errorf("%w: frame %dx%d", fixed.ErrInvalidConfig, h, w)
	}
	if len(data) == 0 || len(data)%frame != 0 {
		return nil, fmt.Errorf("%w: data length %d is not a multiple of frame size %d", fixed.ErrDataLengthMismatch, len(data), frame)
	}
	c := len(data) / frame
	v := tensor.New(h, w, c)
	for ch := 0; ch < c; ch++ {
		for i, d := range data[ch*frame : (ch+1)*frame] {
			v.Set(d, i/w, i%w, ch)
		}
	}
	return v, nil
}

// VolumeToFrames is the inverse of FramesToVolume.
func VolumeToFrames(v *tensor.Volume) []int64 {
	out := make([]int64, 0, v.Len())
	for c := 0; c < v.C; c++ {
		for y := 0; y < v.H; y++ {
			for x := 0; x < v.W; x++ {
				out = append(out, v.At(y, x, c))
			}
		}
	}
	return out
}
