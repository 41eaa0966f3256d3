package fixed

import "errors"

// Error taxonomy shared by every package. Callers attach context with
// fmt.Errorf("%w: ...") and match with errors.Is.
var (
	// ErrValueOutOfRange indicates a value does not fit its declared bit width.
	// Arithmetic never returns it; only strict fixture validation does.
	ErrValueOutOfRange = errors.New("fxcnn: value out of range")

	// ErrShapeMismatch indicates kernel or volume dimensions disagree.
	ErrShapeMismatch = errors.New("fxcnn: shape mismatch")

	// ErrDataLengthMismatch indicates bulk interchange data is not a whole
	// number of frames.
	ErrDataLengthMismatch = errors.New("fxcnn: data length mismatch")

	// ErrToleranceExceeded indicates an approximation differs from its ideal
	// reference by more than the configured bound.
	ErrToleranceExceeded = errors.New("fxcnn: tolerance exceeded")

	// ErrInvalidConfig indicates a construction parameter is unusable.
	ErrInvalidConfig = errors.New("fxcnn: invalid configuration")

	// ErrMalformedBits indicates an interchange line is not a valid bit string.
	ErrMalformedBits = errors.New("fxcnn: malformed bit string")
)
