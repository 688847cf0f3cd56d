package audio

import (
	"errors"
	"math"
)

// stereoScale compensates the 1/2 averaging of two uncorrelated channels.
var stereoScale = float32(math.Sqrt2)

// Downmix reduces decoded channels to one. A single channel is returned as a
// copy; two or more channels mix the first two as sqrt(2) * (L + R) / 2.
// All channels must have the same length.
func Downmix(channels [][]float32) ([]float32, error) {
	switch len(channels) {
	case 0:
		return nil, errors.New("downmix: no channels")
	case 1:
		out := make([]float32, len(channels[0]))
		copy(out, channels[0])
		return out, nil
	}
	left, right := channels[0], channels[1]
	if len(left) != len(right) {
		return nil, errors.New("downmix: channel length mismatch")
	}
	out := make([]float32, len(left))
	for i := range left {
		out[i] = stereoScale * (left[i] + right[i]) / 2
	}
	return out, nil
}
