package audio

// Resample converts samples from one rate to another with linear
// interpolation. The output holds len(in)*to/from samples.
func Resample(in []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	outLen := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float32, outLen)
	step := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + frac*(in[j+1]-in[j])
	}
	return out
}
