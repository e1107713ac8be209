package waveform

import "math"

// Mode selects how a window of samples is summarized.
type Mode string

const (
	// ModePeak keeps the largest magnitude in each window.
	ModePeak Mode = "peak"
	// ModeRMS keeps the root mean square of each window.
	ModeRMS Mode = "rms"
)

// Reduce summarizes interleaved samples into exactly n values in [0,1],
// normalized against the global peak, however quiet. Only digital silence
// yields all zeros. Channels are folded by taking the
// loudest channel of each frame. Input shorter than n frames repeats frames
// so the output length never depends on the data.
func Reduce(samples []int, channels int, fullScale float64, n int, mode Mode) []float64 {
	out := make([]float64, max(n, 0))
	if n <= 0 || channels <= 0 || fullScale <= 0 {
		return out
	}
	frames := len(samples) / channels
	if frames == 0 {
		return out
	}

	magnitude := func(frame int) float64 {
		var m float64
		for _, s := range samples[frame*channels : (frame+1)*channels] {
			m = max(m, math.Abs(float64(s)))
		}
		return m / fullScale
	}

	var peak float64
	for i := range frames {
		peak = max(peak, magnitude(i))
	}
	if peak == 0 {
		return out
	}

	for k := range n {
		start := k * frames / n
		end := max((k+1)*frames/n, start+1)

		var v float64
		switch mode {
		case ModeRMS:
			var sum float64
			for i := start; i < end; i++ {
				m := magnitude(i)
				sum += m * m
			}
			v = math.Sqrt(sum / float64(end-start))
		default:
			for i := start; i < end; i++ {
				v = max(v, magnitude(i))
			}
		}
		out[k] = min(v/peak, 1)
	}
	return out
}
