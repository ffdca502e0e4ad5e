package audio

import "math"

const filterTaps = 31

// To16k resamples mono samples from rate to 16kHz, the rate the whisper
// fallback expects.
func To16k(samples []float32, rate int) []float32 {
	return Resample(samples, rate, 16000)
}

// Resample converts samples from src to dst Hz by linear interpolation. A
// Blackman-windowed sinc low-pass runs before decimation and after
// interpolation so neither direction aliases.
func Resample(samples []float32, src, dst int) []float32 {
	if src == dst || src <= 0 || dst <= 0 || len(samples) == 0 {
		return samples
	}

	kernel := lowPassKernel(float64(min(src, dst))/2, float64(max(src, dst)))
	if src > dst {
		samples = convolve(samples, kernel)
	}

	step := float64(src) / float64(dst)
	out := make([]float32, int(float64(len(samples))/step))
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}

	if dst > src {
		out = convolve(out, kernel)
	}
	return out
}

func lowPassKernel(cutoff, rate float64) []float32 {
	fc := cutoff / rate
	mid := filterTaps / 2
	span := float64(filterTaps - 1)

	k := make([]float64, filterTaps)
	var sum float64
	for i := range k {
		n := float64(i - mid)
		v := 2 * fc
		if n != 0 {
			v = math.Sin(2*math.Pi*fc*n) / (math.Pi * n)
		}
		window := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/span) + 0.08*math.Cos(4*math.Pi*float64(i)/span)
		k[i] = v * window
		sum += k[i]
	}

	out := make([]float32, filterTaps)
	for i, v := range k {
		out[i] = float32(v / sum)
	}
	return out
}

func convolve(samples, kernel []float32) []float32 {
	mid := len(kernel) / 2
	out := make([]float32, len(samples))
	for i := range samples {
		var acc float32
		for j, w := range kernel {
			idx := i + j - mid
			if idx < 0 || idx >= len(samples) {
				continue
			}
			acc += samples[idx] * w
		}
		out[i] = acc
	}
	return out
}
