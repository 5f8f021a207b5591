package audio

import "math"

// SamplesInto decodes little-endian 16-bit PCM from pcm into dst and returns
// the number of samples written. Trailing odd bytes are ignored. No
// allocation; dst bounds the work.
func SamplesInto(dst []int16, pcm []byte) int {
	n := len(pcm) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return n
}

// PCMInto encodes samples as little-endian 16-bit PCM into dst and returns
// the number of bytes written. dst bounds the work to whole samples.
func PCMInto(dst []byte, samples []int16) int {
	n := len(samples)
	if n > len(dst)/2 {
		n = len(dst) / 2
	}
	for i := 0; i < n; i++ {
		dst[i*2] = byte(samples[i])
		dst[i*2+1] = byte(samples[i] >> 8)
	}
	return n * 2
}

// Samples decodes little-endian 16-bit PCM into a freshly allocated slice.
// Convenience for tests and cold paths; hot paths use [SamplesInto].
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	SamplesInto(out, pcm)
	return out
}

// RMS returns the root-mean-square amplitude of samples normalized to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample amplitude normalized to [0, 1].
func Peak(samples []int16) float64 {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / 32768
}

// Clamp16 saturates v to the int16 range.
func Clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
