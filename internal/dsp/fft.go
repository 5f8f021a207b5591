package dsp

import "math"

// fft is an iterative radix-2 transform over the fixed analysis window.
// Twiddle factors and the bit-reversal permutation are precomputed at
// construction so the per-window path allocates nothing.
type fft struct {
	n   int
	rev []int
	cos []float64
	sin []float64
}

// newFFT builds the transform tables for a power-of-two size n.
func newFFT(n int) *fft {
	f := &fft{
		n:   n,
		rev: make([]int, n),
		cos: make([]float64, n/2),
		sin: make([]float64, n/2),
	}
	for i := 0; i < n/2; i++ {
		f.cos[i] = math.Cos(2 * math.Pi * float64(i) / float64(n))
		f.sin[i] = math.Sin(2 * math.Pi * float64(i) / float64(n))
	}
	for i := 0; i < n; i++ {
		f.rev[i] = bitReverse(i, n)
	}
	return f
}

// forward computes the in-place DFT of re/im, both of length n.
func (f *fft) forward(re, im []float64) {
	for i, j := range f.rev {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}
	for length := 2; length <= f.n; length <<= 1 {
		half := length / 2
		step := f.n / length
		for start := 0; start < f.n; start += length {
			for k := 0; k < half; k++ {
				wr := f.cos[k*step]
				wi := -f.sin[k*step]
				a := start + k
				b := a + half
				tr := re[b]*wr - im[b]*wi
				ti := re[b]*wi + im[b]*wr
				re[b] = re[a] - tr
				im[b] = im[a] - ti
				re[a] += tr
				im[a] += ti
			}
		}
	}
}

// inverse computes the in-place inverse DFT, scaled by 1/n.
func (f *fft) inverse(re, im []float64) {
	for i := range im {
		im[i] = -im[i]
	}
	f.forward(re, im)
	inv := 1 / float64(f.n)
	for i := range re {
		re[i] *= inv
		im[i] *= -inv
	}
}

func bitReverse(x, n int) int {
	r := 0
	for n >>= 1; n > 0; n >>= 1 {
		r = r<<1 | x&1
		x >>= 1
	}
	return r
}
