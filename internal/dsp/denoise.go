package dsp

import (
	"math"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// voiceBandHz is the low-pass cutoff applied after subtraction. Energy above
// it is hiss or aliasing as far as the speech endpoint is concerned.
const voiceBandHz = 4000

// NoiseProfile is the calibrated spectral floor used by [Denoiser].
type NoiseProfile struct {
	// Bins holds the per-bin magnitude floor, length window/2+1.
	Bins []float64

	// Estimate is the mean magnitude across bins, kept as a broadband
	// readout for diagnostics.
	Estimate float64

	// Samples counts the calibration windows accumulated so far.
	Samples int

	// Ready reports whether calibration completed and subtraction is active.
	Ready bool
}

// Denoiser applies spectral-subtraction noise reduction with a voice-band
// low-pass. Until calibration has seen enough ambience windows the stage is
// an exact pass-through, so the device is never muted during startup.
//
// Calibration happens implicitly: every window processed before the profile
// is ready contributes to the floor estimate. Reset restarts calibration on
// explicit request or engine re-init.
type Denoiser struct {
	prof   NoiseProfile
	acc    []float64
	target int
	over   float64
	cut    int

	fft    *fft
	re, im []float64
}

// NewDenoiser returns a denoiser for power-of-two window sizes.
// over is the over-subtraction factor; calibrationWindows sets how much
// ambience is averaged into the floor before subtraction engages.
func NewDenoiser(window, sampleRate int, over float64, calibrationWindows int) *Denoiser {
	if calibrationWindows < 1 {
		calibrationWindows = 1
	}
	bins := window/2 + 1
	cut := bins
	if sampleRate > 0 {
		if c := voiceBandHz * window / sampleRate; c < cut {
			cut = c
		}
	}
	return &Denoiser{
		prof:   NoiseProfile{Bins: make([]float64, bins)},
		acc:    make([]float64, bins),
		target: calibrationWindows,
		over:   over,
		cut:    cut,
		fft:    newFFT(window),
		re:     make([]float64, window),
		im:     make([]float64, window),
	}
}

// Ready reports whether the noise floor is calibrated.
func (d *Denoiser) Ready() bool {
	return d.prof.Ready
}

// Progress returns accumulated and required calibration windows.
func (d *Denoiser) Progress() (done, total int) {
	return d.prof.Samples, d.target
}

// Profile returns a copy of the current noise profile.
func (d *Denoiser) Profile() NoiseProfile {
	p := d.prof
	p.Bins = make([]float64, len(d.prof.Bins))
	copy(p.Bins, d.prof.Bins)
	return p
}

// SetOverSubtraction replaces the over-subtraction factor.
func (d *Denoiser) SetOverSubtraction(over float64) {
	d.over = over
}

// Reset discards the profile and restarts calibration.
func (d *Denoiser) Reset() {
	for i := range d.prof.Bins {
		d.prof.Bins[i] = 0
	}
	for i := range d.acc {
		d.acc[i] = 0
	}
	d.prof.Estimate = 0
	d.prof.Samples = 0
	d.prof.Ready = false
}

// Apply runs the stage over one window in place. len(samples) must equal the
// window size the denoiser was built with; during calibration the samples
// are left untouched.
func (d *Denoiser) Apply(samples []int16) {
	if !d.prof.Ready {
		d.calibrate(samples)
		return
	}

	d.load(samples)
	d.fft.forward(d.re, d.im)

	n := d.fft.n
	for k := 0; k <= n/2; k++ {
		mag := math.Hypot(d.re[k], d.im[k])
		want := mag - d.over*d.prof.Bins[k]
		if want < 0 || k >= d.cut {
			want = 0
		}
		scale := 0.0
		if mag > 0 {
			scale = want / mag
		}
		d.re[k] *= scale
		d.im[k] *= scale
		if k > 0 && k < n/2 {
			m := n - k
			d.re[m] *= scale
			d.im[m] *= scale
		}
	}

	d.fft.inverse(d.re, d.im)
	for i := range samples {
		samples[i] = audio.Clamp16(int32(math.Round(d.re[i])))
	}
}

// calibrate folds one ambience window into the floor accumulator. The
// samples themselves are not modified.
func (d *Denoiser) calibrate(samples []int16) {
	d.load(samples)
	d.fft.forward(d.re, d.im)
	for k := 0; k <= d.fft.n/2; k++ {
		d.acc[k] += math.Hypot(d.re[k], d.im[k])
	}
	d.prof.Samples++
	if d.prof.Samples < d.target {
		return
	}

	var sum float64
	for k := range d.prof.Bins {
		d.prof.Bins[k] = d.acc[k] / float64(d.prof.Samples)
		sum += d.prof.Bins[k]
	}
	d.prof.Estimate = sum / float64(len(d.prof.Bins))
	d.prof.Ready = true
}

func (d *Denoiser) load(samples []int16) {
	for i, s := range samples {
		d.re[i] = float64(s)
		d.im[i] = 0
	}
}
