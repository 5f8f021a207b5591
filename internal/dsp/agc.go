package dsp

import (
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// Per-window smoothing coefficients. Attack (gain rising) is deliberately
// slower than release (gain falling): a sudden loud input must duck fast,
// while a quiet passage ramps up gently to avoid pumping the noise floor.
const (
	agcAttack  = 0.02
	agcRelease = 0.25

	levelAttack  = 0.1
	levelRelease = 0.01

	agcSignalFloor = 0.001
)

// AGC normalizes speech toward a target RMS level. It is the only stage
// that carries gain state between windows; one instance serves exactly one
// stream.
type AGC struct {
	target  float64
	minGain float64
	maxGain float64

	gain float64
	peak float64
	rms  float64
}

// NewAGC returns an AGC at unity gain.
func NewAGC(target, minGain, maxGain float64) *AGC {
	if minGain <= 0 {
		minGain = 0.1
	}
	if maxGain < minGain {
		maxGain = minGain
	}
	return &AGC{target: target, minGain: minGain, maxGain: maxGain, gain: 1}
}

// Gain returns the current gain multiplier.
func (a *AGC) Gain() float64 {
	return a.gain
}

// SetTarget replaces the target RMS level.
func (a *AGC) SetTarget(target float64) {
	a.target = target
}

// Apply measures the window, eases the gain toward the level that would hit
// the target, and scales the samples in place with clipping protection.
func (a *AGC) Apply(samples []int16) {
	if len(samples) == 0 {
		return
	}

	// Smooth the level trackers: fast attack, slow release, so one loud
	// window registers immediately but a brief dip does not.
	rms := audio.RMS(samples)
	peak := audio.Peak(samples)
	a.rms = smooth(a.rms, rms)
	a.peak = smooth(a.peak, peak)

	desired := a.maxGain
	if a.rms > agcSignalFloor {
		desired = a.target / a.rms
	}
	// Soft limiter: never ask for more gain than the tracked peak can
	// absorb without clipping. The configured bounds still win.
	if a.peak > 0 {
		if lim := 1 / a.peak; desired > lim {
			desired = lim
		}
	}
	if desired < a.minGain {
		desired = a.minGain
	}
	if desired > a.maxGain {
		desired = a.maxGain
	}

	if desired > a.gain {
		a.gain += (desired - a.gain) * agcAttack
	} else {
		a.gain += (desired - a.gain) * agcRelease
	}

	for i, s := range samples {
		samples[i] = audio.Clamp16(int32(float64(s) * a.gain))
	}
}

func smooth(have, measured float64) float64 {
	if measured > have {
		return have + (measured-have)*levelAttack
	}
	return have + (measured-have)*levelRelease
}
