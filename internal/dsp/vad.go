package dsp

import (
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// Speech zero-crossing band. Voiced speech crosses zero a handful of times
// per window; broadband hiss crosses almost every sample and is rejected
// even when loud.
const (
	zcrSpeechMin = 0.02
	zcrSpeechMax = 0.50
)

// VADState classifies an analysis window.
type VADState int

const (
	// VADUnknown is the initial state before the first debounce resolves.
	VADUnknown VADState = iota

	// VADSilence indicates no speech for at least the debounce span.
	VADSilence

	// VADSpeech indicates sustained voice activity.
	VADSpeech
)

// String returns the human-readable name of the state.
func (s VADState) String() string {
	switch s {
	case VADSilence:
		return "SILENCE"
	case VADSpeech:
		return "SPEECH"
	default:
		return "UNKNOWN"
	}
}

// VADMetrics is the per-window readout of the detector, consumed by the
// silence-pause policy.
type VADMetrics struct {
	// Energy is the RMS amplitude of the window, normalized to [0, 1].
	Energy float64

	// ZeroCrossRate is the fraction of adjacent sample pairs with a sign
	// change.
	ZeroCrossRate float64

	// State is the current debounced classification.
	State VADState

	// SpeechStreak counts consecutive speech-like windows.
	SpeechStreak int

	// SilenceStreak counts consecutive silence-like windows.
	SilenceStreak int
}

// VAD flags speech using window energy plus zero-crossing rate, debounced
// over N consecutive windows so a single transient cannot flip the state.
type VAD struct {
	threshold float64
	debounce  int

	state         VADState
	speechStreak  int
	silenceStreak int
	last          VADMetrics
}

// NewVAD returns a detector in the UNKNOWN state. threshold is the RMS
// energy floor for speech; debounce is the consecutive-window count required
// to flip state (minimum 1).
func NewVAD(threshold float64, debounce int) *VAD {
	if debounce < 1 {
		debounce = 1
	}
	return &VAD{threshold: threshold, debounce: debounce}
}

// SetThreshold replaces the energy threshold.
func (v *VAD) SetThreshold(threshold float64) {
	v.threshold = threshold
}

// Threshold returns the current energy threshold.
func (v *VAD) Threshold() float64 {
	return v.threshold
}

// Metrics returns the readout of the most recently processed window.
func (v *VAD) Metrics() VADMetrics {
	return v.last
}

// Reset returns the detector to the UNKNOWN state.
func (v *VAD) Reset() {
	v.state = VADUnknown
	v.speechStreak = 0
	v.silenceStreak = 0
	v.last = VADMetrics{}
}

// Process classifies one window and returns the updated readout.
func (v *VAD) Process(samples []int16) VADMetrics {
	energy := audio.RMS(samples)
	zcr := zeroCrossRate(samples)

	speechy := energy >= v.threshold && zcr >= zcrSpeechMin && zcr <= zcrSpeechMax
	if speechy {
		v.speechStreak++
		v.silenceStreak = 0
		if v.speechStreak >= v.debounce {
			v.state = VADSpeech
		}
	} else {
		v.silenceStreak++
		v.speechStreak = 0
		if v.silenceStreak >= v.debounce {
			v.state = VADSilence
		}
	}

	v.last = VADMetrics{
		Energy:        energy,
		ZeroCrossRate: zcr,
		State:         v.state,
		SpeechStreak:  v.speechStreak,
		SilenceStreak: v.silenceStreak,
	}
	return v.last
}

func zeroCrossRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
