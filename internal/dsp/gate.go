package dsp

import "github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"

// Gate zeroes samples whose amplitude sits below the noise floor so breath
// and electrical hiss never reach the later stages. It runs first in the
// pipeline and holds no state across windows.
type Gate struct {
	floor int16
}

// NewGate returns a gate with the given threshold, normalized to [0, 1] of
// full scale.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold replaces the gate threshold, normalized to [0, 1].
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	g.floor = audio.Clamp16(int32(threshold * 32768))
}

// Apply zeroes sub-threshold samples in place.
func (g *Gate) Apply(samples []int16) {
	if g.floor == 0 {
		return
	}
	for i, s := range samples {
		if s < g.floor && s > -g.floor {
			samples[i] = 0
		}
	}
}
