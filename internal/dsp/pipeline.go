// Package dsp implements the enhancement pipeline the streaming engine runs
// over every captured analysis window: noise gate, spectral-subtraction
// noise reduction, automatic gain control, and voice activity detection, in
// that fixed order.
//
// Stage functions never fail. A stage that cannot do useful work yet (an
// uncalibrated noise profile) passes samples through unchanged, so the
// real-time path has no error branch. All stage state is owned by one
// [Pipeline] instance and mutated only by its Process caller; the pipeline
// is not safe for concurrent use.
package dsp

import "time"

// WindowSamples is the fixed analysis window: 256 samples, 16 ms at 16 kHz.
// Power of two so the spectral stage transforms it directly.
const WindowSamples = 256

// WindowBytes is the window size in PCM bytes.
const WindowBytes = WindowSamples * 2

// WindowDuration returns the wall-clock span of one window at sampleRate.
func WindowDuration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(WindowSamples) * time.Second / time.Duration(sampleRate)
}

// Config carries the pipeline tunables. Values are assumed pre-clamped to
// safe ranges by the configuration layer.
type Config struct {
	SampleRate         int
	GateThreshold      float64
	OverSubtraction    float64
	CalibrationWindows int
	AGCTarget          float64
	AGCMinGain         float64
	AGCMaxGain         float64
	VADThreshold       float64
	VADDebounce        int
}

// Tuning is the subset of [Config] that may be replaced between windows on
// a running pipeline.
type Tuning struct {
	GateThreshold   float64
	OverSubtraction float64
	AGCTarget       float64
	VADThreshold    float64
}

// Pipeline owns the stage state for one engine session.
type Pipeline struct {
	gate *Gate
	den  *Denoiser
	agc  *AGC
	vad  *VAD
}

// New assembles a pipeline from cfg.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		gate: NewGate(cfg.GateThreshold),
		den:  NewDenoiser(WindowSamples, cfg.SampleRate, cfg.OverSubtraction, cfg.CalibrationWindows),
		agc:  NewAGC(cfg.AGCTarget, cfg.AGCMinGain, cfg.AGCMaxGain),
		vad:  NewVAD(cfg.VADThreshold, cfg.VADDebounce),
	}
}

// Process enhances one window in place and returns the VAD readout.
// len(samples) must be [WindowSamples].
func (p *Pipeline) Process(samples []int16) VADMetrics {
	p.gate.Apply(samples)
	p.den.Apply(samples)
	p.agc.Apply(samples)
	return p.vad.Process(samples)
}

// Retune replaces the hot-swappable tunables. Call between windows from the
// same goroutine that calls Process.
func (p *Pipeline) Retune(t Tuning) {
	p.gate.SetThreshold(t.GateThreshold)
	p.den.SetOverSubtraction(t.OverSubtraction)
	p.agc.SetTarget(t.AGCTarget)
	p.vad.SetThreshold(t.VADThreshold)
}

// Calibrated reports whether the noise floor is ready and subtraction is
// active.
func (p *Pipeline) Calibrated() bool {
	return p.den.Ready()
}

// CalibrationProgress returns accumulated and required calibration windows.
func (p *Pipeline) CalibrationProgress() (done, total int) {
	return p.den.Progress()
}

// Recalibrate discards the noise profile and restarts calibration from the
// next processed window.
func (p *Pipeline) Recalibrate() {
	p.den.Reset()
}

// Profile returns a copy of the current noise profile.
func (p *Pipeline) Profile() NoiseProfile {
	return p.den.Profile()
}

// Gain returns the current AGC gain multiplier.
func (p *Pipeline) Gain() float64 {
	return p.agc.Gain()
}

// VADMetrics returns the readout of the most recently processed window.
func (p *Pipeline) VADMetrics() VADMetrics {
	return p.vad.Metrics()
}
