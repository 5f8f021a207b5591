package dsp

import "testing"

// voiced returns a window that reads as speech: 1 kHz tone at roughly 30%
// of full scale, zero-crossing rate around 0.12.
func voiced() []int16 {
	return toneWindow(16, 9800)
}

// hiss returns a loud broadband window whose zero-crossing rate is 1.0.
func hiss() []int16 {
	s := make([]int16, WindowSamples)
	for i := range s {
		if i%2 == 0 {
			s[i] = 3000
		} else {
			s[i] = -3000
		}
	}
	return s
}

func TestVADStartsUnknown(t *testing.T) {
	v := NewVAD(0.05, 3)

	if got := v.Metrics().State; got != VADUnknown {
		t.Fatalf("initial state = %v, want UNKNOWN", got)
	}
	for i := 0; i < 2; i++ {
		if m := v.Process(voiced()); m.State != VADUnknown {
			t.Fatalf("window %d: state = %v, want UNKNOWN until debounce", i, m.State)
		}
	}
	if m := v.Process(voiced()); m.State != VADSpeech {
		t.Errorf("state after 3 voiced windows = %v, want SPEECH", m.State)
	}
}

func TestVADDebouncesSingleTransient(t *testing.T) {
	v := NewVAD(0.05, 3)

	for i := 0; i < 3; i++ {
		v.Process(make([]int16, WindowSamples))
	}
	if got := v.Metrics().State; got != VADSilence {
		t.Fatalf("state after 3 silent windows = %v, want SILENCE", got)
	}

	// One voiced window in the middle of silence must not flip the state.
	if m := v.Process(voiced()); m.State != VADSilence || m.SpeechStreak != 1 {
		t.Fatalf("after transient: state = %v streak = %d, want SILENCE streak 1", m.State, m.SpeechStreak)
	}
	if m := v.Process(make([]int16, WindowSamples)); m.SpeechStreak != 0 {
		t.Fatalf("speech streak = %d after silence, want reset to 0", m.SpeechStreak)
	}

	// Sustained speech flips it exactly at the debounce count.
	v.Process(voiced())
	if m := v.Process(voiced()); m.State != VADSilence {
		t.Fatalf("state one window early = %v, want still SILENCE", m.State)
	}
	if m := v.Process(voiced()); m.State != VADSpeech {
		t.Errorf("state at debounce count = %v, want SPEECH", m.State)
	}
}

func TestVADRejectsBroadbandHiss(t *testing.T) {
	v := NewVAD(0.05, 2)

	var m VADMetrics
	for i := 0; i < 2; i++ {
		m = v.Process(hiss())
	}
	if m.Energy <= 0.05 {
		t.Fatalf("hiss energy = %v, want above threshold for this test to mean anything", m.Energy)
	}
	if m.ZeroCrossRate <= zcrSpeechMax {
		t.Fatalf("hiss zero-cross rate = %v, want > %v", m.ZeroCrossRate, zcrSpeechMax)
	}
	if m.State != VADSilence {
		t.Errorf("state = %v, want SILENCE despite loud hiss", m.State)
	}
}

func TestVADRejectsQuietTone(t *testing.T) {
	v := NewVAD(0.05, 2)

	quiet := toneWindow(16, 800) // RMS about 0.017, under the threshold
	v.Process(quiet)
	if m := v.Process(quiet); m.State != VADSilence {
		t.Errorf("state = %v, want SILENCE for sub-threshold tone", m.State)
	}
}

func TestVADSetThreshold(t *testing.T) {
	v := NewVAD(0.05, 1)

	if m := v.Process(voiced()); m.State != VADSpeech {
		t.Fatalf("state = %v, want SPEECH at threshold 0.05", m.State)
	}

	v.SetThreshold(0.9)
	if got := v.Threshold(); got != 0.9 {
		t.Fatalf("Threshold() = %v, want 0.9", got)
	}
	if m := v.Process(voiced()); m.State != VADSilence {
		t.Errorf("state = %v, want SILENCE once the bar is raised", m.State)
	}
}

func TestVADReset(t *testing.T) {
	v := NewVAD(0.05, 1)
	v.Process(voiced())
	if got := v.Metrics().State; got != VADSpeech {
		t.Fatalf("state = %v, want SPEECH before reset", got)
	}

	v.Reset()
	m := v.Metrics()
	if m.State != VADUnknown || m.SpeechStreak != 0 || m.SilenceStreak != 0 {
		t.Errorf("after Reset: %+v, want zeroed UNKNOWN readout", m)
	}
}

func TestVADStateString(t *testing.T) {
	tests := []struct {
		state VADState
		want  string
	}{
		{VADUnknown, "UNKNOWN"},
		{VADSilence, "SILENCE"},
		{VADSpeech, "SPEECH"},
		{VADState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("VADState(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestZeroCrossRate(t *testing.T) {
	if got := zeroCrossRate([]int16{5}); got != 0 {
		t.Errorf("single sample rate = %v, want 0", got)
	}
	if got := zeroCrossRate([]int16{3, 4, 5, 6}); got != 0 {
		t.Errorf("monotone rate = %v, want 0", got)
	}
	if got := zeroCrossRate([]int16{5, -5, 5, -5, 5}); got != 1 {
		t.Errorf("alternating rate = %v, want 1", got)
	}
}
