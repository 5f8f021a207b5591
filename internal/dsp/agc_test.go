package dsp

import "testing"

// window returns one analysis window of constant amplitude.
func window(amp int16) []int16 {
	s := make([]int16, WindowSamples)
	for i := range s {
		s[i] = amp
	}
	return s
}

func TestAGCRampsUpOnQuietInput(t *testing.T) {
	a := NewAGC(0.3, 0.5, 4)

	prev := a.Gain()
	if prev != 1 {
		t.Fatalf("initial gain = %v, want 1", prev)
	}
	for i := 0; i < 60; i++ {
		a.Apply(window(200))
		g := a.Gain()
		if g <= prev {
			t.Fatalf("window %d: gain %v did not rise from %v", i, g, prev)
		}
		if g > 4 {
			t.Fatalf("window %d: gain %v exceeds max 4", i, g)
		}
		prev = g
	}
	if prev < 2 {
		t.Errorf("gain after 60 quiet windows = %v, want > 2", prev)
	}
}

func TestAGCDucksLoudInputFasterThanItRamps(t *testing.T) {
	a := NewAGC(0.3, 0.1, 4)

	// Ramp up on quiet input until the gain doubles.
	rise := 0
	for a.Gain() < 2 {
		a.Apply(window(200))
		rise++
		if rise > 500 {
			t.Fatal("gain never reached 2 on quiet input")
		}
	}

	// A sustained loud passage must undo that much faster.
	fall := 0
	for a.Gain() > 1.2 {
		a.Apply(window(26000))
		fall++
		if fall > 500 {
			t.Fatal("gain never fell back below 1.2 on loud input")
		}
	}
	if fall >= rise {
		t.Errorf("fall took %d windows, rise took %d, want fall < rise", fall, rise)
	}
}

func TestAGCClampsScaledOutput(t *testing.T) {
	a := NewAGC(0.9, 2, 8)

	in := window(30000)
	for i := range in {
		if i%2 == 1 {
			in[i] = -30000
		}
	}
	a.Apply(in)

	if a.Gain() <= 1 {
		t.Fatalf("gain = %v, want > 1 so the window clips", a.Gain())
	}
	for i, s := range in {
		want := int16(32767)
		if i%2 == 1 {
			want = -32768
		}
		if s != want {
			t.Errorf("sample %d = %d, want %d", i, s, want)
		}
	}
}

func TestAGCGainStaysWithinBounds(t *testing.T) {
	a := NewAGC(0.3, 0.5, 4)

	amps := []int16{200, 26000, 0, 31000, 100, 15000}
	for i := 0; i < 200; i++ {
		a.Apply(window(amps[i%len(amps)]))
		if g := a.Gain(); g < 0.5 || g > 4 {
			t.Fatalf("window %d: gain %v outside [0.5, 4]", i, g)
		}
	}
}

func TestAGCEmptyWindow(t *testing.T) {
	a := NewAGC(0.3, 0.5, 4)
	a.Apply(nil)
	if g := a.Gain(); g != 1 {
		t.Errorf("gain after empty window = %v, want 1", g)
	}
}

func TestNewAGCDefaults(t *testing.T) {
	a := NewAGC(0.3, 0, 0)
	if a.minGain != 0.1 {
		t.Errorf("minGain = %v, want 0.1", a.minGain)
	}
	if a.maxGain != 0.1 {
		t.Errorf("maxGain = %v, want 0.1 (raised to min)", a.maxGain)
	}
}
