package audio

import (
	"math"
	"testing"
	"time"
)

func TestSamplesIntoDecodesLittleEndian(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80, 0x34, 0x12}
	want := []int16{0, 32767, -32768, 0x1234}

	dst := make([]int16, 4)
	if n := SamplesInto(dst, pcm); n != 4 {
		t.Fatalf("SamplesInto = %d samples, want 4", n)
	}
	for i, w := range want {
		if dst[i] != w {
			t.Errorf("sample %d = %d, want %d", i, dst[i], w)
		}
	}
}

func TestPCMIntoRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 12345, -12345, 32767, -32768}
	pcm := make([]byte, len(samples)*2)
	if n := PCMInto(pcm, samples); n != len(pcm) {
		t.Fatalf("PCMInto = %d bytes, want %d", n, len(pcm))
	}
	back := Samples(pcm)
	for i, s := range samples {
		if back[i] != s {
			t.Errorf("round trip sample %d = %d, want %d", i, back[i], s)
		}
	}
}

func TestSamplesIntoIgnoresOddTrailingByte(t *testing.T) {
	dst := make([]int16, 4)
	if n := SamplesInto(dst, []byte{0x01, 0x02, 0x03}); n != 1 {
		t.Errorf("SamplesInto with odd input = %d samples, want 1", n)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	// A constant signal's RMS equals its amplitude.
	constant := make([]int16, 256)
	for i := range constant {
		constant[i] = 16384
	}
	got := RMS(constant)
	want := 0.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("RMS(constant half-scale) = %v, want %v", got, want)
	}

	// A full-scale sine has RMS amplitude/sqrt(2).
	sine := make([]int16, 1600)
	for i := range sine {
		sine[i] = int16(32000 * math.Sin(2*math.Pi*float64(i)/16))
	}
	got = RMS(sine)
	want = 32000.0 / 32768 / math.Sqrt2
	if math.Abs(got-want) > 0.01 {
		t.Errorf("RMS(sine) = %v, want ~%v", got, want)
	}
}

func TestPeak(t *testing.T) {
	if got := Peak([]int16{0, 100, -2000, 300}); math.Abs(got-2000.0/32768) > 1e-9 {
		t.Errorf("Peak = %v, want %v", got, 2000.0/32768)
	}
	if got := Peak([]int16{math.MinInt16}); got != 1.0 {
		t.Errorf("Peak(min int16) = %v, want 1.0", got)
	}
}

func TestClamp16(t *testing.T) {
	tests := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{32768, 32767},
		{1 << 20, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-(1 << 20), -32768},
	}
	for _, tt := range tests {
		if got := Clamp16(tt.in); got != tt.want {
			t.Errorf("Clamp16(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	f := DefaultFormat()
	if got := f.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := f.Bytes(20 * time.Millisecond); got != 640 {
		t.Errorf("Bytes(20ms) = %d, want 640", got)
	}
	// Bytes aligns down to whole samples.
	if got := f.Bytes(time.Millisecond / 32); got%2 != 0 {
		t.Errorf("Bytes returned unaligned count %d", got)
	}
}
