package audio

import "time"

// Stream format fixed by the toy's hardware: 16 kHz, 16-bit, mono PCM.
// Every byte slice crossing a ring buffer or the wire is in this format
// unless µ-law companded for transmission.
const (
	DefaultSampleRate = 16000
	BytesPerSample    = 2
	MonoChannels      = 1
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat returns the device stream format.
func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, Channels: MonoChannels}
}

// BytesPerSecond returns the PCM byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// Duration returns the play time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Bytes returns how many PCM bytes cover d of audio in this format,
// aligned down to a whole sample.
func (f Format) Bytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%(BytesPerSample*f.Channels)
}
