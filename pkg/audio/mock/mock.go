// Package mock provides an in-memory scripted implementation of
// [audio.Device] for unit tests and hardware-less bring-up.
//
// The device replays whatever capture audio the test enqueues and records
// everything written to playback, so tests can drive the engine end to end
// without a microphone or speaker. It is safe for concurrent use.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	dev.EnqueueCapture(somePCM)
//	if err := dev.Start(ctx); err != nil { ... }
//	n, _ := dev.ReadCapture(buf)
package mock

import (
	"context"
	"sync"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// Device is a scripted mock implementation of [audio.Device].
// Set the exported error fields before use; inspect recorded state after.
type Device struct {
	mu sync.Mutex

	// StartError is returned by [Device.Start].
	StartError error

	// ReadError, once set, is returned by every ReadCapture call.
	ReadError error

	// WriteError, once set, is returned by every WritePlayback call.
	WriteError error

	// PlaybackLimit caps the bytes accepted per WritePlayback call,
	// simulating a full driver buffer. Zero means unlimited.
	PlaybackLimit int

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	capture []byte
	played  []byte
	started bool
	closed  bool
}

var _ audio.Device = (*Device)(nil)

// EnqueueCapture appends pcm to the scripted microphone signal. ReadCapture
// drains it in FIFO order.
func (d *Device) EnqueueCapture(pcm []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capture = append(d.capture, pcm...)
}

// Start implements [audio.Device]. Returns StartError.
func (d *Device) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartError != nil {
		return d.StartError
	}
	if d.closed {
		return audio.ErrDeviceClosed
	}
	d.started = true
	return nil
}

// ReadCapture implements [audio.Device]. It drains the scripted capture
// signal enqueued via [Device.EnqueueCapture].
func (d *Device) ReadCapture(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, audio.ErrDeviceClosed
	}
	if d.ReadError != nil {
		return 0, d.ReadError
	}
	n := copy(p, d.capture)
	d.capture = d.capture[n:]
	return n, nil
}

// WritePlayback implements [audio.Device]. Written bytes are recorded and
// can be inspected via [Device.Played].
func (d *Device) WritePlayback(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, audio.ErrDeviceClosed
	}
	if d.WriteError != nil {
		return 0, d.WriteError
	}
	n := len(p)
	if d.PlaybackLimit > 0 && n > d.PlaybackLimit {
		n = d.PlaybackLimit
	}
	d.played = append(d.played, p[:n]...)
	return n, nil
}

// Close implements [audio.Device]. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	d.closed = true
	d.started = false
	return nil
}

// Played returns a copy of all bytes written to playback so far.
func (d *Device) Played() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.played))
	copy(out, d.played)
	return out
}

// Pending returns how many scripted capture bytes remain unread.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.capture)
}

// Started reports whether the device is currently started.
func (d *Device) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}
