// Package miniaudio implements [audio.Device] on top of the malgo bindings
// to the miniaudio library. A single duplex device carries both the
// microphone and the speaker at the fixed stream format.
//
// The malgo driver delivers and requests samples on its own thread via a
// data callback. Two small ring buffers bridge that callback to the engine's
// pull/push cadence; the callback itself never blocks.
package miniaudio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// driverRingMillis sizes the callback-side rings. They only need to absorb
// the jitter between the driver period and the engine task period.
const driverRingMillis = 120

// Duplex is a malgo-backed duplex [audio.Device].
type Duplex struct {
	format audio.Format

	capture  *audio.Ring
	playback *audio.Ring
	overrun  sync.Once

	mu     sync.Mutex
	mctx   *malgo.AllocatedContext
	dev    *malgo.Device
	closed bool
}

var _ audio.Device = (*Duplex)(nil)

// New returns an unstarted duplex device for format.
func New(format audio.Format) (*Duplex, error) {
	n := format.BytesPerSecond() * driverRingMillis / 1000
	capture, err := audio.NewRing(n)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: capture ring: %w", err)
	}
	playback, err := audio.NewRing(n)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: playback ring: %w", err)
	}
	return &Duplex{format: format, capture: capture, playback: playback}, nil
}

// Start implements [audio.Device]. It initializes the miniaudio context,
// opens the duplex device and begins the driver callback.
func (d *Duplex) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return audio.ErrDeviceClosed
	}
	if d.dev != nil {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio driver", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(d.format.Channels)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(d.format.Channels)
	cfg.SampleRate = uint32(d.format.SampleRate)
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onSamples,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("miniaudio: init device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("miniaudio: start device: %w", err)
	}

	d.mctx = mctx
	d.dev = dev
	return nil
}

// onSamples runs on the miniaudio driver thread and must not block. Capture
// overruns evict the oldest audio so the freshest samples survive; playback
// underruns are concealed with silence.
func (d *Duplex) onSamples(pOutput, pInput []byte, frameCount uint32) {
	if len(pInput) > 0 {
		if n := d.capture.Write(pInput); n < len(pInput) {
			d.capture.Discard(len(pInput) - n)
			d.capture.Write(pInput[n:])
			d.overrun.Do(func() {
				slog.Warn("miniaudio: capture ring overrun, engine is draining too slowly")
			})
		}
	}
	if len(pOutput) > 0 {
		n := d.playback.Read(pOutput)
		for i := n; i < len(pOutput); i++ {
			pOutput[i] = 0
		}
	}
}

// ReadCapture implements [audio.Device].
func (d *Duplex) ReadCapture(p []byte) (int, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, audio.ErrDeviceClosed
	}
	return d.capture.Read(p), nil
}

// WritePlayback implements [audio.Device].
func (d *Duplex) WritePlayback(p []byte) (int, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, audio.ErrDeviceClosed
	}
	return d.playback.Write(p), nil
}

// Close implements [audio.Device]. Safe to call more than once.
func (d *Duplex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if d.dev != nil {
		d.dev.Uninit()
		d.dev = nil
	}
	if d.mctx != nil {
		err := d.mctx.Uninit()
		d.mctx.Free()
		d.mctx = nil
		if err != nil {
			return fmt.Errorf("miniaudio: uninit context: %w", err)
		}
	}
	return nil
}
