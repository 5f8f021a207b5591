// Package audio provides the PCM primitives and the hardware abstraction the
// streaming engine is built on.
//
// The pieces are:
//
//   - [Ring] — fixed-capacity FIFO byte buffers decoupling the hardware
//     peripheral from the processing tasks.
//   - [Device] — the narrow interface a hardware audio backend implements.
//   - PCM helpers — sample encode/decode, RMS/peak measurement, and G.711
//     µ-law companding.
//
// Implementations of [Device] are provided by backend-specific subpackages
// (audio/miniaudio for real hardware, audio/mock for tests and hardware-less
// bring-up). The interface is intentionally narrow to keep the engine
// decoupled from driver details.
//
// This package lives under pkg/ because external tooling (bench harnesses,
// alternative hardware backends) is expected to implement [Device].
package audio

import (
	"context"
	"errors"
)

// ErrDeviceClosed is returned by [Device] I/O methods after Close.
var ErrDeviceClosed = errors.New("audio: device closed")

// Device is the hardware audio peripheral as the engine sees it: an opaque
// source of captured PCM and an opaque sink for playback PCM, both in the
// fixed stream format [DefaultFormat].
//
// ReadCapture and WritePlayback never block. They move whatever the driver
// has ready now and report short counts otherwise; the engine polls both at
// its own fixed cadence and owns all pacing. A backend that underruns on
// playback conceals the gap with silence so the speaker cadence never
// starves.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Start powers up the peripheral and begins capture/playback. The ctx
	// governs the startup handshake only; a started device runs until Close.
	Start(ctx context.Context) error

	// ReadCapture copies up to len(p) bytes of captured PCM into p and
	// returns the count. A zero count means no samples are pending.
	ReadCapture(p []byte) (int, error)

	// WritePlayback queues up to len(p) bytes of PCM for the speaker and
	// returns the count actually accepted. A short count means the driver
	// side is full; the caller retries the remainder on its next period.
	WritePlayback(p []byte) (int, error)

	// Close stops the peripheral and releases driver resources. Safe to
	// call more than once; subsequent calls are no-ops.
	Close() error
}
