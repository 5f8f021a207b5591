// Package transport defines the cloud link the streaming engine speaks
// over. A Transport moves opaque binary frames in both directions and
// surfaces link-health observations; framing and audio semantics live in
// the caller.
//
// Implementations must be safe for concurrent use: the engine sends from
// one goroutine while draining Frames and Quality from others.
package transport

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Transport implementations. Callers classify
// with [errors.Is]; anything else is a backend-specific failure wrapped
// with context.
var (
	// ErrClosed is returned once Close has been called. The transport
	// cannot be reused afterwards.
	ErrClosed = errors.New("transport closed")

	// ErrNotReady is returned by Send while no connection is established.
	// Callers recover by calling Connect again.
	ErrNotReady = errors.New("transport not connected")
)

// QualityReport is one observation of link health. Zero fields mean the
// backend could not measure that dimension, not that it measured zero.
type QualityReport struct {
	// RSSI is the received signal strength in dBm (negative; closer to
	// zero is stronger), or 0 when the backend has no radio readout.
	RSSI int

	// RTT is the latest round-trip probe time, or 0 when unknown.
	RTT time.Duration
}

// Transport is a bidirectional frame link to the speech endpoint.
//
// Callers must call Close when the link is no longer needed; Close is the
// only way the Frames and Quality channels terminate.
type Transport interface {
	// Connect dials and authenticates the link, returning once it is
	// ready to carry frames. Calling Connect on an already-connected
	// transport is a no-op; calling it after a connection dropped dials
	// again.
	Connect(ctx context.Context) error

	// Send transmits one binary frame. The frame is delivered whole or
	// not at all; a non-nil error means the frame did not go out and the
	// caller decides whether to retry. Send never blocks past ctx.
	Send(ctx context.Context, frame []byte) error

	// Frames returns the channel of inbound binary frames. The channel
	// is closed by Close. Frames delivered on it are owned by the
	// receiver.
	Frames() <-chan []byte

	// Quality returns the channel of link-health observations. Reports
	// are best effort: when the consumer lags, newer reports replace the
	// wait rather than queueing without bound. Closed by Close.
	Quality() <-chan QualityReport

	// Close tears the link down and releases its resources. Safe to call
	// more than once.
	Close() error
}
