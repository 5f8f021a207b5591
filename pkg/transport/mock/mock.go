// Package mock provides a scripted test double for the transport package.
//
// Use the error scripts to drive failure paths deterministically: each
// Connect consumes one entry of ConnectErrs and each Send one entry of
// SendErrs; an exhausted script means success. EmitFrame and EmitQuality
// push inbound traffic the way a live link would.
//
// Example:
//
//	tr := mock.New()
//	tr.SendErrs = []error{errNet, errNet, errNet}
//	// first three Send calls fail, the rest succeed
package mock

import (
	"context"
	"sync"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
)

// SendCall records a single invocation of Transport.Send.
type SendCall struct {
	// Frame is a copy of the frame bytes passed to Send.
	Frame []byte
}

// Transport is a mock implementation of transport.Transport.
type Transport struct {
	mu sync.Mutex

	// ConnectErrs is consumed one entry per Connect call; a nil entry or
	// an exhausted script means the call succeeds.
	ConnectErrs []error

	// SendErrs is consumed one entry per Send call; a nil entry or an
	// exhausted script means the call succeeds.
	SendErrs []error

	// FramesCh is the channel returned by Frames. Prefer EmitFrame over
	// sending directly.
	FramesCh chan []byte

	// QualityCh is the channel returned by Quality. Prefer EmitQuality.
	QualityCh chan transport.QualityReport

	// SendCalls records every successful or failed Send in order.
	SendCalls []SendCall

	// ConnectCallCount is the number of Connect invocations.
	ConnectCallCount int

	// CloseCallCount is the number of Close invocations.
	CloseCallCount int

	closed bool
}

// New returns a mock transport with buffered inbound channels.
func New() *Transport {
	return &Transport{
		FramesCh:  make(chan []byte, 16),
		QualityCh: make(chan transport.QualityReport, 16),
	}
}

// Connect records the call and consumes the next scripted error.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ConnectCallCount++
	if t.closed {
		return transport.ErrClosed
	}
	if len(t.ConnectErrs) == 0 {
		return nil
	}
	err := t.ConnectErrs[0]
	t.ConnectErrs = t.ConnectErrs[1:]
	return err
}

// Send records the frame and consumes the next scripted error.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.SendCalls = append(t.SendCalls, SendCall{Frame: cp})
	if len(t.SendErrs) == 0 {
		return nil
	}
	err := t.SendErrs[0]
	t.SendErrs = t.SendErrs[1:]
	return err
}

// Frames returns FramesCh.
func (t *Transport) Frames() <-chan []byte {
	return t.FramesCh
}

// Quality returns QualityCh.
func (t *Transport) Quality() <-chan transport.QualityReport {
	return t.QualityCh
}

// Close records the call and closes the inbound channels. Safe to call
// more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCallCount++
	if !t.closed {
		t.closed = true
		close(t.FramesCh)
		close(t.QualityCh)
	}
	return nil
}

// EmitFrame delivers one inbound frame as a live link would. It must not
// be called after Close.
func (t *Transport) EmitFrame(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.FramesCh <- cp
}

// EmitQuality delivers one link-health observation.
func (t *Transport) EmitQuality(q transport.QualityReport) {
	t.QualityCh <- q
}

// SendCallCount returns the number of Send calls. Thread-safe.
func (t *Transport) SendCallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.SendCalls)
}

// SentFrames returns copies of every frame passed to Send. Thread-safe.
func (t *Transport) SentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.SendCalls))
	for i, c := range t.SendCalls {
		out[i] = append([]byte(nil), c.Frame...)
	}
	return out
}

// ResetCalls clears recorded calls and counters. Thread-safe.
func (t *Transport) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SendCalls = nil
	t.ConnectCallCount = 0
	t.CloseCallCount = 0
}

// Ensure Transport implements transport.Transport at compile time.
var _ transport.Transport = (*Transport)(nil)
