package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
	transportmock "github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport/mock"
)

func newTestFailover(cbCfg CircuitBreakerConfig) (*Failover, *transportmock.Transport, *transportmock.Transport) {
	primary := transportmock.New()
	backup := transportmock.New()
	f := NewFailover("primary", primary, cbCfg)
	f.AddEndpoint("backup", backup)
	return f, primary, backup
}

func TestFailoverPrefersPrimary(t *testing.T) {
	f, primary, backup := newTestFailover(CircuitBreakerConfig{})
	defer f.Close()

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := f.Send(context.Background(), []byte{1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if primary.SendCallCount() != 1 || backup.SendCallCount() != 0 {
		t.Errorf("sends = primary %d backup %d, want 1 and 0",
			primary.SendCallCount(), backup.SendCallCount())
	}
	if backup.ConnectCallCount != 0 {
		t.Errorf("backup dialed %d times, want 0", backup.ConnectCallCount)
	}
}

func TestFailoverFallsBackWhenPrimaryIsDown(t *testing.T) {
	f, primary, backup := newTestFailover(CircuitBreakerConfig{})
	defer f.Close()
	primary.ConnectErrs = []error{errDial}

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := f.Send(context.Background(), []byte{2}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if backup.SendCallCount() != 1 || primary.SendCallCount() != 0 {
		t.Errorf("sends = primary %d backup %d, want 0 and 1",
			primary.SendCallCount(), backup.SendCallCount())
	}
}

func TestFailoverSkipsEndpointWithOpenBreaker(t *testing.T) {
	f, primary, _ := newTestFailover(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	defer f.Close()
	primary.ConnectErrs = []error{errDial}

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	// The second Connect must not dial the primary again.
	if primary.ConnectCallCount != 1 {
		t.Errorf("primary dialed %d times, want 1", primary.ConnectCallCount)
	}
	if got := f.Endpoints()["primary"]; got != StateOpen {
		t.Errorf("primary breaker = %v, want open", got)
	}
}

func TestFailoverSendFailureTripsBreaker(t *testing.T) {
	f, primary, backup := newTestFailover(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	defer f.Close()
	primary.SendErrs = []error{errSend}

	ctx := context.Background()
	if err := f.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := f.Send(ctx, []byte{3}); !errors.Is(err, errSend) {
		t.Fatalf("Send = %v, want errSend", err)
	}

	// The reconnect path routes around the now-open primary breaker.
	if err := f.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := f.Send(ctx, []byte{4}); err != nil {
		t.Fatalf("Send after failover: %v", err)
	}
	if backup.SendCallCount() != 1 {
		t.Errorf("backup sends = %d, want 1", backup.SendCallCount())
	}
}

func TestFailoverAllEndpointsDown(t *testing.T) {
	f, primary, backup := newTestFailover(CircuitBreakerConfig{})
	defer f.Close()
	primary.ConnectErrs = []error{errDial}
	backup.ConnectErrs = []error{errDial}

	if err := f.Connect(context.Background()); !errors.Is(err, ErrAllEndpoints) {
		t.Errorf("Connect = %v, want ErrAllEndpoints", err)
	}
}

func TestFailoverSendBeforeConnect(t *testing.T) {
	f, _, _ := newTestFailover(CircuitBreakerConfig{})
	defer f.Close()

	if err := f.Send(context.Background(), []byte{1}); !errors.Is(err, transport.ErrNotReady) {
		t.Errorf("Send = %v, want ErrNotReady", err)
	}
}

func TestFailoverMergesInboundTraffic(t *testing.T) {
	f, primary, _ := newTestFailover(CircuitBreakerConfig{})
	defer f.Close()

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	primary.EmitFrame([]byte{7, 8})
	select {
	case got := <-f.Frames():
		if len(got) != 2 || got[0] != 7 {
			t.Errorf("frame = % X, want 07 08", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame forwarded within 1s")
	}

	primary.EmitQuality(transport.QualityReport{RTT: 42 * time.Millisecond})
	select {
	case q := <-f.Quality():
		if q.RTT != 42*time.Millisecond {
			t.Errorf("RTT = %v, want 42ms", q.RTT)
		}
	case <-time.After(time.Second):
		t.Fatal("no quality report forwarded within 1s")
	}
}

func TestFailoverCloseClosesEverything(t *testing.T) {
	f, primary, backup := newTestFailover(CircuitBreakerConfig{})

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if primary.CloseCallCount != 1 || backup.CloseCallCount != 1 {
		t.Errorf("endpoint closes = %d and %d, want 1 each",
			primary.CloseCallCount, backup.CloseCallCount)
	}
	if _, ok := <-f.Frames(); ok {
		t.Error("Frames channel still open after Close")
	}
	if err := f.Send(context.Background(), []byte{1}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}
