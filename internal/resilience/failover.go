package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
)

// ErrAllEndpoints is returned by [Failover.Connect] when every configured
// endpoint fails or its circuit breaker is open.
var ErrAllEndpoints = errors.New("all endpoints failed")

// failoverEntry pairs one endpoint with its dedicated circuit breaker.
type failoverEntry struct {
	name    string
	tr      transport.Transport
	breaker *CircuitBreaker
}

// Failover is a [transport.Transport] across an ordered endpoint list:
// a primary speech endpoint and zero or more backups. Connect walks the
// list in order and settles on the first endpoint that answers; endpoints
// with an open breaker are skipped. Send failures count against the
// active endpoint's breaker, so the next Connect routes around it.
//
// Inbound frames and quality reports from every endpoint are merged into
// single channels; only the active endpoint produces traffic in practice.
//
// Register all endpoints before the first Connect. Failover is safe for
// concurrent use afterwards.
type Failover struct {
	entries []*failoverEntry
	cbCfg   CircuitBreakerConfig

	frames  chan []byte
	quality chan transport.QualityReport

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu     sync.Mutex
	active int
	closed bool
}

// NewFailover creates a [Failover] with primary as the first endpoint.
// Backups are registered via [Failover.AddEndpoint]. cbCfg seeds the
// per-endpoint breakers; the Name field is replaced per endpoint.
func NewFailover(primaryName string, primary transport.Transport, cbCfg CircuitBreakerConfig) *Failover {
	f := &Failover{
		cbCfg:   cbCfg,
		frames:  make(chan []byte, 32),
		quality: make(chan transport.QualityReport, 4),
		active:  -1,
	}
	f.AddEndpoint(primaryName, primary)
	return f
}

// AddEndpoint appends a backup endpoint. Endpoints are tried in
// registration order.
func (f *Failover) AddEndpoint(name string, tr transport.Transport) {
	cbCfg := f.cbCfg
	cbCfg.Name = name
	f.entries = append(f.entries, &failoverEntry{
		name:    name,
		tr:      tr,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Connect settles on the first endpoint that answers, in registration
// order. Endpoints whose breaker is open are skipped.
func (f *Failover) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	f.mu.Unlock()

	f.startOnce.Do(f.startForwarders)

	var lastErr error
	for i, entry := range f.entries {
		err := entry.breaker.Execute(func() error {
			return entry.tr.Connect(ctx)
		})
		if err == nil {
			f.mu.Lock()
			if f.active != i {
				slog.Info("endpoint selected", "endpoint", entry.name)
			}
			f.active = i
			f.mu.Unlock()
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("endpoint skipped, breaker open", "endpoint", entry.name)
		} else {
			slog.Warn("endpoint connect failed, trying next",
				"endpoint", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllEndpoints, lastErr)
}

// Send transmits one frame on the active endpoint. Failures count
// against that endpoint's breaker.
func (f *Failover) Send(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	idx := f.active
	f.mu.Unlock()

	if idx < 0 {
		return transport.ErrNotReady
	}
	entry := f.entries[idx]
	return entry.breaker.Execute(func() error {
		return entry.tr.Send(ctx, frame)
	})
}

// Frames returns the merged inbound frame channel. Closed by Close.
func (f *Failover) Frames() <-chan []byte {
	return f.frames
}

// Quality returns the merged quality channel. Closed by Close.
func (f *Failover) Quality() <-chan transport.QualityReport {
	return f.quality
}

// Close closes every endpoint and then the merged channels.
func (f *Failover) Close() error {
	var errs []error
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.active = -1
		f.mu.Unlock()

		// Forwarders may never have started.
		f.startOnce.Do(f.startForwarders)

		for _, entry := range f.entries {
			if err := entry.tr.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", entry.name, err))
			}
		}
		f.wg.Wait()
		close(f.frames)
		close(f.quality)
	})
	return errors.Join(errs...)
}

// Endpoints returns the endpoint names with their breaker states, for
// the status surface.
func (f *Failover) Endpoints() map[string]State {
	out := make(map[string]State, len(f.entries))
	for _, entry := range f.entries {
		out[entry.name] = entry.breaker.State()
	}
	return out
}

func (f *Failover) startForwarders() {
	for _, entry := range f.entries {
		f.wg.Add(1)
		go f.forward(entry.tr)
	}
}

// forward merges one endpoint's inbound channels until both close.
// Sends never block: if the merged channel is full the newest item is
// shed, matching the shedding the backends already do.
func (f *Failover) forward(tr transport.Transport) {
	defer f.wg.Done()
	frames, quality := tr.Frames(), tr.Quality()
	for frames != nil || quality != nil {
		select {
		case data, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			select {
			case f.frames <- data:
			default:
			}
		case q, ok := <-quality:
			if !ok {
				quality = nil
				continue
			}
			select {
			case f.quality <- q:
			default:
			}
		}
	}
}

var _ transport.Transport = (*Failover)(nil)
