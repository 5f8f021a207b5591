// Package observe provides application-wide observability primitives for
// bearstream: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware for the diagnostics endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bearstream metrics.
const meterName = "github.com/JAAFAR1996/ai-tiddy-bear-v-sub004"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency and size histograms ---

	// SendDuration tracks the latency of one chunk transmission, retries
	// included.
	SendDuration metric.Float64Histogram

	// WindowDuration tracks enhancement pipeline processing time per
	// audio window.
	WindowDuration metric.Float64Histogram

	// ChunkBytes tracks the outbound chunk payload size distribution.
	ChunkBytes metric.Int64Histogram

	// --- Counters ---

	// ChunksSent counts chunks delivered to the backend. Use with
	// attribute: attribute.String("codec", ...)
	ChunksSent metric.Int64Counter

	// SendRetries counts transmission retry attempts.
	SendRetries metric.Int64Counter

	// InboundFrames counts backend audio frames accepted for playback.
	InboundFrames metric.Int64Counter

	// --- Drop counters ---

	// ChunksDropped counts chunks abandoned after the retry budget.
	ChunksDropped metric.Int64Counter

	// InboundRejected counts malformed backend frames dropped whole. Use
	// with attribute: attribute.String("reason", ...)
	InboundRejected metric.Int64Counter

	// CaptureOverruns counts oldest-window evictions from the capture
	// buffer.
	CaptureOverruns metric.Int64Counter

	// PlaybackEvictions counts oldest-frame evictions from the playback
	// buffer.
	PlaybackEvictions metric.Int64Counter

	// --- Gauges ---

	// EngineState reports the engine lifecycle state as a numeric code.
	EngineState metric.Int64Gauge

	// LinkTier reports the network quality tier as a numeric code.
	LinkTier metric.Int64Gauge

	// ChunkSize reports the current adaptive chunk size in bytes.
	ChunkSize metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks diagnostics request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for radio-link send latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// byteBuckets defines histogram bucket boundaries for chunk payload sizes.
var byteBuckets = []float64{
	256, 512, 1024, 2048, 4096, 8192, 16384,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SendDuration, err = m.Float64Histogram("bearstream.send.duration",
		metric.WithDescription("Latency of one chunk transmission, retries included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WindowDuration, err = m.Float64Histogram("bearstream.window.duration",
		metric.WithDescription("Enhancement pipeline processing time per audio window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkBytes, err = m.Int64Histogram("bearstream.chunk.bytes",
		metric.WithDescription("Outbound chunk payload size."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(byteBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksSent, err = m.Int64Counter("bearstream.chunks.sent",
		metric.WithDescription("Total chunks delivered to the backend by codec."),
	); err != nil {
		return nil, err
	}
	if met.SendRetries, err = m.Int64Counter("bearstream.send.retries",
		metric.WithDescription("Total transmission retry attempts."),
	); err != nil {
		return nil, err
	}
	if met.InboundFrames, err = m.Int64Counter("bearstream.inbound.frames",
		metric.WithDescription("Total backend audio frames accepted for playback."),
	); err != nil {
		return nil, err
	}

	// Drop counters.
	if met.ChunksDropped, err = m.Int64Counter("bearstream.chunks.dropped",
		metric.WithDescription("Total chunks abandoned after the retry budget."),
	); err != nil {
		return nil, err
	}
	if met.InboundRejected, err = m.Int64Counter("bearstream.inbound.rejected",
		metric.WithDescription("Total malformed backend frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.CaptureOverruns, err = m.Int64Counter("bearstream.capture.overruns",
		metric.WithDescription("Total oldest-window evictions from the capture buffer."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackEvictions, err = m.Int64Counter("bearstream.playback.evictions",
		metric.WithDescription("Total oldest-frame evictions from the playback buffer."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.EngineState, err = m.Int64Gauge("bearstream.engine.state",
		metric.WithDescription("Engine lifecycle state as a numeric code."),
	); err != nil {
		return nil, err
	}
	if met.LinkTier, err = m.Int64Gauge("bearstream.link.tier",
		metric.WithDescription("Network quality tier as a numeric code."),
	); err != nil {
		return nil, err
	}
	if met.ChunkSize, err = m.Int64Gauge("bearstream.chunk.size",
		metric.WithDescription("Current adaptive chunk size in bytes."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("bearstream.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChunkSent records one delivered chunk: the counter, the payload size,
// and the send latency.
func (m *Metrics) RecordChunkSent(ctx context.Context, codec string, payloadBytes int, d time.Duration) {
	m.ChunksSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("codec", codec)),
	)
	m.ChunkBytes.Record(ctx, int64(payloadBytes))
	m.SendDuration.Record(ctx, d.Seconds())
}

// RecordChunkDropped records a chunk abandoned after its retry budget along
// with the retries spent on it.
func (m *Metrics) RecordChunkDropped(ctx context.Context, retries int) {
	m.ChunksDropped.Add(ctx, 1)
	if retries > 0 {
		m.SendRetries.Add(ctx, int64(retries))
	}
}

// RecordInboundRejected records a malformed backend frame dropped whole.
func (m *Metrics) RecordInboundRejected(ctx context.Context, reason string) {
	m.InboundRejected.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
