// Package engine implements the real-time streaming engine at the heart of
// the device: microphone audio is captured into a ring buffer, enhanced
// window by window, assembled into chunks sized by the network adapter, and
// transmitted to the backend, while backend audio flows the opposite way to
// the speaker.
//
// An [Engine] owns a small fixed set of cooperating tasks supervised by one
// errgroup: capture and playback on fixed periods, the streaming task on
// the enhancement-window cadence, the inbound receive loop, and the network
// adaptation evaluator. Lifecycle is a strict state machine (IDLE,
// INITIALIZING, STREAMING, PAUSED_SILENCE, ERROR, STOPPING); every
// transition passes through one guarded setter. [Engine.Run] drives a full
// session from the calling goroutine; [Engine.Stop] requests a cooperative
// shutdown that every task observes at its next loop iteration.
//
// No task blocks indefinitely: the ring buffers are non-blocking, transport
// sends carry a context timeout, and no lock is held across a blocking
// call. All buffer memory is allocated during initialization; the hot path
// allocates nothing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/dsp"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/netadapt"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/observe"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/resilience"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/wire"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
)

// outcomeBuf is the depth of the send-outcome channel feeding the network
// adapter. Outcome reports are shed, never blocked on, if the adapter lags.
const outcomeBuf = 64

// Config carries the engine tunables. The zero value gets usable defaults;
// values arriving from the configuration layer are already clamped to safe
// ranges.
type Config struct {
	// SampleRate of the capture and playback streams in Hz. Default 16000.
	SampleRate int

	// Codec selects the outbound payload encoding. Default [wire.CodecPCM16];
	// [wire.CodecMuLaw] halves the payload byte rate.
	Codec wire.Codec

	// CapturePeriod and PlaybackPeriod are the peripheral polling cadences.
	// Default 10ms each.
	CapturePeriod  time.Duration
	PlaybackPeriod time.Duration

	// BufferBytes is the capacity of each ring buffer. Default four times
	// the maximum chunk size, about one second of PCM at 16 kHz.
	BufferBytes int

	// Enhance tunes the enhancement pipeline. Its SampleRate is overwritten
	// with the engine's.
	Enhance dsp.Config

	// SilenceLimit is the sustained-silence span after which streaming
	// pauses. Default 3s.
	SilenceLimit time.Duration

	// MaxRetries is the transmission attempt budget per chunk. Default 3.
	MaxRetries int

	// RetryBackoff is the initial wait between attempts, doubling up to
	// [resilience.RetryConfig] limits. Default 50ms.
	RetryBackoff time.Duration

	// SendTimeout bounds a single transport send. Default 2s.
	SendTimeout time.Duration

	// MaxInboundPayload bounds accepted backend frame payloads in bytes.
	// Default 16384.
	MaxInboundPayload int

	// Net tunes network adaptation.
	Net netadapt.Config

	// Reconnect tunes transport re-establishment and its circuit breaker.
	Reconnect resilience.ReconnectorConfig
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Codec == 0 {
		c.Codec = wire.CodecPCM16
	}
	if c.CapturePeriod <= 0 {
		c.CapturePeriod = 10 * time.Millisecond
	}
	if c.PlaybackPeriod <= 0 {
		c.PlaybackPeriod = 10 * time.Millisecond
	}
	if c.SilenceLimit <= 0 {
		c.SilenceLimit = 3 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 2 * time.Second
	}
	if c.MaxInboundPayload <= 0 {
		c.MaxInboundPayload = 16384
	}
	c.Enhance.SampleRate = c.SampleRate
	if c.BufferBytes <= 0 {
		// netadapt normalizes its own defaults later; mirror the max-chunk
		// fallback here for ring sizing.
		maxChunk := c.Net.MaxChunk
		if maxChunk <= 0 {
			maxChunk = 8192
		}
		c.BufferBytes = 4 * maxChunk
	}
	return c
}

// Tuning is the subset of engine behavior that may be changed on a running
// engine without a restart. The streaming task applies it between windows.
type Tuning struct {
	GateThreshold   float64
	OverSubtraction float64
	AGCTarget       float64
	VADThreshold    float64
	SilenceLimit    time.Duration
}

// Option configures an [Engine] beyond its required dependencies.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to [slog.Default] with a component
// attribute.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the OpenTelemetry instrument set. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.met = m }
}

// Engine streams microphone audio to the backend and backend audio to the
// speaker. Construct with [New], drive with [Engine.Run], stop with
// [Engine.Stop]. All other methods are safe to call from any goroutine in
// any state.
type Engine struct {
	cfg Config
	dev audio.Device
	tr  transport.Transport
	log *slog.Logger
	met *observe.Metrics

	machine *machine
	stats   *statsCollector

	// mu guards the per-session fields below. Blocking work never happens
	// under it.
	mu           sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
	captureRing  *audio.Ring
	playbackRing *audio.Ring
	adapter      *netadapt.Adapter
	recon        *resilience.Reconnector

	// Hot-reload requests, drained by the streaming task between windows.
	tuneMu      sync.Mutex
	pendingTune *Tuning
	recalibrate bool
}

// New creates an engine over the given device and transport. Neither is
// touched until [Engine.Run].
func New(cfg Config, dev audio.Device, tr transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg.withDefaults(),
		dev:     dev,
		tr:      tr,
		machine: newMachine(),
		stats:   newStatsCollector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default().With("component", "engine")
	}
	if e.met == nil {
		e.met = observe.DefaultMetrics()
	}
	return e
}

// Run drives one full streaming session: initialization (peripheral start,
// transport establishment, noise-floor calibration), the task set, and
// teardown. It blocks until the session ends.
//
// Run returns nil after a clean stop, whether by [Engine.Stop] or by parent
// context cancellation. On any other failure it returns the error and
// leaves the engine in ERROR with endpoints closed but diagnostics
// ([Engine.Status], [Engine.Stats]) still queryable; [Engine.Stop] then
// returns it to IDLE. A second Run on a non-idle engine fails immediately.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer e.endRun()
	defer cancel()

	pipe, err := e.initialize(runCtx)
	if err != nil {
		if e.machine.state() == StateStopping {
			e.finishStop()
			return nil
		}
		err = fmt.Errorf("initialize: %w", err)
		e.fail(err)
		e.closeEndpoints()
		return err
	}
	if err := e.transitionTo(streamingPhase{since: time.Now()}); err != nil {
		// Stop raced initialization and won.
		e.finishStop()
		return nil
	}

	outcomes := make(chan netadapt.SendOutcome, outcomeBuf)
	adapter := netadapt.New(e.cfg.Net, outcomes, e.tr.Quality())
	e.mu.Lock()
	e.adapter = adapter
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return e.captureTask(gctx) })
	g.Go(func() error { return e.playbackTask(gctx) })
	g.Go(func() error { return e.streamTask(gctx, pipe, adapter, outcomes) })
	g.Go(func() error { return e.receiveTask(gctx) })
	g.Go(func() error { return adapter.Run(gctx) })
	g.Go(func() error { return e.watchAdapter(gctx, adapter) })
	err = g.Wait()

	if e.machine.state() != StateStopping && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// Parent context cancelled: a stop request by other means.
		_, _ = e.machine.transition(stoppingPhase{})
	}
	if e.machine.state() == StateStopping {
		if err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn("shutdown error", "err", err)
		}
		e.finishStop()
		return nil
	}

	e.fail(err)
	e.closeEndpoints()
	return err
}

// begin gates Run entry. The IDLE to INITIALIZING transition and the
// registration of the session cancel/done pair share one critical section
// so a racing [Engine.Stop] always finds both or neither.
func (e *Engine) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, err := e.machine.transition(initializingPhase{total: e.cfg.Enhance.CalibrationWindows})
	if err != nil {
		return nil, nil, err
	}
	e.stats.reset()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.log.Info("engine state", "from", from, "to", StateInitializing)
	e.met.EngineState.Record(ctx, int64(StateInitializing))
	return runCtx, cancel, nil
}

// endRun closes the done channel so Stop callers unblock. Deferred first in
// Run, so it fires after the teardown path has completed.
func (e *Engine) endRun() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	close(done)
}

// initialize allocates the ring buffers, starts the peripheral, establishes
// the transport, and calibrates the noise floor from captured ambience.
func (e *Engine) initialize(ctx context.Context) (*dsp.Pipeline, error) {
	captureRing, err := audio.NewRing(e.cfg.BufferBytes)
	if err != nil {
		return nil, err
	}
	playbackRing, err := audio.NewRing(e.cfg.BufferBytes)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.captureRing = captureRing
	e.playbackRing = playbackRing
	e.mu.Unlock()

	if err := e.dev.Start(ctx); err != nil {
		return nil, fmt.Errorf("audio device: %w", err)
	}

	recon := resilience.NewReconnector(e.tr, e.cfg.Reconnect)
	if err := recon.Establish(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.recon = recon
	e.mu.Unlock()

	pipe := dsp.New(e.cfg.Enhance)
	if err := e.calibrate(ctx, pipe); err != nil {
		return nil, err
	}
	return pipe, nil
}

// calibrate feeds captured ambience windows to the pipeline until the
// noise profile is ready. Progress is visible through [Engine.Status]; the
// audio is consumed, not transmitted.
func (e *Engine) calibrate(ctx context.Context, pipe *dsp.Pipeline) error {
	window := make([]int16, dsp.WindowSamples)
	buf := make([]byte, dsp.WindowBytes)
	fill := 0

	ticker := time.NewTicker(e.cfg.CapturePeriod)
	defer ticker.Stop()

	for !pipe.Calibrated() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		n, err := e.dev.ReadCapture(buf[fill:])
		if err != nil {
			return fmt.Errorf("audio device: %w", err)
		}
		fill += n
		if fill < len(buf) {
			continue
		}
		audio.SamplesInto(window, buf)
		pipe.Process(window)
		fill = 0

		done, total := pipe.CalibrationProgress()
		e.machine.refresh(initializingPhase{calibrated: done, total: total})
	}

	done, total := pipe.CalibrationProgress()
	e.log.Info("noise floor calibrated", "windows", done, "required", total)
	return nil
}

// Stop requests a cooperative shutdown and blocks until the session has
// torn down. Stopping an idle engine is a no-op; stopping a failed engine
// completes its teardown. Safe to call from any goroutine, concurrently
// and repeatedly.
func (e *Engine) Stop() error {
	e.mu.Lock()
	st := e.machine.state()
	if st == StateIdle {
		e.mu.Unlock()
		return nil
	}
	if st != StateStopping {
		if _, err := e.machine.transition(stoppingPhase{}); err != nil {
			e.mu.Unlock()
			return err
		}
		e.log.Info("engine state", "from", st, "to", StateStopping)
		e.met.EngineState.Record(context.Background(), int64(StateStopping))
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	// Run exits through finishStop on the cooperative path. If it had
	// already returned through the fatal path, the teardown is ours.
	if e.machine.state() == StateStopping {
		e.finishStop()
	}
	return nil
}

// finishStop completes the STOPPING phase: endpoints closed, a final stats
// snapshot flushed to the log, buffers released, state back to IDLE.
func (e *Engine) finishStop() {
	e.closeEndpoints()

	st := e.stats.snapshot()
	e.log.Info("session stats",
		"chunks_processed", st.ChunksProcessed,
		"chunks_sent", st.ChunksSent,
		"chunks_dropped", st.ChunksDropped,
		"voice_chunks", st.VoiceChunks,
		"silence_chunks", st.SilenceChunks,
		"network_retries", st.NetworkRetries,
		"capture_overruns", st.CaptureOverruns,
		"avg_latency", st.AvgLatency,
		"avg_chunk_bytes", st.AvgChunkBytes,
	)

	e.mu.Lock()
	e.captureRing = nil
	e.playbackRing = nil
	e.adapter = nil
	e.recon = nil
	e.mu.Unlock()

	if err := e.transitionTo(idlePhase{}); err != nil {
		e.log.Warn("teardown transition failed", "err", err)
	}
}

// closeEndpoints stops touching the peripheral and the network. Both
// closes are idempotent.
func (e *Engine) closeEndpoints() {
	if err := e.dev.Close(); err != nil && !errors.Is(err, audio.ErrDeviceClosed) {
		e.log.Warn("audio device close failed", "err", err)
	}
	if err := e.tr.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
		e.log.Warn("transport close failed", "err", err)
	}
}

// transitionTo applies a lifecycle move with logging and the state gauge.
func (e *Engine) transitionTo(next phase) error {
	from, err := e.machine.transition(next)
	if err != nil {
		return err
	}
	to := next.state()
	e.log.Info("engine state", "from", from, "to", to)
	e.met.EngineState.Record(context.Background(), int64(to))
	return nil
}

// fail moves the engine to ERROR carrying the diagnostic. The first
// failure wins; a stop already in progress also wins.
func (e *Engine) fail(err error) {
	if terr := e.transitionTo(errorPhase{err: err, at: time.Now()}); terr != nil {
		e.log.Debug("failure after lifecycle settled", "err", err)
		return
	}
	e.log.Error("engine failed", "err", err)
}

// watchAdapter mirrors adaptation decisions into the telemetry gauges.
func (e *Engine) watchAdapter(ctx context.Context, adapter *netadapt.Adapter) error {
	updates := adapter.Updates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-updates:
			e.met.LinkTier.Record(ctx, int64(s.Tier))
			e.met.ChunkSize.Record(ctx, int64(s.ChunkSize))
			e.log.Info("link adapted",
				"tier", s.Tier, "chunk_size", s.ChunkSize,
				"pacing", s.Pacing, "failure_streak", s.FailureStreak)
		}
	}
}

// Status is a point-in-time diagnostics view assembled from the lifecycle
// phase, the session counters, and the current network decision.
type Status struct {
	State State `json:"state"`

	// Calibration progress, meaningful while INITIALIZING.
	CalibrationDone  int `json:"calibration_done,omitempty"`
	CalibrationTotal int `json:"calibration_total,omitempty"`

	// PausedSince is the silence-entry instant, meaningful while
	// PAUSED_SILENCE.
	PausedSince time.Time `json:"paused_since,omitzero"`

	// Err is the fatal diagnostic, meaningful while ERROR.
	Err string `json:"error,omitempty"`

	Stats   Stats          `json:"stats"`
	Network netadapt.State `json:"network"`
}

// Status returns the current diagnostics view. Available in every state,
// ERROR included.
func (e *Engine) Status() Status {
	st := Status{Stats: e.stats.snapshot()}

	switch p := e.machine.current().(type) {
	case initializingPhase:
		st.State = StateInitializing
		st.CalibrationDone, st.CalibrationTotal = p.calibrated, p.total
	case pausedPhase:
		st.State = StatePausedSilence
		st.PausedSince = p.since
	case errorPhase:
		st.State = StateError
		st.Err = p.err.Error()
	default:
		st.State = p.state()
	}

	e.mu.Lock()
	adapter := e.adapter
	e.mu.Unlock()
	if adapter != nil {
		st.Network = adapter.Current()
	}
	return st
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.machine.state()
}

// Stats returns a value snapshot of the session counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// ResetStats zeroes the counters and the rolling latency window.
func (e *Engine) ResetStats() {
	e.stats.reset()
}

// ApplyTuning schedules a hot tunables swap. The streaming task applies it
// between enhancement windows, so a chunk is never processed under mixed
// settings. Applying to a non-streaming engine stores the tuning for the
// first window after streaming starts.
func (e *Engine) ApplyTuning(t Tuning) {
	e.tuneMu.Lock()
	defer e.tuneMu.Unlock()
	e.pendingTune = &t
}

// Recalibrate schedules a noise-floor re-estimation. While the new profile
// accumulates the pipeline passes audio through unreduced, so the stream
// keeps flowing.
func (e *Engine) Recalibrate() {
	e.tuneMu.Lock()
	defer e.tuneMu.Unlock()
	e.recalibrate = true
}

// takeTuning drains pending hot-reload requests. Called by the streaming
// task between windows.
func (e *Engine) takeTuning() (*Tuning, bool) {
	e.tuneMu.Lock()
	defer e.tuneMu.Unlock()
	t, recal := e.pendingTune, e.recalibrate
	e.pendingTune, e.recalibrate = nil, false
	return t, recal
}

// rings returns the session buffers, nil outside a session.
func (e *Engine) rings() (capture, playback *audio.Ring) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.captureRing, e.playbackRing
}

// reconnector returns the session reconnector, nil outside a session.
func (e *Engine) reconnector() *resilience.Reconnector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recon
}
