package engine

import (
	"sync"
	"time"
)

// latencyWindow is the number of recent send latencies averaged in
// [Stats.AvgLatency].
const latencyWindow = 32

// Stats is a value snapshot of the engine counters. Callers never receive a
// live reference; mutate nothing, read everything.
type Stats struct {
	// ChunksProcessed counts chunks assembled for transmission, delivered
	// or not.
	ChunksProcessed uint64

	// ChunksSent counts chunks delivered to the backend.
	ChunksSent uint64

	// ChunksDropped counts chunks abandoned after the retry budget.
	ChunksDropped uint64

	// VoiceChunks and SilenceChunks split ChunksProcessed by the voice
	// flag.
	VoiceChunks   uint64
	SilenceChunks uint64

	// NetworkRetries counts failed transmission attempts.
	NetworkRetries uint64

	// CaptureOverruns counts oldest-audio evictions from the capture
	// buffer.
	CaptureOverruns uint64

	// PlaybackEvictions counts oldest-audio evictions from the playback
	// buffer.
	PlaybackEvictions uint64

	// InboundFrames counts backend frames accepted for playback.
	InboundFrames uint64

	// InboundRejected counts malformed backend frames dropped whole.
	InboundRejected uint64

	// AvgLatency is the mean send latency over the last [latencyWindow]
	// deliveries, zero before the first.
	AvgLatency time.Duration

	// AvgChunkBytes is the mean payload size over all delivered chunks,
	// zero before the first.
	AvgChunkBytes int
}

// statsCollector owns the counters behind one short-held mutex. Collection
// keeps working in every lifecycle state, ERROR included, so post-mortem
// snapshots stay meaningful.
type statsCollector struct {
	mu sync.Mutex

	processed  uint64
	sent       uint64
	dropped    uint64
	voice      uint64
	silence    uint64
	retries    uint64
	overruns   uint64
	evictions  uint64
	inbound    uint64
	rejected   uint64
	sentBytes  uint64
	latencies  [latencyWindow]time.Duration
	latencyLen int
	latencyPos int
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

// addProcessed records one assembled chunk and its voice classification.
func (s *statsCollector) addProcessed(voice bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	if voice {
		s.voice++
	} else {
		s.silence++
	}
}

// addSent records a delivered chunk: payload size, send latency, and the
// failed attempts that preceded the delivery.
func (s *statsCollector) addSent(payloadBytes int, latency time.Duration, failedAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	s.sentBytes += uint64(payloadBytes)
	s.retries += uint64(failedAttempts)
	s.latencies[s.latencyPos] = latency
	s.latencyPos = (s.latencyPos + 1) % latencyWindow
	if s.latencyLen < latencyWindow {
		s.latencyLen++
	}
}

// addDropped records a chunk abandoned after failedAttempts tries.
func (s *statsCollector) addDropped(failedAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
	s.retries += uint64(failedAttempts)
}

func (s *statsCollector) addCaptureOverrun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overruns++
}

func (s *statsCollector) addPlaybackEviction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictions++
}

func (s *statsCollector) addInbound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound++
}

func (s *statsCollector) addRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

// snapshot returns a value copy of every counter plus the derived averages.
func (s *statsCollector) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ChunksProcessed:   s.processed,
		ChunksSent:        s.sent,
		ChunksDropped:     s.dropped,
		VoiceChunks:       s.voice,
		SilenceChunks:     s.silence,
		NetworkRetries:    s.retries,
		CaptureOverruns:   s.overruns,
		PlaybackEvictions: s.evictions,
		InboundFrames:     s.inbound,
		InboundRejected:   s.rejected,
	}
	if s.latencyLen > 0 {
		var sum time.Duration
		for i := 0; i < s.latencyLen; i++ {
			sum += s.latencies[i]
		}
		st.AvgLatency = sum / time.Duration(s.latencyLen)
	}
	if s.sent > 0 {
		st.AvgChunkBytes = int(s.sentBytes / s.sent)
	}
	return st
}

// reset zeroes every counter and the rolling-latency window.
func (s *statsCollector) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed, s.sent, s.dropped = 0, 0, 0
	s.voice, s.silence, s.retries = 0, 0, 0
	s.overruns, s.evictions = 0, 0
	s.inbound, s.rejected = 0, 0
	s.sentBytes = 0
	s.latencies = [latencyWindow]time.Duration{}
	s.latencyLen, s.latencyPos = 0, 0
}
