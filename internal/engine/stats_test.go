package engine

import (
	"testing"
	"time"
)

func TestStatsCollectorCounts(t *testing.T) {
	c := newStatsCollector()

	c.addProcessed(true)
	c.addProcessed(true)
	c.addProcessed(false)
	c.addSent(1024, 10*time.Millisecond, 0)
	c.addSent(2048, 20*time.Millisecond, 2)
	c.addDropped(3)
	c.addCaptureOverrun()
	c.addPlaybackEviction()
	c.addInbound()
	c.addRejected()

	got := c.snapshot()
	if got.ChunksProcessed != 3 {
		t.Errorf("ChunksProcessed = %d, want 3", got.ChunksProcessed)
	}
	if got.VoiceChunks != 2 || got.SilenceChunks != 1 {
		t.Errorf("voice/silence = %d/%d, want 2/1", got.VoiceChunks, got.SilenceChunks)
	}
	if got.ChunksSent != 2 {
		t.Errorf("ChunksSent = %d, want 2", got.ChunksSent)
	}
	if got.ChunksDropped != 1 {
		t.Errorf("ChunksDropped = %d, want 1", got.ChunksDropped)
	}
	if got.NetworkRetries != 5 {
		t.Errorf("NetworkRetries = %d, want 5", got.NetworkRetries)
	}
	if got.AvgLatency != 15*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 15ms", got.AvgLatency)
	}
	if got.AvgChunkBytes != 1536 {
		t.Errorf("AvgChunkBytes = %d, want 1536", got.AvgChunkBytes)
	}
	if got.CaptureOverruns != 1 || got.PlaybackEvictions != 1 {
		t.Errorf("overruns/evictions = %d/%d, want 1/1", got.CaptureOverruns, got.PlaybackEvictions)
	}
	if got.InboundFrames != 1 || got.InboundRejected != 1 {
		t.Errorf("inbound accepted/rejected = %d/%d, want 1/1", got.InboundFrames, got.InboundRejected)
	}
}

func TestStatsLatencyWindowKeepsRecent(t *testing.T) {
	c := newStatsCollector()
	for i := 1; i <= 40; i++ {
		c.addSent(512, time.Duration(i)*time.Millisecond, 0)
	}

	// Only the newest 32 samples (9ms..40ms) remain in the window.
	want := 24500 * time.Microsecond
	if got := c.snapshot().AvgLatency; got != want {
		t.Errorf("AvgLatency = %v, want %v", got, want)
	}
}

func TestStatsAvgZeroWhenNothingSent(t *testing.T) {
	c := newStatsCollector()
	c.addProcessed(false)
	c.addDropped(2)

	got := c.snapshot()
	if got.AvgLatency != 0 {
		t.Errorf("AvgLatency = %v, want 0", got.AvgLatency)
	}
	if got.AvgChunkBytes != 0 {
		t.Errorf("AvgChunkBytes = %d, want 0", got.AvgChunkBytes)
	}
}

func TestStatsResetClearsEverything(t *testing.T) {
	c := newStatsCollector()
	c.addProcessed(true)
	c.addSent(1024, 5*time.Millisecond, 1)
	c.addDropped(2)
	c.addInbound()
	c.reset()

	if got := c.snapshot(); got != (Stats{}) {
		t.Errorf("snapshot after reset = %+v, want zero", got)
	}

	// The collector stays usable after a reset.
	c.addSent(2048, 8*time.Millisecond, 0)
	got := c.snapshot()
	if got.ChunksSent != 1 || got.AvgLatency != 8*time.Millisecond || got.AvgChunkBytes != 2048 {
		t.Errorf("post-reset snapshot = %+v", got)
	}
}
