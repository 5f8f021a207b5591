// Package netadapt sizes outbound audio chunks to what the radio can
// actually carry. A periodic evaluation classifies recent link quality
// into one of four tiers and eases the chunk size toward the tier's
// target one step at a time; a streak of transmission failures forces an
// immediate shrink without waiting for the timer.
//
// The adapter consumes send outcomes and transport quality reports from
// channels and publishes immutable [State] snapshots on a channel. It
// never calls back into other components.
package netadapt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
)

// Tier classifies link quality from best to worst.
type Tier int

const (
	TierExcellent Tier = iota
	TierGood
	TierFair
	TierPoor
)

// String returns the wire-log spelling of the tier.
func (t Tier) String() string {
	switch t {
	case TierExcellent:
		return "EXCELLENT"
	case TierGood:
		return "GOOD"
	case TierFair:
		return "FAIR"
	case TierPoor:
		return "POOR"
	default:
		return "UNKNOWN"
	}
}

// Signal-strength tier boundaries in dBm, and the round-trip fallback
// used when the backend has no radio readout.
const (
	rssiExcellent = -50
	rssiGood      = -60
	rssiFair      = -70

	rttExcellent = 40 * time.Millisecond
	rttGood      = 120 * time.Millisecond
	rttFair      = 300 * time.Millisecond
)

// Inter-chunk pacing per tier. Poorer links get more air between sends.
const (
	pacingExcellent = 0
	pacingGood      = 10 * time.Millisecond
	pacingFair      = 20 * time.Millisecond
	pacingPoor      = 40 * time.Millisecond
)

// SendOutcome reports one transmission attempt to the adapter.
type SendOutcome struct {
	// OK is true when the attempt was acknowledged by the transport.
	OK bool
}

// State is an immutable snapshot of the adapter's current decision.
// The streaming task reads ChunkSize and Pacing before assembling every
// chunk.
type State struct {
	// Tier is the current link classification.
	Tier Tier

	// ChunkSize is the outbound chunk payload size in bytes.
	ChunkSize int

	// Pacing is the minimum delay between consecutive chunk sends.
	Pacing time.Duration

	// FailureStreak counts consecutive failed attempts at snapshot time.
	FailureStreak int

	// LastRSSI is the most recent signal-strength readout in dBm, 0 when
	// none was ever delivered.
	LastRSSI int

	// LastRTT is the most recent round-trip probe, 0 when unknown.
	LastRTT time.Duration
}

// Config tunes the adapter. The zero value gets usable defaults; chunk
// bounds are normalized so min <= base <= max always holds.
type Config struct {
	// BaseChunk is the starting chunk size and the GOOD-tier target.
	// Default 4096.
	BaseChunk int

	// MinChunk and MaxChunk bound every decision. Defaults 1024 and
	// 8192.
	MinChunk int
	MaxChunk int

	// Step is how many bytes one evaluation may grow or shrink the
	// chunk. Default 512.
	Step int

	// Interval is the evaluation cadence. Default 2s.
	Interval time.Duration

	// FailureStreak is the consecutive-failure count that forces an
	// immediate shrink. Default 3.
	FailureStreak int

	// SuccessStreak is the consecutive-success count required before
	// the chunk size may grow again. Default 5.
	SuccessStreak int
}

func (c Config) withDefaults() Config {
	if c.BaseChunk <= 0 {
		c.BaseChunk = 4096
	}
	if c.MinChunk <= 0 {
		c.MinChunk = 1024
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = 8192
	}
	if c.MaxChunk < c.MinChunk {
		c.MaxChunk = c.MinChunk
	}
	if c.BaseChunk < c.MinChunk {
		c.BaseChunk = c.MinChunk
	}
	if c.BaseChunk > c.MaxChunk {
		c.BaseChunk = c.MaxChunk
	}
	if c.Step <= 0 {
		c.Step = 512
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.FailureStreak <= 0 {
		c.FailureStreak = 3
	}
	if c.SuccessStreak <= 0 {
		c.SuccessStreak = 5
	}
	return c
}

// Adapter owns the chunk-sizing decision. Construct with [New], feed it
// via the channels passed there, and run exactly one [Adapter.Run].
type Adapter struct {
	cfg      Config
	outcomes <-chan SendOutcome
	quality  <-chan transport.QualityReport
	updates  chan State

	// Mutated only by Run; read through Current.
	tier          Tier
	size          int
	failStreak    int
	successStreak int
	lastRSSI      int
	lastRTT       time.Duration

	mu      sync.Mutex
	current State
}

// New creates an adapter consuming send outcomes and quality reports
// from the given channels. Closed channels are tolerated; evaluation
// then runs on timer cadence alone.
func New(cfg Config, outcomes <-chan SendOutcome, quality <-chan transport.QualityReport) *Adapter {
	cfg = cfg.withDefaults()
	a := &Adapter{
		cfg:      cfg,
		outcomes: outcomes,
		quality:  quality,
		updates:  make(chan State, 1),
		tier:     TierGood,
		size:     cfg.BaseChunk,
	}
	a.setCurrent(a.snapshot())
	return a
}

// Updates returns the snapshot channel. It holds at most one element:
// a slow consumer sees the latest decision, never a backlog.
func (a *Adapter) Updates() <-chan State {
	return a.updates
}

// Current returns the latest published snapshot.
func (a *Adapter) Current() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Run evaluates until ctx ends. It is the only goroutine that mutates
// the decision state.
func (a *Adapter) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	outcomes, quality := a.outcomes, a.quality
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-outcomes:
			if !ok {
				outcomes = nil
				continue
			}
			a.recordOutcome(out)
		case q, ok := <-quality:
			if !ok {
				quality = nil
				continue
			}
			a.recordQuality(q)
		case <-ticker.C:
			a.evaluate()
		}
	}
}

// recordOutcome updates the streaks. Hitting the failure streak forces
// an immediate one-step shrink and tier downgrade.
func (a *Adapter) recordOutcome(out SendOutcome) {
	if out.OK {
		a.successStreak++
		a.failStreak = 0
		return
	}
	a.successStreak = 0
	a.failStreak++
	if a.failStreak%a.cfg.FailureStreak != 0 {
		return
	}

	if a.tier < TierPoor {
		a.tier++
	}
	a.size = max(a.size-a.cfg.Step, a.cfg.MinChunk)
	slog.Warn("link failure streak, shrinking chunk",
		"streak", a.failStreak, "tier", a.tier, "chunk_size", a.size)
	a.publish()
}

func (a *Adapter) recordQuality(q transport.QualityReport) {
	if q.RSSI != 0 {
		a.lastRSSI = q.RSSI
	}
	if q.RTT > 0 {
		a.lastRTT = q.RTT
	}
}

// evaluate moves the tier one step toward the measured classification,
// then the chunk size one step toward the tier target. Growth is gated
// on a sustained success streak.
func (a *Adapter) evaluate() {
	measured := a.classify()
	tier := a.tier
	if measured > tier {
		tier++
	} else if measured < tier {
		tier--
	}

	target := a.tierTarget(tier)
	size := a.size
	if size < target && a.successStreak >= a.cfg.SuccessStreak {
		size = min(size+a.cfg.Step, target)
	} else if size > target {
		size = max(size-a.cfg.Step, target)
	}

	if tier == a.tier && size == a.size {
		return
	}
	a.tier = tier
	a.size = size
	slog.Debug("link tier evaluated",
		"tier", tier, "chunk_size", size, "rssi", a.lastRSSI, "rtt", a.lastRTT)
	a.publish()
}

// classify maps the latest measurements to a tier. Signal strength wins
// when available; otherwise round-trip time decides; with no data the
// current tier stands.
func (a *Adapter) classify() Tier {
	if a.lastRSSI != 0 {
		switch {
		case a.lastRSSI >= rssiExcellent:
			return TierExcellent
		case a.lastRSSI >= rssiGood:
			return TierGood
		case a.lastRSSI >= rssiFair:
			return TierFair
		default:
			return TierPoor
		}
	}
	if a.lastRTT > 0 {
		switch {
		case a.lastRTT <= rttExcellent:
			return TierExcellent
		case a.lastRTT <= rttGood:
			return TierGood
		case a.lastRTT <= rttFair:
			return TierFair
		default:
			return TierPoor
		}
	}
	return a.tier
}

// tierTarget returns the chunk size the tier is easing toward.
func (a *Adapter) tierTarget(t Tier) int {
	switch t {
	case TierExcellent:
		return a.cfg.MaxChunk
	case TierGood:
		return a.cfg.BaseChunk
	case TierFair:
		return max(a.cfg.BaseChunk/2, a.cfg.MinChunk)
	default:
		return a.cfg.MinChunk
	}
}

func pacing(t Tier) time.Duration {
	switch t {
	case TierExcellent:
		return pacingExcellent
	case TierGood:
		return pacingGood
	case TierFair:
		return pacingFair
	default:
		return pacingPoor
	}
}

func (a *Adapter) snapshot() State {
	return State{
		Tier:          a.tier,
		ChunkSize:     a.size,
		Pacing:        pacing(a.tier),
		FailureStreak: a.failStreak,
		LastRSSI:      a.lastRSSI,
		LastRTT:       a.lastRTT,
	}
}

// publish stores the snapshot and replaces any unread update so the
// channel always carries the newest decision.
func (a *Adapter) publish() {
	s := a.snapshot()
	a.setCurrent(s)
	for {
		select {
		case a.updates <- s:
			return
		default:
			select {
			case <-a.updates:
			default:
			}
		}
	}
}

func (a *Adapter) setCurrent(s State) {
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
}
