package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/dsp"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/netadapt"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/resilience"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/wire"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// streamTask is the enhancement and transmission loop. On the analysis
// window cadence it drains the capture ring one window at a time, runs the
// enhancement pipeline in place, tracks the silence-pause policy, and
// carves outbound chunks at whatever size the network adapter currently
// recommends.
//
// The task is the only writer of the STREAMING and PAUSED_SILENCE states,
// so it can mirror them in a local flag without re-reading the machine.
func (e *Engine) streamTask(ctx context.Context, pipe *dsp.Pipeline, adapter *netadapt.Adapter, outcomes chan<- netadapt.SendOutcome) error {
	ring, _ := e.rings()
	windowDur := dsp.WindowDuration(e.cfg.SampleRate)
	silenceLimit := e.cfg.SilenceLimit

	window := make([]int16, dsp.WindowSamples)
	windowBytes := make([]byte, dsp.WindowBytes)
	assembly := make([]byte, 0, e.cfg.BufferBytes)

	snd := newChunkSender(e, adapter, outcomes)
	defer snd.stopPacer()

	paused := false
	voice := false
	var silentFor time.Duration

	ticker := time.NewTicker(windowDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for ring.Len() >= dsp.WindowBytes {
			if t, recal := e.takeTuning(); t != nil || recal {
				if t != nil {
					pipe.Retune(dsp.Tuning{
						GateThreshold:   t.GateThreshold,
						OverSubtraction: t.OverSubtraction,
						AGCTarget:       t.AGCTarget,
						VADThreshold:    t.VADThreshold,
					})
					if t.SilenceLimit > 0 {
						silenceLimit = t.SilenceLimit
					}
					e.log.Info("tuning applied",
						"gate", t.GateThreshold, "over_subtraction", t.OverSubtraction,
						"agc_target", t.AGCTarget, "vad_threshold", t.VADThreshold)
				}
				if recal {
					pipe.Recalibrate()
					e.log.Info("noise recalibration started")
				}
			}

			ring.Read(windowBytes)
			audio.SamplesInto(window, windowBytes)
			t0 := time.Now()
			m := pipe.Process(window)
			e.met.WindowDuration.Record(ctx, time.Since(t0).Seconds())
			audio.PCMInto(windowBytes, window)

			if paused {
				// Windows are processed and discarded so the noise
				// profile and gain stay warm, but nothing is assembled
				// until speech resumes.
				if m.State != dsp.VADSpeech {
					continue
				}
				if err := e.transitionTo(streamingPhase{since: time.Now()}); err != nil {
					continue
				}
				paused = false
				silentFor = 0
				e.log.Info("voice detected, streaming resumed",
					"energy", m.Energy, "zero_cross", m.ZeroCrossRate)
			}

			// The onset window itself is part of the stream.
			assembly = append(assembly, windowBytes...)
			if m.State == dsp.VADSpeech {
				voice = true
				silentFor = 0
			} else {
				silentFor += windowDur
			}

			for {
				pcmNeed := pcmPerChunk(e.cfg.Codec, adapter.Current().ChunkSize)
				if len(assembly) < pcmNeed {
					break
				}
				e.stats.addProcessed(voice)
				if err := snd.send(ctx, assembly[:pcmNeed], voice); err != nil {
					return err
				}
				voice = false
				rem := copy(assembly, assembly[pcmNeed:])
				assembly = assembly[:rem]
			}

			if silentFor >= silenceLimit {
				if len(assembly) > 0 {
					// Flush the partial chunk so the tail of the
					// utterance is not stranded across the pause.
					e.stats.addProcessed(voice)
					if err := snd.send(ctx, assembly, voice); err != nil {
						return err
					}
					voice = false
					assembly = assembly[:0]
				}
				if err := e.transitionTo(pausedPhase{since: time.Now()}); err != nil {
					continue
				}
				paused = true
				silentFor = 0
				e.log.Info("sustained silence, streaming paused",
					"limit", silenceLimit, "silence_streak", m.SilenceStreak)
			}
		}
	}
}

// pcmPerChunk returns how many enhanced PCM bytes one chunk of payloadSize
// consumes under codec. µ-law compands two PCM bytes into one payload byte.
func pcmPerChunk(codec wire.Codec, payloadSize int) int {
	if codec == wire.CodecMuLaw {
		return 2 * payloadSize
	}
	return payloadSize
}

// chunkSender owns the per-session transmission state: the wrapping
// sequence counter, the timestamp epoch, reusable encode buffers, and the
// pacing timer. One exists per streamTask; none of it is shared.
type chunkSender struct {
	e        *Engine
	adapter  *netadapt.Adapter
	outcomes chan<- netadapt.SendOutcome
	start    time.Time
	seq      uint16
	frame    []byte
	scratch  []byte
	pacer    *time.Timer
}

func newChunkSender(e *Engine, adapter *netadapt.Adapter, outcomes chan<- netadapt.SendOutcome) *chunkSender {
	pacer := time.NewTimer(time.Hour)
	if !pacer.Stop() {
		<-pacer.C
	}
	return &chunkSender{
		e:        e,
		adapter:  adapter,
		outcomes: outcomes,
		start:    time.Now(),
		frame:    make([]byte, 0, wire.OutboundHeaderSize+8192),
		pacer:    pacer,
	}
}

func (s *chunkSender) stopPacer() {
	s.pacer.Stop()
}

// send encodes pcm under the configured codec and transmits it with the
// bounded retry budget. A chunk that exhausts the budget is dropped and
// counted, never re-queued; sequence numbers advance regardless so the
// backend can see the gap. The returned error is non-nil only for fatal
// conditions: context end, or a link the reconnector gave up on.
func (s *chunkSender) send(ctx context.Context, pcm []byte, voice bool) error {
	e := s.e

	payload := pcm
	if e.cfg.Codec == wire.CodecMuLaw {
		need := len(pcm) / 2
		if cap(s.scratch) < need {
			s.scratch = make([]byte, need)
		}
		n := audio.MuLawEncode(s.scratch[:need], pcm)
		payload = s.scratch[:n]
	}

	c := wire.Chunk{
		Codec:     e.cfg.Codec,
		Voice:     voice,
		Seq:       s.seq,
		Timestamp: uint32(time.Since(s.start) / time.Millisecond),
		Payload:   payload,
	}
	s.seq++

	var err error
	s.frame, err = wire.AppendChunk(s.frame[:0], c)
	if err != nil {
		return fmt.Errorf("encode chunk %d: %w", c.Seq, err)
	}

	t0 := time.Now()
	attempts, err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: e.cfg.MaxRetries,
		Backoff:     e.cfg.RetryBackoff,
	}, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
		defer cancel()
		serr := e.tr.Send(sendCtx, s.frame)
		s.report(serr == nil)
		return serr
	})
	latency := time.Since(t0)

	switch {
	case err == nil:
		e.stats.addSent(len(payload), latency, attempts-1)
		e.met.RecordChunkSent(ctx, c.Codec.String(), len(payload), latency)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		e.stats.addDropped(attempts)
		e.met.RecordChunkDropped(ctx, attempts)
		e.log.Warn("chunk dropped",
			"seq", c.Seq, "attempts", attempts, "bytes", len(payload), "err", err)
		if rerr := e.reconnector().Establish(ctx); rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reestablish link: %w", rerr)
		}
	}

	return s.pace(ctx)
}

// report hands one attempt outcome to the adapter without ever blocking
// the audio path.
func (s *chunkSender) report(ok bool) {
	select {
	case s.outcomes <- netadapt.SendOutcome{OK: ok}:
	default:
	}
}

// pace waits out the adapter's inter-chunk delay, if any.
func (s *chunkSender) pace(ctx context.Context) error {
	d := s.adapter.Current().Pacing
	if d <= 0 {
		return nil
	}
	s.pacer.Reset(d)
	select {
	case <-ctx.Done():
		if !s.pacer.Stop() {
			<-s.pacer.C
		}
		return ctx.Err()
	case <-s.pacer.C:
		return nil
	}
}
