package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/dsp"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// captureTask drains the microphone into the capture ring on a fixed
// period. The write never blocks: when the ring is full the oldest audio
// is evicted so the freshest speech survives a downstream stall, and the
// overrun is counted.
func (e *Engine) captureTask(ctx context.Context) error {
	ring, _ := e.rings()
	format := audio.Format{SampleRate: e.cfg.SampleRate, Channels: audio.MonoChannels}
	buf := make([]byte, max(format.Bytes(2*e.cfg.CapturePeriod), dsp.WindowBytes))

	ticker := time.NewTicker(e.cfg.CapturePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := e.dev.ReadCapture(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("capture: %w", err)
		}
		if n == 0 {
			continue
		}

		p := buf[:n]
		if w := ring.Write(p); w < len(p) {
			rest := p[w:]
			ring.Discard(len(rest))
			ring.Write(rest)
			e.stats.addCaptureOverrun()
			e.met.CaptureOverruns.Add(ctx, 1)
		}
	}
}
