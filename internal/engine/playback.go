package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// playbackTask feeds the speaker from the playback ring on a fixed period.
// Bytes the device cannot absorb in one write stay in a carry slice and go
// out first on the next tick, so nothing is written twice or skipped. An
// empty ring is not an error; the device layer conceals the gap.
func (e *Engine) playbackTask(ctx context.Context) error {
	_, ring := e.rings()
	format := audio.Format{SampleRate: e.cfg.SampleRate, Channels: audio.MonoChannels}
	buf := make([]byte, format.Bytes(2*e.cfg.PlaybackPeriod))
	var carry []byte

	ticker := time.NewTicker(e.cfg.PlaybackPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if len(carry) == 0 {
			n := ring.Read(buf)
			if n == 0 {
				continue
			}
			carry = buf[:n]
		}

		n, err := e.dev.WritePlayback(carry)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("playback: %w", err)
		}
		carry = carry[n:]
	}
}
