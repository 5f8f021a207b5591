package engine

import (
	"context"
	"errors"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/wire"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
)

// receiveTask moves backend voice frames into the playback ring. Every
// frame is validated whole before a single byte reaches the ring; a frame
// that fails validation is counted and dropped, and the link is left
// alone. The ring write evicts oldest audio on overflow: stale synthesized
// speech is worth less than fresh.
//
// Reconnection is the send path's concern. The frames channel stays open
// across redials and closes only when the transport is closed for good.
func (e *Engine) receiveTask(ctx context.Context) error {
	_, ring := e.rings()
	frames := e.tr.Frames()
	// µ-law payloads double when decoded.
	pcmBuf := make([]byte, 2*e.cfg.MaxInboundPayload)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-frames:
			if !ok {
				if e.machine.state() == StateStopping {
					return nil
				}
				return errors.New("receive: inbound stream closed")
			}

			in, err := wire.DecodeInbound(data, e.cfg.MaxInboundPayload)
			if err != nil {
				e.stats.addRejected()
				e.met.RecordInboundRejected(ctx, rejectReason(err))
				e.log.Warn("inbound frame rejected", "bytes", len(data), "err", err)
				continue
			}

			pcm := in.Payload
			if in.Codec == wire.CodecMuLaw {
				n := audio.MuLawDecode(pcmBuf, in.Payload)
				pcm = pcmBuf[:n]
			}

			if w := ring.Write(pcm); w < len(pcm) {
				rest := pcm[w:]
				ring.Discard(len(rest))
				ring.Write(rest)
				e.stats.addPlaybackEviction()
				e.met.PlaybackEvictions.Add(ctx, 1)
			}
			e.stats.addInbound()
			e.met.InboundFrames.Add(ctx, 1)
		}
	}
}

// rejectReason folds a validation error into a low-cardinality metric
// attribute.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, wire.ErrOversize):
		return "oversize"
	case errors.Is(err, wire.ErrCodec):
		return "codec"
	case errors.Is(err, wire.ErrShortFrame):
		return "short"
	case errors.Is(err, wire.ErrLength):
		return "length"
	default:
		return "invalid"
	}
}
