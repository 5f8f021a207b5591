// Package wire defines the binary frame layout spoken between the device
// and the speech endpoint. Outbound frames carry enhanced microphone audio
// with sequencing metadata; inbound frames carry synthesized voice back for
// playback.
//
// All multi-byte fields are big-endian. The codec owns exact byte layout
// and validation; sequence numbers and timestamps are assigned by the
// caller.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame sizes in bytes.
const (
	// OutboundHeaderSize is the fixed header of a device-to-cloud frame:
	// [flags:1][sequence:2][timestamp:4][length:2].
	OutboundHeaderSize = 9

	// InboundHeaderSize is the fixed header of a cloud-to-device frame:
	// [flags:1][length:2].
	InboundHeaderSize = 3

	// MaxPayload is the largest payload the length field can describe.
	MaxPayload = 1<<16 - 1
)

// Flag byte layout: the high nibble carries the payload codec, bit 0 the
// voice-presence flag. The remaining bits are reserved and sent as zero.
const flagVoice = 0x01

// Codec identifies the payload encoding of a frame.
type Codec uint8

const (
	// CodecPCM16 is raw little-endian 16-bit mono PCM.
	CodecPCM16 Codec = 0x1

	// CodecMuLaw is G.711 mu-law companded mono audio.
	CodecMuLaw Codec = 0x2
)

// IsValid reports whether c names a known payload encoding.
func (c Codec) IsValid() bool {
	return c == CodecPCM16 || c == CodecMuLaw
}

// String returns the configuration-file spelling of the codec.
func (c Codec) String() string {
	switch c {
	case CodecPCM16:
		return "pcm16"
	case CodecMuLaw:
		return "mulaw"
	default:
		return fmt.Sprintf("unknown(0x%x)", uint8(c))
	}
}

// Frame validation failures. Callers match with [errors.Is] to decide
// whether to count and drop or to treat the link as broken.
var (
	ErrShortFrame = errors.New("frame shorter than header")
	ErrLength     = errors.New("length field does not match frame size")
	ErrOversize   = errors.New("payload exceeds limit")
	ErrCodec      = errors.New("unknown payload codec")
)

// Chunk is one outbound unit of enhanced audio. Sequence numbers wrap at
// 16 bits; Timestamp is milliseconds since the session started streaming.
type Chunk struct {
	Codec     Codec
	Voice     bool
	Seq       uint16
	Timestamp uint32
	Payload   []byte
}

// AppendChunk appends the encoded frame for c to dst and returns the
// extended slice. The payload is copied in full or not at all.
func AppendChunk(dst []byte, c Chunk) ([]byte, error) {
	if !c.Codec.IsValid() {
		return dst, fmt.Errorf("%w: 0x%x", ErrCodec, uint8(c.Codec))
	}
	if len(c.Payload) > MaxPayload {
		return dst, fmt.Errorf("%w: %d > %d", ErrOversize, len(c.Payload), MaxPayload)
	}

	flags := uint8(c.Codec) << 4
	if c.Voice {
		flags |= flagVoice
	}
	dst = append(dst, flags)
	dst = binary.BigEndian.AppendUint16(dst, c.Seq)
	dst = binary.BigEndian.AppendUint32(dst, c.Timestamp)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(c.Payload)))
	return append(dst, c.Payload...), nil
}

// EncodeChunk returns the encoded frame for c in a fresh slice.
func EncodeChunk(c Chunk) ([]byte, error) {
	return AppendChunk(make([]byte, 0, OutboundHeaderSize+len(c.Payload)), c)
}

// DecodeChunk parses an outbound frame. The returned payload aliases data.
func DecodeChunk(data []byte) (Chunk, error) {
	if len(data) < OutboundHeaderSize {
		return Chunk{}, fmt.Errorf("%w: %d < %d", ErrShortFrame, len(data), OutboundHeaderSize)
	}

	flags := data[0]
	c := Chunk{
		Codec:     Codec(flags >> 4),
		Voice:     flags&flagVoice != 0,
		Seq:       binary.BigEndian.Uint16(data[1:3]),
		Timestamp: binary.BigEndian.Uint32(data[3:7]),
	}
	if !c.Codec.IsValid() {
		return Chunk{}, fmt.Errorf("%w: 0x%x", ErrCodec, uint8(c.Codec))
	}

	n := int(binary.BigEndian.Uint16(data[7:9]))
	if len(data) != OutboundHeaderSize+n {
		return Chunk{}, fmt.Errorf("%w: header says %d payload bytes, frame has %d", ErrLength, n, len(data)-OutboundHeaderSize)
	}
	c.Payload = data[OutboundHeaderSize:]
	return c, nil
}

// Inbound is one cloud-to-device frame of synthesized voice.
type Inbound struct {
	Codec   Codec
	Payload []byte
}

// AppendInbound appends the encoded frame for in to dst and returns the
// extended slice.
func AppendInbound(dst []byte, in Inbound) ([]byte, error) {
	if !in.Codec.IsValid() {
		return dst, fmt.Errorf("%w: 0x%x", ErrCodec, uint8(in.Codec))
	}
	if len(in.Payload) > MaxPayload {
		return dst, fmt.Errorf("%w: %d > %d", ErrOversize, len(in.Payload), MaxPayload)
	}

	dst = append(dst, uint8(in.Codec)<<4)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(in.Payload)))
	return append(dst, in.Payload...), nil
}

// DecodeInbound parses and validates a cloud-to-device frame. maxPayload
// bounds the accepted payload size on top of the wire limit; zero means
// [MaxPayload]. The returned payload aliases data.
//
// Any error from DecodeInbound means the frame must be dropped whole; no
// partial audio is ever handed to playback.
func DecodeInbound(data []byte, maxPayload int) (Inbound, error) {
	if maxPayload <= 0 || maxPayload > MaxPayload {
		maxPayload = MaxPayload
	}
	if len(data) < InboundHeaderSize {
		return Inbound{}, fmt.Errorf("%w: %d < %d", ErrShortFrame, len(data), InboundHeaderSize)
	}

	in := Inbound{Codec: Codec(data[0] >> 4)}
	if !in.Codec.IsValid() {
		return Inbound{}, fmt.Errorf("%w: 0x%x", ErrCodec, uint8(in.Codec))
	}

	n := int(binary.BigEndian.Uint16(data[1:3]))
	if n > maxPayload {
		return Inbound{}, fmt.Errorf("%w: %d > %d", ErrOversize, n, maxPayload)
	}
	if len(data) != InboundHeaderSize+n {
		return Inbound{}, fmt.Errorf("%w: header says %d payload bytes, frame has %d", ErrLength, n, len(data)-InboundHeaderSize)
	}
	in.Payload = data[InboundHeaderSize:]
	return in, nil
}
