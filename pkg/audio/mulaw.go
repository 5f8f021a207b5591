package audio

// G.711 µ-law companding. Halves the PCM byte rate for transmission under
// poor link conditions without pulling in a codec: each 16-bit sample maps
// to one logarithmically quantized byte.

const (
	muLawBias = 0x84
	muLawClip = 8159 // max magnitude after the >>2 scale-down
)

var muLawSegEnd = [8]int32{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}

// MuLawEncode compands little-endian 16-bit PCM from src into dst, one byte
// per sample, and returns the byte count written. dst must hold len(src)/2
// bytes; shorter dst bounds the work.
func MuLawEncode(dst, src []byte) int {
	n := len(src) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		s := int16(src[i*2]) | int16(src[i*2+1])<<8
		dst[i] = muLawEncodeSample(s)
	}
	return n
}

// MuLawDecode expands µ-law bytes from src into little-endian 16-bit PCM in
// dst and returns the byte count written. dst must hold 2*len(src) bytes;
// shorter dst bounds the work.
func MuLawDecode(dst, src []byte) int {
	n := len(src)
	if n > len(dst)/2 {
		n = len(dst) / 2
	}
	for i := 0; i < n; i++ {
		s := muLawDecodeSample(src[i])
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
	return n * 2
}

func muLawEncodeSample(pcm int16) byte {
	v := int32(pcm) >> 2
	mask := int32(0xFF)
	if v < 0 {
		v = -v
		mask = 0x7F
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias >> 2

	seg := 0
	for seg < 8 && v > muLawSegEnd[seg] {
		seg++
	}
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}
	u := int32(seg)<<4 | (v>>(uint(seg)+1))&0xF
	return byte(u ^ mask)
}

func muLawDecodeSample(u byte) int16 {
	u = ^u
	t := (int32(u&0xF) << 3) + muLawBias
	t <<= (uint32(u) & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(muLawBias - t)
	}
	return int16(t - muLawBias)
}
