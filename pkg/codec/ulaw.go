// Package codec implements the G.711 µ-law codec and the fixed-ratio PCM16
// resamplers used at the telephony edge of the call bridge (8 kHz µ-law on
// the carrier side, 24 kHz PCM16 on the model side).
package codec

import "encoding/binary"

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// muLawToPCM is a precomputed decode table, one int16 PCM sample per µ-law
// byte value.
var muLawToPCM [256]int16

func init() {
	for i := 0; i < 256; i++ {
		muLawToPCM[i] = decodeByte(byte(i))
	}
}

func decodeByte(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := int16((int32(mantissa)<<3 + ulawBias) << exponent)
	sample -= ulawBias
	if sign != 0 {
		return -sample
	}
	return sample
}

// DecodeUlaw expands a µ-law byte sequence into little-endian PCM16 samples,
// one input byte producing one 2-byte output sample. An empty input produces
// an empty output.
func DecodeUlaw(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(muLawToPCM[b]))
	}
	return out
}

// EncodeUlaw compresses little-endian PCM16 samples into µ-law bytes. If pcm
// has an odd length the trailing byte is dropped before encoding.
func EncodeUlaw(pcm []byte) []byte {
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = encodeSample(sample)
	}
	return out
}

func encodeSample(pcm int16) byte {
	sign := byte(0)
	if pcm < 0 {
		sign = 0x80
		if pcm == -32768 {
			pcm = 32767
		} else {
			pcm = -pcm
		}
	}
	clipped := int32(pcm)
	if clipped > ulawClip {
		clipped = ulawClip
	}
	clipped += ulawBias

	exponent := 7
	for mask := int32(0x4000); (clipped&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((clipped >> (exponent + 3)) & 0x0F)
	ulawByte := sign | (byte(exponent) << 4) | mantissa
	return ^ulawByte
}
