package codec

import "encoding/binary"

// UpsampleX3 converts mono PCM16 from 8 kHz to 24 kHz, the exact factor-3
// case used between the telephony leg and the model leg. Two extra samples
// are linearly interpolated between each adjacent pair at 1/3 and 2/3; the
// final sample is copied through unchanged. Inputs shorter than two samples
// are returned unchanged (there is nothing to interpolate between).
func UpsampleX3(pcm8k []byte) []byte {
	src := unpackMono(pcm8k)
	if len(src) < 2 {
		return pcm8k
	}
	out := make([]int16, 0, (len(src)-1)*3+1)
	for i := 0; i < len(src)-1; i++ {
		s0, s1 := int32(src[i]), int32(src[i+1])
		out = append(out,
			src[i],
			int16(s0+(s1-s0)/3),
			int16(s0+(s1-s0)*2/3),
		)
	}
	out = append(out, src[len(src)-1])
	return packMono(out)
}

// DownsampleDiv3 converts mono PCM16 from 24 kHz to 8 kHz, the exact
// factor-1/3 case. Anti-aliasing is intentionally omitted for latency —
// every third sample is kept and the rest discarded.
func DownsampleDiv3(pcm24k []byte) []byte {
	src := unpackMono(pcm24k)
	if len(src) == 0 {
		return nil
	}
	out := make([]int16, 0, len(src)/3+1)
	for i := 0; i < len(src); i += 3 {
		out = append(out, src[i])
	}
	return packMono(out)
}

// ResampleLinear is the general fallback for ratios other than the exact
// 8k<->24k factor of 3. It is never used on the hot path between the
// telephony and model legs but is kept available for alternate sample rates
// a carrier or model configuration might negotiate.
func ResampleLinear(pcm []byte, fromHz, toHz int) []byte {
	src := unpackMono(pcm)
	if len(src) < 2 || fromHz <= 0 || toHz <= 0 {
		return pcm
	}
	ratio := float64(toHz) / float64(fromHz)
	outLen := int(float64(len(src)-1)*ratio) + 1
	if outLen < 1 {
		outLen = 1
	}
	out := make([]int16, outLen)
	for j := 0; j < outLen; j++ {
		pos := float64(j) / ratio
		i := int(pos)
		if i >= len(src)-1 {
			out[j] = src[len(src)-1]
			continue
		}
		frac := pos - float64(i)
		out[j] = int16(float64(src[i]) + (float64(src[i+1])-float64(src[i]))*frac)
	}
	return packMono(out)
}

// unpackMono decodes little-endian PCM16 mono bytes into samples, truncating
// a trailing odd byte.
func unpackMono(pcm []byte) []int16 {
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// packMono encodes samples back into little-endian PCM16 bytes.
func packMono(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
