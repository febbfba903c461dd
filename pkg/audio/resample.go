package audio

import "encoding/binary"

// Resample performs fractional-index linear interpolation between
// adjacent 16-bit little-endian PCM samples to convert audio from
// fromRate to toRate. It is deterministic and allocation-predictable
// rather than high fidelity, which is intentional: telephony's 8kHz
// input and the 16kHz/24kHz targets used by STT/TTS are integer-related
// and the signal is voice-band (see spec's Design Notes on resampling).
//
// Identity when fromRate == toRate, per the codec's testable invariant.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	srcN := len(pcm) / 2
	if srcN == 0 {
		return []byte{}
	}
	if srcN == 1 {
		out := make([]byte, 2)
		copy(out, pcm[:2])
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	dstN := int(float64(srcN) / ratio)
	if dstN < 1 {
		dstN = 1
	}
	out := make([]byte, dstN*2)

	src := make([]int16, srcN)
	for i := 0; i < srcN; i++ {
		src[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}

	for i := 0; i < dstN; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx >= srcN-1 {
			binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(src[srcN-1]))
			continue
		}
		a := float64(src[idx])
		b := float64(src[idx+1])
		v := clampPCM(int32(a + (b-a)*frac))
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}
