package audio

import "encoding/binary"

// PCMBytesToMuLaw treats b as 16-bit little-endian PCM and returns the
// mu-law encoding, one byte per sample. An odd trailing byte is dropped
// (truncated), matching the source's "invalid lengths are treated as
// truncation" rule.
func PCMBytesToMuLaw(b []byte) []byte {
	n := len(b) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
		out[i] = EncodeSample(sample)
	}
	return out
}

// MuLawBytesToPCM decodes mu-law bytes into 16-bit little-endian PCM.
func MuLawBytesToPCM(b []byte) []byte {
	out := make([]byte, len(b)*2)
	for i, mu := range b {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(DecodeSample(mu)))
	}
	return out
}

// Silence returns n bytes of mu-law silence.
func Silence(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = SilenceByte
	}
	return out
}

// DetectSpeechEnergy reports whether 16-bit little-endian PCM audio
// exceeds an RMS energy threshold. Present in the source
// (flowly/voice/audio.py's detect_speech_energy) as a coarse local VAD
// fallback for providers with no native speech_started event;
// callmanager's streamHandler.OnAudio calls this for STTBatch
// providers while the agent is speaking, standing in for the
// speech_started event those providers never emit.
func DetectSpeechEnergy(pcm []byte, threshold int) bool {
	n := len(pcm) / 2
	if n == 0 {
		return false
	}
	var sumSquares int64
	for i := 0; i < n; i++ {
		s := int64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sumSquares += s * s
	}
	meanSquare := sumSquares / int64(n)
	rms := isqrt(meanSquare)
	return rms > int64(threshold)
}

func isqrt(v int64) int64 {
	if v <= 0 {
		return 0
	}
	x := v
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + v/x) / 2
	}
	return x
}
