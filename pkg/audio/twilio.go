package audio

// FrameBytes is the canonical outbound frame size: 20ms of mu-law audio
// at 8kHz (spec invariant 5).
const FrameBytes = 160

// TwilioSampleRate is the carrier's fixed telephony sample rate.
const TwilioSampleRate = 8000

// ConvertToTwilio converts little-endian 16-bit PCM at srcRate into a
// sequence of fixed 160-byte mu-law frames suitable for the carrier's
// media-stream envelope. The last frame is right-padded with mu-law
// silence (0xFF) if the input does not align to a frame boundary.
func ConvertToTwilio(pcm []byte, srcRate int) [][]byte {
	pcm8k := Resample(pcm, srcRate, TwilioSampleRate)
	mu := PCMBytesToMuLaw(pcm8k)

	var frames [][]byte
	for i := 0; i < len(mu); i += FrameBytes {
		end := i + FrameBytes
		if end > len(mu) {
			frame := Silence(FrameBytes)
			copy(frame, mu[i:])
			frames = append(frames, frame)
			break
		}
		frame := make([]byte, FrameBytes)
		copy(frame, mu[i:end])
		frames = append(frames, frame)
	}
	return frames
}

// ConvertFromTwilio concatenates inbound mu-law frames, decodes to PCM,
// and resamples to dstRate (typically 16kHz for STT), returning
// little-endian 16-bit PCM bytes.
func ConvertFromTwilio(frames [][]byte, dstRate int) []byte {
	var mu []byte
	for _, f := range frames {
		mu = append(mu, f...)
	}
	pcm8k := MuLawBytesToPCM(mu)
	return Resample(pcm8k, TwilioSampleRate, dstRate)
}

// DurationMS returns the duration of audioBytes at sampleRate/sampleWidth
// in whole milliseconds.
func DurationMS(audioBytes []byte, sampleRate, sampleWidth int) int {
	if sampleWidth <= 0 {
		sampleWidth = 2
	}
	numSamples := len(audioBytes) / sampleWidth
	return numSamples * 1000 / sampleRate
}
