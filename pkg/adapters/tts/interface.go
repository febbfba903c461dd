// Package tts defines the uniform contract every text-to-speech vendor
// package implements, plus helpers to reframe whatever a provider
// returns into the carrier's mu-law frame shape.
package tts

import (
	"context"

	"github.com/vardirect/callbridge/pkg/audio"
)

// OutputSampleRate is the rate Synthesize is contractually required to
// return audio at; providers returning another rate normalize before
// returning.
const OutputSampleRate = 24000

// Provider is the uniform TTS contract: synthesize text to 16-bit
// little-endian mono PCM at 24kHz.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config is vendor-agnostic construction configuration.
type Config struct {
	APIKey string
	Voice  string
	Model  string
}

// SynthesizeAllForTwilio synthesizes text and returns the whole
// materialized sequence of 160-byte mu-law frames, convenient when the
// entire utterance is enqueued before playback begins.
func SynthesizeAllForTwilio(ctx context.Context, p Provider, text string) ([][]byte, error) {
	pcm, err := p.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return audio.ConvertToTwilio(pcm, OutputSampleRate), nil
}

// SynthesizeForTwilio synthesizes text and invokes yield once per
// 160-byte mu-law frame in order, stopping early if yield returns an
// error. This is the lazy counterpart to SynthesizeAllForTwilio.
func SynthesizeForTwilio(ctx context.Context, p Provider, text string, yield func([]byte) error) error {
	pcm, err := p.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	for _, frame := range audio.ConvertToTwilio(pcm, OutputSampleRate) {
		if err := yield(frame); err != nil {
			return err
		}
	}
	return nil
}
