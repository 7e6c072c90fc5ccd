package services

import (
	"context"
	"strings"
)

// ---------------------------------------------------------------------------
// TTSService — common interface for speech synthesis providers
// ElevenLabs and OpenAI implement it; the synthesis adapter uses whichever is
// configured without knowing the vendor.
// ---------------------------------------------------------------------------

// SpeechResult is the common response type from any speech provider.
type SpeechResult struct {
	AudioData   []byte
	DurationSec float64
	Format      string // "mp3", "wav", etc.
}

// TTSService converts narration text into timed audio.
type TTSService interface {
	// Synthesize converts text to audio. voice selects a provider-specific
	// voice profile; empty means the provider default.
	Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error)
}

// estimateSpeechDuration estimates spoken length from word count and speed.
// Providers whose APIs do not report a measured duration fall back to this.
// 140 words per minute is a narration baseline, slightly slower than
// conversational speech.
func estimateSpeechDuration(text string, speed float64) float64 {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(strings.Fields(text))
	baseWPM := 140.0
	actualWPM := baseWPM * speed
	return float64(words) / actualWPM * 60
}
