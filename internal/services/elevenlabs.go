package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech
// Uses the ElevenLabs REST API to convert text into narration audio.
// Model: eleven_flash_v2_5 (fast, 32 languages, ~75ms latency)
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB"
	elevenLabsOutputFormat = "mp3_44100_128"
)

type ElevenLabsService struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
	logger  *slog.Logger
}

var _ TTSService = (*ElevenLabsService)(nil)

func NewElevenLabsService(apiKey, voiceID string, logger *slog.Logger) *ElevenLabsService {
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoice
	}
	return &ElevenLabsService{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: elevenLabsDefaultModel,
		client:  &http.Client{Timeout: 90 * time.Second},
		logger:  logger,
	}
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
	Speed         *float64                 `json:"speed,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// Synthesize converts text to speech. voice overrides the service-level
// default voice ID when non-empty.
func (s *ElevenLabsService) Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error) {
	effectiveVoice := s.voiceID
	if voice != "" {
		effectiveVoice = voice
	}

	speed := 0.85 // Slightly slower for clear narration delivery
	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		Speed:   &speed,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.60,
			SimilarityBoost: 0.80,
			Style:           0.35,
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		elevenLabsBaseURL, effectiveVoice, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	s.logger.Debug("elevenlabs synthesizing",
		"voice_id", effectiveVoice, "model", s.modelID, "text_len", len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "elevenlabs", Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{
			Provider: "elevenlabs",
			Kind:     classifyStatus(resp.StatusCode),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	// The response body IS the audio file
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, &ProviderError{
			Provider: "elevenlabs",
			Kind:     FailureTransient,
			Err:      fmt.Errorf("empty audio response"),
		}
	}

	// ElevenLabs does not return a measured duration on this endpoint
	durationSec := estimateSpeechDuration(text, speed)

	s.logger.Debug("elevenlabs audio generated", "bytes", len(audioData), "estimated_sec", durationSec)

	return &SpeechResult{
		AudioData:   audioData,
		DurationSec: durationSec,
		Format:      "mp3",
	}, nil
}
