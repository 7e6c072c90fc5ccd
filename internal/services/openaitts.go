package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// OpenAI Text-to-Speech
// Alternate speech provider behind the same TTSService interface, used when
// no ElevenLabs key is configured.
// ---------------------------------------------------------------------------

type OpenAITTSService struct {
	client *openai.Client
	logger *slog.Logger
}

var _ TTSService = (*OpenAITTSService)(nil)

func NewOpenAITTSService(apiKey string, logger *slog.Logger) *OpenAITTSService {
	return &OpenAITTSService{
		client: openai.NewClient(apiKey),
		logger: logger,
	}
}

func (s *OpenAITTSService) Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error) {
	speechVoice := openai.VoiceAlloy
	if voice != "" {
		speechVoice = openai.SpeechVoice(voice)
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          speechVoice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          0.95,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "openai-tts", Kind: FailureTransient, Err: err}
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, &ProviderError{
			Provider: "openai-tts",
			Kind:     FailureTransient,
			Err:      fmt.Errorf("empty audio response"),
		}
	}

	durationSec := estimateSpeechDuration(text, 0.95)

	s.logger.Debug("openai audio generated", "bytes", len(audioData), "estimated_sec", durationSec)

	return &SpeechResult{
		AudioData:   audioData,
		DurationSec: durationSec,
		Format:      "mp3",
	}, nil
}
