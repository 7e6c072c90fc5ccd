package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/voxreel/voxreel/internal/services"
)

// SilenceWriter produces a silent audio file of a given duration. Satisfied
// by the ffmpeg service; faked in tests.
type SilenceWriter interface {
	WriteSilence(ctx context.Context, outputPath string, durationSec float64) error
}

// DurationProber measures the real duration of an audio file. Satisfied by
// the ffmpeg service.
type DurationProber interface {
	ProbeDurationSec(ctx context.Context, path string) (float64, error)
}

// Result is one scene's narration audio. Degraded marks the silence
// fallback so the worker can report a partially degraded render.
type Result struct {
	AudioPath   string
	DurationSec float64
	Degraded    bool
}

// Synthesizer turns scene text into narration audio. A provider failure
// does not fail the scene: the scene gets silence of the estimated duration
// and is flagged degraded.
type Synthesizer struct {
	tts      services.TTSService
	silence  SilenceWriter
	prober   DurationProber
	audioDir string
	logger   *slog.Logger
}

func NewSynthesizer(tts services.TTSService, silence SilenceWriter, prober DurationProber, audioDir string, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		tts:      tts,
		silence:  silence,
		prober:   prober,
		audioDir: audioDir,
		logger:   logger,
	}
}

// SynthesizeScene produces narration audio for one scene. It errors only
// when even the silence fallback cannot be written.
func (s *Synthesizer) SynthesizeScene(ctx context.Context, jobID uuid.UUID, ordinal int, text, voiceProfileID string, estimatedSec float64) (*Result, error) {
	if err := os.MkdirAll(s.audioDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}

	speech, err := s.tts.Synthesize(ctx, text, voiceProfileID)
	if err != nil {
		s.logger.Warn("speech synthesis failed, using silence fallback",
			"job_id", jobID, "scene", ordinal, "error", err)
		return s.fallback(ctx, jobID, ordinal, estimatedSec)
	}

	path := filepath.Join(s.audioDir, fmt.Sprintf("%s_scene_%d.%s", jobID, ordinal, speech.Format))
	if err := os.WriteFile(path, speech.AudioData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write narration audio: %w", err)
	}

	return &Result{
		AudioPath:   path,
		DurationSec: s.measure(ctx, path, speech.DurationSec),
	}, nil
}

func (s *Synthesizer) fallback(ctx context.Context, jobID uuid.UUID, ordinal int, estimatedSec float64) (*Result, error) {
	path := filepath.Join(s.audioDir, fmt.Sprintf("%s_scene_%d_silence.mp3", jobID, ordinal))
	if err := s.silence.WriteSilence(ctx, path, estimatedSec); err != nil {
		return nil, fmt.Errorf("silence fallback failed: %w", err)
	}

	return &Result{
		AudioPath:   path,
		DurationSec: estimatedSec,
		Degraded:    true,
	}, nil
}

// measure prefers the probed duration over the provider's estimate; the
// estimate feeds timeline reflow only when probing is unavailable.
func (s *Synthesizer) measure(ctx context.Context, path string, estimated float64) float64 {
	if s.prober == nil {
		return estimated
	}
	measured, err := s.prober.ProbeDurationSec(ctx, path)
	if err != nil || measured <= 0 {
		return estimated
	}
	return measured
}
