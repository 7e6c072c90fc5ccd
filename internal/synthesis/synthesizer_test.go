package synthesis

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxreel/voxreel/internal/services"
)

type fakeTTS struct {
	result *services.SpeechResult
	err    error
	calls  int
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, voice string) (*services.SpeechResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSilence struct {
	err      error
	written  []string
	duration float64
}

func (f *fakeSilence) WriteSilence(ctx context.Context, path string, durationSec float64) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, path)
	f.duration = durationSec
	return os.WriteFile(path, []byte("silence"), 0644)
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) ProbeDurationSec(ctx context.Context, path string) (float64, error) {
	return f.duration, f.err
}

func newTestSynthesizer(t *testing.T, tts services.TTSService, silence SilenceWriter, prober DurationProber) *Synthesizer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewSynthesizer(tts, silence, prober, t.TempDir(), logger)
}

func TestSynthesizeSceneSuccess(t *testing.T) {
	tts := &fakeTTS{result: &services.SpeechResult{
		AudioData:   []byte("audio-bytes"),
		DurationSec: 4.2,
		Format:      "mp3",
	}}
	s := newTestSynthesizer(t, tts, &fakeSilence{}, nil)

	res, err := s.SynthesizeScene(context.Background(), uuid.New(), 1, "Hello there.", "", 5.0)

	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.InDelta(t, 4.2, res.DurationSec, 0.001)
	assert.FileExists(t, res.AudioPath)

	data, err := os.ReadFile(res.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-bytes"), data)
}

func TestSynthesizeScenePrefersProbedDuration(t *testing.T) {
	tts := &fakeTTS{result: &services.SpeechResult{
		AudioData:   []byte("audio"),
		DurationSec: 4.0,
		Format:      "mp3",
	}}
	s := newTestSynthesizer(t, tts, &fakeSilence{}, &fakeProber{duration: 6.5})

	res, err := s.SynthesizeScene(context.Background(), uuid.New(), 2, "Some text.", "", 5.0)

	require.NoError(t, err)
	assert.InDelta(t, 6.5, res.DurationSec, 0.001)
}

func TestSynthesizeSceneProbeFailureKeepsEstimate(t *testing.T) {
	tts := &fakeTTS{result: &services.SpeechResult{
		AudioData:   []byte("audio"),
		DurationSec: 4.0,
		Format:      "mp3",
	}}
	s := newTestSynthesizer(t, tts, &fakeSilence{}, &fakeProber{err: assert.AnError})

	res, err := s.SynthesizeScene(context.Background(), uuid.New(), 1, "Some text.", "", 5.0)

	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.DurationSec, 0.001)
}

func TestSynthesizeSceneProviderFailureYieldsSilence(t *testing.T) {
	tts := &fakeTTS{err: &services.ProviderError{
		Provider: "elevenlabs",
		Kind:     services.FailureTransient,
		Err:      assert.AnError,
	}}
	silence := &fakeSilence{}
	s := newTestSynthesizer(t, tts, silence, nil)

	res, err := s.SynthesizeScene(context.Background(), uuid.New(), 3, "Unspeakable.", "", 7.5)

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.InDelta(t, 7.5, res.DurationSec, 0.001)
	assert.Len(t, silence.written, 1)
	assert.InDelta(t, 7.5, silence.duration, 0.001)
	assert.FileExists(t, res.AudioPath)
}

func TestSynthesizeSceneSilenceFallbackFailure(t *testing.T) {
	tts := &fakeTTS{err: assert.AnError}
	s := newTestSynthesizer(t, tts, &fakeSilence{err: assert.AnError}, nil)

	_, err := s.SynthesizeScene(context.Background(), uuid.New(), 1, "text", "", 5.0)

	assert.Error(t, err)
}
