package scenes

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
)

// Options tunes scene decomposition. Zero values fall back to defaults.
type Options struct {
	WordsPerSecond  float64 // narration pace; default ~140 wpm
	MinSceneSeconds float64
	MaxSceneSeconds float64
}

const (
	// 140 words per minute is a narration baseline, slightly slower than
	// conversational speech.
	defaultWordsPerSecond  = 140.0 / 60.0
	defaultMinSceneSeconds = 3.0
	defaultMaxSceneSeconds = 15.0
)

func (o Options) withDefaults() Options {
	if o.WordsPerSecond <= 0 {
		o.WordsPerSecond = defaultWordsPerSecond
	}
	if o.MinSceneSeconds <= 0 {
		o.MinSceneSeconds = defaultMinSceneSeconds
	}
	if o.MaxSceneSeconds <= o.MinSceneSeconds {
		o.MaxSceneSeconds = defaultMaxSceneSeconds
	}
	return o
}

// Accepts both LF and CRLF line endings in the blank-line separator.
var paragraphBreak = regexp.MustCompile(`\r?\n(?:[ \t]*\r?\n)+`)

// Decompose splits narration text into ordered, duration-estimated scenes.
// Paragraphs separated by blank lines become scenes; text without a structural
// break becomes a single scene. Ordinals are dense and 1-based; start/end are
// the running cumulative sum of the clamped duration estimates.
func Decompose(jobID uuid.UUID, text string, opts Options) ([]models.Scene, error) {
	opts = opts.withDefaults()

	if strings.TrimSpace(text) == "" {
		return nil, &jobs.ValidationError{Field: "narration_text", Reason: "contains no narratable content"}
	}

	var paragraphs []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	scenes := make([]models.Scene, 0, len(paragraphs))
	cursor := 0.0
	for i, p := range paragraphs {
		ordinal := i + 1
		duration := EstimateDuration(p, opts)

		scenes = append(scenes, models.Scene{
			ID:            uuid.New(),
			JobID:         jobID,
			Ordinal:       ordinal,
			NarrationText: p,
			EstimatedSec:  duration,
			StartSec:      cursor,
			EndSec:        cursor + duration,
			Transition:    models.TransitionForOrdinal(ordinal),
		})
		cursor += duration
	}

	return scenes, nil
}

// EstimateDuration converts a narration fragment to seconds at the configured
// pace, clamped so no scene is degenerately short or long.
func EstimateDuration(text string, opts Options) float64 {
	opts = opts.withDefaults()

	words := len(strings.Fields(text))
	duration := float64(words) / opts.WordsPerSecond

	if duration < opts.MinSceneSeconds {
		return opts.MinSceneSeconds
	}
	if duration > opts.MaxSceneSeconds {
		return opts.MaxSceneSeconds
	}
	return duration
}

// EstimateTotal returns the summed clamped estimate for whole narration text.
// It is pure and cheap, which keeps job creation free of external calls.
func EstimateTotal(text string, opts Options) float64 {
	total := 0.0
	for _, p := range paragraphBreak.Split(text, -1) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			total += EstimateDuration(trimmed, opts)
		}
	}
	return total
}
