package scenes

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
)

func TestDecomposeTwoParagraphs(t *testing.T) {
	text := "Hello world.\n\nThis is a test."

	scenes, err := Decompose(uuid.New(), text, Options{})
	require.NoError(t, err)
	require.Len(t, scenes, 2)

	assert.Equal(t, "Hello world.", scenes[0].NarrationText)
	assert.Equal(t, "This is a test.", scenes[1].NarrationText)

	for _, s := range scenes {
		assert.GreaterOrEqual(t, s.EstimatedSec, 3.0)
		assert.LessOrEqual(t, s.EstimatedSec, 15.0)
	}
}

func TestDecomposeCRLFParagraphBreak(t *testing.T) {
	text := "Hello world.\r\n\r\nThis is a test.\r\n \r\nAnd a third."

	scenes, err := Decompose(uuid.New(), text, Options{})
	require.NoError(t, err)
	require.Len(t, scenes, 3)

	assert.Equal(t, "Hello world.", scenes[0].NarrationText)
	assert.Equal(t, "This is a test.", scenes[1].NarrationText)
	assert.Equal(t, "And a third.", scenes[2].NarrationText)
}

func TestDecomposeNoBreakYieldsSingleScene(t *testing.T) {
	scenes, err := Decompose(uuid.New(), "One continuous narration without any break.", Options{})
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, 1, scenes[0].Ordinal)
}

func TestDecomposeEmptyTextIsValidationError(t *testing.T) {
	_, err := Decompose(uuid.New(), "  \n\n \t ", Options{})
	require.Error(t, err)

	var verr *jobs.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestDecomposeOrdinalsDenseAndContiguous(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph here.\n\n\nThird paragraph here."

	scenes, err := Decompose(uuid.New(), text, Options{})
	require.NoError(t, err)
	require.Len(t, scenes, 3)

	assert.Zero(t, scenes[0].StartSec)
	for i, s := range scenes {
		assert.Equal(t, i+1, s.Ordinal)
		if i > 0 {
			assert.Equal(t, scenes[i-1].EndSec, s.StartSec)
		}
		assert.Equal(t, models.TransitionForOrdinal(s.Ordinal), s.Transition)
	}
}

func TestEstimateDurationClamps(t *testing.T) {
	opts := Options{WordsPerSecond: 2, MinSceneSeconds: 3, MaxSceneSeconds: 15}

	// 2 words at 2 w/s = 1s, clamped up
	assert.Equal(t, 3.0, EstimateDuration("two words", opts))

	// 100 words at 2 w/s = 50s, clamped down
	long := strings.Repeat("word ", 100)
	assert.Equal(t, 15.0, EstimateDuration(long, opts))

	// 12 words at 2 w/s = 6s, unclamped
	mid := strings.Repeat("word ", 12)
	assert.InDelta(t, 6.0, EstimateDuration(mid, opts), 1e-9)
}

func TestEstimateTotalSumsParagraphs(t *testing.T) {
	opts := Options{WordsPerSecond: 2, MinSceneSeconds: 3, MaxSceneSeconds: 15}
	text := "two words\n\ntwo words"

	assert.InDelta(t, 6.0, EstimateTotal(text, opts), 1e-9)
}
