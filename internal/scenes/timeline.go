package scenes

import "github.com/voxreel/voxreel/internal/models"

// Reflow recomputes the full cumulative timeline in one pass after synthesis.
// Each scene's duration becomes max(estimated, measured audio duration), so
// narration is never truncated to fit a shorter visual slot. measured is
// indexed by scene position; a non-positive entry means no measurement exists
// and the estimate stands.
//
// Reflow is pure: it returns a new slice and leaves the input untouched.
func Reflow(in []models.Scene, measured []float64) []models.Scene {
	out := make([]models.Scene, len(in))
	copy(out, in)

	cursor := 0.0
	for i := range out {
		duration := out[i].EstimatedSec
		if i < len(measured) && measured[i] > duration {
			duration = measured[i]
		}
		out[i].StartSec = cursor
		out[i].EndSec = cursor + duration
		cursor = out[i].EndSec
	}

	return out
}

// TotalDuration returns end_time of the last scene, which by the contiguity
// invariant equals the artifact duration.
func TotalDuration(in []models.Scene) float64 {
	if len(in) == 0 {
		return 0
	}
	return in[len(in)-1].EndSec
}
