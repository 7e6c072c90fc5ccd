package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/voxreel/voxreel/internal/models"
)

// renderEngine is the slice of the ffmpeg service the composer needs.
type renderEngine interface {
	RenderSceneClip(ctx context.Context, imagePath, audioPath, outputPath string, transition models.TransitionKind, durationSec float64) error
	Concatenate(ctx context.Context, clipPaths []string, outputPath string) error
	ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error
	ProbeDurationSec(ctx context.Context, path string) (float64, error)
	ProbeResolution(ctx context.Context, path string) (string, error)
	CreateTempFile(filename string) string
	Cleanup(paths ...string)
}

// Composer renders the final artifact from resolved, reflowed scenes: one
// clip per scene, concatenated in ordinal order, plus a thumbnail.
type Composer struct {
	engine    renderEngine
	outputDir string
	logger    *slog.Logger
}

func NewComposer(engine renderEngine, outputDir string, logger *slog.Logger) (*Composer, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Composer{engine: engine, outputDir: outputDir, logger: logger}, nil
}

// Compose renders every scene clip, concatenates them, and returns the final
// render result. Scenes must already carry resolved asset and audio refs and
// reflowed start/end times.
func (c *Composer) Compose(ctx context.Context, jobID uuid.UUID, scenes []models.Scene) (*models.RenderResult, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("no scenes to compose")
	}

	clipPaths := make([]string, 0, len(scenes))
	defer func() { c.engine.Cleanup(clipPaths...) }()

	for _, scene := range scenes {
		if scene.ResolvedAssetRef == "" || scene.ResolvedAudioRef == "" {
			return nil, fmt.Errorf("scene %d is missing resolved refs", scene.Ordinal)
		}

		clipPath := c.engine.CreateTempFile(fmt.Sprintf("%s_clip_%d.mp4", jobID, scene.Ordinal))
		durationSec := scene.EndSec - scene.StartSec

		c.logger.Debug("rendering scene clip",
			"job_id", jobID, "scene", scene.Ordinal, "duration_sec", durationSec)

		if err := c.engine.RenderSceneClip(ctx, scene.ResolvedAssetRef, scene.ResolvedAudioRef, clipPath, scene.Transition, durationSec); err != nil {
			return nil, fmt.Errorf("failed to render scene %d: %w", scene.Ordinal, err)
		}
		clipPaths = append(clipPaths, clipPath)
	}

	artifactPath := filepath.Join(c.outputDir, fmt.Sprintf("%s.mp4", jobID))
	if err := c.engine.Concatenate(ctx, clipPaths, artifactPath); err != nil {
		return nil, fmt.Errorf("failed to concatenate clips: %w", err)
	}

	thumbnailPath := filepath.Join(c.outputDir, fmt.Sprintf("%s_thumb.jpg", jobID))
	if err := c.engine.ExtractThumbnail(ctx, artifactPath, thumbnailPath); err != nil {
		// A missing thumbnail does not invalidate the artifact.
		c.logger.Warn("thumbnail extraction failed", "job_id", jobID, "error", err)
		thumbnailPath = ""
	}

	durationSec, err := c.engine.ProbeDurationSec(ctx, artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe artifact duration: %w", err)
	}

	resolution, err := c.engine.ProbeResolution(ctx, artifactPath)
	if err != nil {
		c.logger.Warn("resolution probe failed", "job_id", jobID, "error", err)
		resolution = fmt.Sprintf("%dx%d", 1080, 1920)
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	return &models.RenderResult{
		ArtifactPath:  artifactPath,
		ThumbnailPath: thumbnailPath,
		DurationSec:   durationSec,
		SizeBytes:     info.Size(),
		Resolution:    resolution,
	}, nil
}
