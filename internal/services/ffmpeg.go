package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/voxreel/voxreel/internal/models"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Thin wrapper around ffmpeg/ffprobe. Every scene clip is a still image
// animated with a zoompan motion effect matching the scene's transition kind,
// muxed with the scene's narration audio.
// ---------------------------------------------------------------------------

// Output / rendering constants — portrait 1080x1920 at 30fps
const (
	outputWidth  = 1080
	outputHeight = 1920
	videoFPS     = 30
)

type FFmpegService struct {
	tempDir string
	logger  *slog.Logger
}

func NewFFmpegService(tempDir string, logger *slog.Logger) (*FFmpegService, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &FFmpegService{tempDir: tempDir, logger: logger}, nil
}

// RenderSceneClip creates a video clip from a still image and narration audio,
// applying the motion effect for the scene's transition kind. durationSec is
// the reflowed scene duration; the visual is always stretched to cover it so
// narration is never cut short.
func (s *FFmpegService) RenderSceneClip(ctx context.Context, imagePath, audioPath, outputPath string, transition models.TransitionKind, durationSec float64) error {
	vf := buildMotionFilter(transition, durationSec)

	s.logger.Debug("ffmpeg rendering scene clip",
		"transition", transition, "duration_sec", durationSec)

	args := []string{
		"-i", imagePath, // Single image input (zoompan handles duration)
		"-i", audioPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg render scene clip failed (transition=%s): %w: %s",
			transition, err, tail(string(out), 400))
	}

	return nil
}

// buildMotionFilter constructs the -vf chain for a transition kind: a zoompan
// with either a slow push, a pull-back reveal, or a lateral drift.
func buildMotionFilter(transition models.TransitionKind, durationSec float64) string {
	totalFrames := int(durationSec*videoFPS) + videoFPS // 1s buffer; -t trims
	if totalFrames < videoFPS {
		totalFrames = videoFPS
	}

	var zExpr, xExpr, yExpr string

	switch transition {
	case models.TransitionZoomIn:
		// Zoom 1.0 -> 1.3 centered
		zExpr = fmt.Sprintf("1.0+0.3*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case models.TransitionZoomOut:
		// Zoom 1.3 -> 1.0 centered
		zExpr = fmt.Sprintf("1.3-0.3*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case models.TransitionPanRight:
		// Fixed 1.2x zoom, camera drifts left to right
		zExpr = "1.2"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*on/%d", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case models.TransitionPanLeft:
		// Fixed 1.2x zoom, camera drifts right to left
		zExpr = "1.2"
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	default:
		zExpr = fmt.Sprintf("1.0+0.3*on/%d", totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	}

	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		outputWidth*2, outputHeight*2, outputWidth*2, outputHeight*2,
		zExpr, xExpr, yExpr,
		totalFrames,
		outputWidth, outputHeight,
		videoFPS,
	)
}

// Concatenate combines scene clips into one continuous artifact using the
// concat demuxer (no re-encoding; all clips share codec settings).
func (s *FFmpegService) Concatenate(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := s.CreateTempFile(fmt.Sprintf("concat_%s.txt", filepath.Base(outputPath)))
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, path := range clipPaths {
		fmt.Fprintf(f, "file '%s'\n", path)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w: %s", err, tail(string(out), 400))
	}

	return nil
}

// WriteSilence produces a silent MP3 of the given duration. Used as the
// degraded-scene fallback when speech synthesis fails.
func (s *FFmpegService) WriteSilence(ctx context.Context, outputPath string, durationSec float64) error {
	args := []string{
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=mono",
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg silence generation failed: %w: %s", err, tail(string(out), 400))
	}

	return nil
}

// ExtractThumbnail grabs a frame near the start of the artifact as a JPEG.
func (s *FFmpegService) ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-ss", "00:00:01",
		"-vframes", "1",
		"-q:v", "3",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail extraction failed: %w: %s", err, tail(string(out), 400))
	}

	return nil
}

// ProbeDurationSec returns a media file's duration in seconds via ffprobe.
func (s *FFmpegService) ProbeDurationSec(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}

// ProbeResolution returns "WxH" for the first video stream.
func (s *FFmpegService) ProbeResolution(ctx context.Context, path string) (string, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ffprobe resolution failed: %w", err)
	}

	res := strings.TrimSpace(string(output))
	if res == "" {
		return "", fmt.Errorf("no video stream found in %s", path)
	}

	return res, nil
}

// CreateTempFile returns a path inside the service's temp directory.
func (s *FFmpegService) CreateTempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files.
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

// tail returns the last maxLen bytes of s for error messages; ffmpeg puts the
// useful diagnostics at the end of its output.
func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
