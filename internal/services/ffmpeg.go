package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/reminisce-app/reminisce/internal/models"
)

// Rendering constants. Every normalized clip shares this frame rate and codec
// so the final concatenation can copy streams without re-encoding.
const (
	VideoFPS = 24

	// ImageHoldSeconds is how long a still image is displayed.
	ImageHoldSeconds = 2.0

	// MaxClipSeconds caps the duration taken from a source video, measured
	// from the start.
	MaxClipSeconds = 20.0
)

// FFmpegService shells out to ffmpeg/ffprobe for decoding, normalization,
// concatenation and audio muxing.
type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) *FFmpegService {
	// Create temp directory if it doesn't exist
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}

	return &FFmpegService{tempDir: tempDir}
}

// ProbeVideoSize returns the native pixel dimensions of a video's first
// video stream.
func (s *FFmpegService) ProbeVideoSize(ctx context.Context, videoPath string) (models.Size, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return models.Size{}, fmt.Errorf("ffprobe size failed for %s: %w", videoPath, err)
	}

	return parseProbeSize(string(output))
}

// ProbeDuration returns the duration of a media file in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, mediaPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed for %s: %w", mediaPath, err)
	}

	return parseProbeDuration(string(output))
}

// NormalizeVideo re-encodes a source video onto the target geometry: scaled to
// fit preserving aspect ratio, centered, padded with black. The clip is capped
// at MaxClipSeconds from the start, forced to the common frame rate, and its
// audio track is stripped (the background track is attached after assembly).
// Returns the duration of the normalized clip.
func (s *FFmpegService) NormalizeVideo(ctx context.Context, inputPath, outputPath string, target models.Size) (float64, error) {
	duration, err := s.ProbeDuration(ctx, inputPath)
	if err != nil {
		return 0, err
	}
	if duration > MaxClipSeconds {
		duration = MaxClipSeconds
	}

	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
		target.Width, target.Height, target.Width, target.Height,
	)

	args := []string{
		"-i", inputPath,
		"-t", formatSeconds(duration),
		"-vf", vf,
		"-r", strconv.Itoa(VideoFPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffmpeg normalize video failed for %s: %w", inputPath, err)
	}

	return duration, nil
}

// RenderImageClip turns an already-letterboxed still image into a silent clip
// held for ImageHoldSeconds at the common frame rate. Returns the clip duration.
func (s *FFmpegService) RenderImageClip(ctx context.Context, imagePath, outputPath string) (float64, error) {
	args := []string{
		"-loop", "1",
		"-i", imagePath,
		"-t", formatSeconds(ImageHoldSeconds),
		"-r", strconv.Itoa(VideoFPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffmpeg render image clip failed for %s: %w", imagePath, err)
	}

	return ImageHoldSeconds, nil
}

// ConcatenateClips combines normalized clips into one continuous track in the
// given order. Stream copy is safe because every clip shares the run's
// geometry, codec and frame rate.
func (s *FFmpegService) ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	// Create a concat list file; uuid-named so concurrent runs never clash
	listPath := filepath.Join(s.tempDir, fmt.Sprintf("concat_%s.txt", uuid.New()))
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, path := range clipPaths {
		// Write in FFmpeg concat format
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
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}

	return nil
}

// MuxAudio attaches a background track to the assembled video, trimmed to
// exactly totalDuration. The audio input is looped, so a track shorter than
// the video repeats instead of leaving trailing silence.
func (s *FFmpegService) MuxAudio(ctx context.Context, videoPath, audioPath, outputPath string, totalDuration float64) error {
	args := []string{
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", formatSeconds(totalDuration),
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg mux audio failed: %w", err)
	}

	return nil
}

// LetterboxImage satisfies the pipeline's media surface by delegating to the
// package-level implementation.
func (s *FFmpegService) LetterboxImage(inputPath, outputPath string, target models.Size) error {
	return LetterboxImage(inputPath, outputPath, target)
}

// TempFile returns a path inside the service's temp directory.
func (s *FFmpegService) TempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

func parseProbeSize(output string) (models.Size, error) {
	// ffprobe csv output: "1920x1080"
	line := strings.TrimSpace(strings.SplitN(output, "\n", 2)[0])
	parts := strings.Split(line, "x")
	if len(parts) != 2 {
		return models.Size{}, fmt.Errorf("unexpected ffprobe size output: %q", output)
	}

	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return models.Size{}, fmt.Errorf("failed to parse width from %q: %w", output, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return models.Size{}, fmt.Errorf("failed to parse height from %q: %w", output, err)
	}

	if width <= 0 || height <= 0 {
		return models.Size{}, fmt.Errorf("non-positive dimensions in ffprobe output: %q", output)
	}

	return models.Size{Width: width, Height: height}, nil
}

func parseProbeDuration(output string) (float64, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration from %q: %w", output, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration in ffprobe output: %q", output)
	}
	return seconds, nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
