package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/reminisce-app/reminisce/internal/models"
	"github.com/reminisce-app/reminisce/internal/storage"
)

// Store is the durable repository surface one run needs.
type Store interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListItems(ctx context.Context, projectID uuid.UUID) ([]models.Item, error)
	MarkProjectCompleted(ctx context.Context, id uuid.UUID, outputPath string, remoteURL *string, shareCodePath string) error
	MarkProjectFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error
}

// Media covers the decode/normalize/assemble/mux operations of a run.
type Media interface {
	ProbeVideoSize(ctx context.Context, path string) (models.Size, error)
	NormalizeVideo(ctx context.Context, inputPath, outputPath string, target models.Size) (float64, error)
	LetterboxImage(inputPath, outputPath string, target models.Size) error
	RenderImageClip(ctx context.Context, imagePath, outputPath string) (float64, error)
	ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error
	MuxAudio(ctx context.Context, videoPath, audioPath, outputPath string, totalDuration float64) error
	TempFile(filename string) string
}

// Uploader pushes a published artifact to the remote host. Treated as
// unreliable; any error degrades to the local artifact.
type Uploader interface {
	Upload(ctx context.Context, localPath, displayName string) (url string, err error)
}

// CodeWriter renders a share-code image for a payload.
type CodeWriter interface {
	Generate(payload, outputPath string) error
}

// DefaultTargetSize is the run geometry when no video item supplies one.
var DefaultTargetSize = models.Size{Width: 1280, Height: 720}

// SharePlaceholder is the first-pass share-code payload, replaced once the
// real share URL is constructible at status-check time.
const SharePlaceholder = "PLACEHOLDER_URL"

// audioTracks maps a project category to its background track filename.
// Unknown categories fall back to the life-story track.
var audioTracks = map[models.ProjectCategory]string{
	models.CategoryLifeStory:        "life.mp3",
	models.CategoryEventCoverage:    "event.mp3",
	models.CategoryMemoryCollection: "memory.mp3",
}

// AudioTrackFor returns the background track filename for a category.
func AudioTrackFor(category models.ProjectCategory) string {
	if name, ok := audioTracks[category]; ok {
		return name
	}
	return audioTracks[models.CategoryLifeStory]
}

// Pipeline assembles a project's ordered items into one rendered, audio-muxed
// artifact and drives the project status machine for the run.
type Pipeline struct {
	repo     Store
	media    Media
	drive    Uploader
	codes    CodeWriter
	files    *storage.Storage
	audioDir string
}

func New(repo Store, media Media, drive Uploader, codes CodeWriter, files *storage.Storage, audioDir string) *Pipeline {
	return &Pipeline{
		repo:     repo,
		media:    media,
		drive:    drive,
		codes:    codes,
		files:    files,
		audioDir: audioDir,
	}
}

// runError carries the error code recorded on the project when a run fails.
type runError struct {
	code string
	err  error
}

func (e *runError) Error() string { return fmt.Sprintf("%s: %v", e.code, e.err) }
func (e *runError) Unwrap() error { return e.err }

func failf(code, format string, args ...interface{}) error {
	return &runError{code: code, err: fmt.Errorf(format, args...)}
}

// clip is one normalized item: a temp file owned by the run plus its duration.
type clip struct {
	path     string
	duration float64
}

// Run executes one render for the project. The project must already be in
// processing (the trigger's single-flight claim); jobs that arrive for a
// project in any other state are stale and skipped. On return the project is
// durably in a terminal state and every temp file the run created is gone.
func (p *Pipeline) Run(ctx context.Context, projectID uuid.UUID) error {
	project, err := p.repo.GetProject(ctx, projectID)
	if err != nil {
		// The trigger already claimed the project, so even a load failure must
		// leave a terminal state behind or the claim wedges every future run.
		err = failf("load_project_failed", "failed to load project %s: %w", projectID, err)
		log.Printf("[Pipeline] %v", err)
		if dbErr := p.repo.MarkProjectFailed(context.WithoutCancel(ctx), projectID, "load_project_failed", err.Error()); dbErr != nil {
			log.Printf("[Pipeline] Failed to record failure for project %s: %v", projectID, dbErr)
		}
		return err
	}

	if project.Status != models.ProjectStatusProcessing {
		log.Printf("[Pipeline] Skipping stale job for project %s (status=%s)", projectID, project.Status)
		return nil
	}

	// Arena-style ownership: every temp file acquired during the run is
	// registered here and removed on every exit path exactly once.
	var scratch []string
	defer func() {
		for _, path := range scratch {
			os.Remove(path)
		}
	}()
	acquire := func(name string) string {
		path := p.media.TempFile(name)
		scratch = append(scratch, path)
		return path
	}

	if err := p.execute(ctx, project, acquire); err != nil {
		code := "pipeline_error"
		var re *runError
		if errors.As(err, &re) {
			code = re.code
		}
		log.Printf("[Pipeline] Run failed for project %s: %v", projectID, err)

		// The terminal write happens even when ctx is already dead.
		if dbErr := p.repo.MarkProjectFailed(context.WithoutCancel(ctx), projectID, code, err.Error()); dbErr != nil {
			log.Printf("[Pipeline] Failed to record failure for project %s: %v", projectID, dbErr)
		}
		return err
	}

	log.Printf("[Pipeline] Run completed for project %s", projectID)
	return nil
}

func (p *Pipeline) execute(ctx context.Context, project *models.Project, acquire func(string) string) error {
	items, err := p.repo.ListItems(ctx, project.ID)
	if err != nil {
		return failf("load_items_failed", "failed to list items: %w", err)
	}
	if len(items) == 0 {
		return failf("no_valid_items", "project has no items")
	}

	target := p.targetSize(ctx, items)
	log.Printf("[Pipeline] Project %s: %d items, target %dx%d", project.ID, len(items), target.Width, target.Height)

	// Normalize each item in position order. Item-level failures are absorbed:
	// log, skip, continue with the rest.
	var clips []clip
	skipped := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return failf("run_cancelled", "run cancelled: %w", err)
		}

		c, err := p.normalizeItem(ctx, project.ID, item, target, acquire)
		if err != nil {
			skipped++
			log.Printf("[Pipeline] Skipping item %s (position %d): %v", item.ID, item.Position, err)
			continue
		}
		clips = append(clips, c)
	}

	if len(clips) == 0 {
		return failf("no_valid_items", "no items survived normalization (%d skipped)", skipped)
	}
	if skipped > 0 {
		log.Printf("[Pipeline] Project %s: %d of %d items skipped", project.ID, skipped, len(items))
	}

	// Assemble the timeline. The sum of normalized durations is the
	// authoritative total used to trim the background audio.
	trackPath := acquire(fmt.Sprintf("track_%s.mp4", project.ID))
	clipPaths := make([]string, len(clips))
	total := 0.0
	for i, c := range clips {
		clipPaths[i] = c.path
		total += c.duration
	}

	if err := p.media.ConcatenateClips(ctx, clipPaths, trackPath); err != nil {
		return failf("assemble_failed", "failed to concatenate clips: %w", err)
	}

	finalPath := p.attachAudio(ctx, project, trackPath, total, acquire)

	outputRel, err := p.publish(project.ID, finalPath)
	if err != nil {
		return failf("publish_failed", "failed to publish artifact: %w", err)
	}

	remoteURL := p.uploadArtifact(ctx, project.ID, outputRel)

	// First-pass share code: the real URL needs a request-scoped base, so a
	// placeholder is encoded now and rewritten by the status endpoint later.
	shareRel := p.files.ShareCodePath(project.ID)
	if err := p.codes.Generate(SharePlaceholder, p.files.Abs(shareRel)); err != nil {
		// Non-fatal: the pass-2 regeneration path retries against the same file.
		log.Printf("[Pipeline] Share code generation failed for project %s: %v", project.ID, err)
	}

	if err := p.repo.MarkProjectCompleted(context.WithoutCancel(ctx), project.ID, outputRel, remoteURL, shareRel); err != nil {
		return failf("finalize_failed", "failed to record completion: %w", err)
	}

	return nil
}

// targetSize derives the run geometry: the native size of the first probeable
// video item, or the fixed default when the project has none.
func (p *Pipeline) targetSize(ctx context.Context, items []models.Item) models.Size {
	for _, item := range items {
		if item.Kind != models.ItemKindVideo || item.StoragePath == nil {
			continue
		}
		size, err := p.media.ProbeVideoSize(ctx, p.files.Abs(*item.StoragePath))
		if err != nil {
			log.Printf("[Pipeline] Could not probe video %s for target size: %v", item.ID, err)
			continue
		}
		return size
	}
	return DefaultTargetSize
}

func (p *Pipeline) normalizeItem(ctx context.Context, projectID uuid.UUID, item models.Item, target models.Size, acquire func(string) string) (clip, error) {
	if item.StoragePath == nil {
		return clip{}, fmt.Errorf("item has no backing file")
	}
	src := p.files.Abs(*item.StoragePath)
	if _, err := os.Stat(src); err != nil {
		return clip{}, fmt.Errorf("backing file missing: %w", err)
	}

	out := acquire(fmt.Sprintf("clip_%s.mp4", item.ID))

	switch item.Kind {
	case models.ItemKindVideo:
		duration, err := p.media.NormalizeVideo(ctx, src, out, target)
		if err != nil {
			return clip{}, err
		}
		return clip{path: out, duration: duration}, nil

	case models.ItemKindImage:
		// The letterboxed intermediate lives in the resized area, keyed by
		// project, alongside the other persisted artifacts.
		resizedRel := p.files.ResizedImagePath(projectID, *item.StoragePath)
		if err := p.media.LetterboxImage(src, p.files.Abs(resizedRel), target); err != nil {
			return clip{}, err
		}
		duration, err := p.media.RenderImageClip(ctx, p.files.Abs(resizedRel), out)
		if err != nil {
			return clip{}, err
		}
		return clip{path: out, duration: duration}, nil

	default:
		return clip{}, fmt.Errorf("unsupported item kind %q", item.Kind)
	}
}

// attachAudio muxes the category's background track under the assembled video,
// trimmed to exactly totalDuration (a shorter track loops). A missing track or
// a mux failure degrades to the silent assembled track.
func (p *Pipeline) attachAudio(ctx context.Context, project *models.Project, trackPath string, totalDuration float64, acquire func(string) string) string {
	audioPath := filepath.Join(p.audioDir, AudioTrackFor(project.Category))
	if _, err := os.Stat(audioPath); err != nil {
		log.Printf("[Pipeline] Audio track %s not found, producing silent video", audioPath)
		return trackPath
	}

	muxedPath := acquire(fmt.Sprintf("muxed_%s.mp4", project.ID))
	if err := p.media.MuxAudio(ctx, trackPath, audioPath, muxedPath, totalDuration); err != nil {
		log.Printf("[Pipeline] Audio mux failed for project %s, keeping silent video: %v", project.ID, err)
		return trackPath
	}
	return muxedPath
}

// publish moves the rendered file into the durable outputs area under a
// collision-free name and returns the stored relative path.
func (p *Pipeline) publish(projectID uuid.UUID, renderedPath string) (string, error) {
	outputRel := p.files.OutputPath(projectID)
	if err := moveFile(renderedPath, p.files.Abs(outputRel)); err != nil {
		return "", err
	}
	return outputRel, nil
}

// uploadArtifact attempts the remote upload. Any failure is recoverable: the
// local artifact stays authoritative and the run still completes.
func (p *Pipeline) uploadArtifact(ctx context.Context, projectID uuid.UUID, outputRel string) *string {
	name := filepath.Base(outputRel)
	url, err := p.drive.Upload(ctx, p.files.Abs(outputRel), name)
	if err != nil {
		log.Printf("[Pipeline] Remote upload failed for project %s, local artifact is authoritative: %v", projectID, err)
		return nil
	}
	log.Printf("[Pipeline] Uploaded artifact for project %s: %s", projectID, url)
	return &url
}

// moveFile renames src to dst, falling back to copy+remove when the rename
// crosses filesystems (temp dir and media root are often separate mounts).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open rendered file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy rendered file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to flush output file: %w", err)
	}

	os.Remove(src)
	return nil
}
