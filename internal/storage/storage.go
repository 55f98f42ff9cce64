package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// The media root is split into four areas: raw uploads, letterboxed
// intermediate images, rendered outputs, and share-code images.
const (
	UploadsDir = "uploads"
	ResizedDir = "resized_images"
	OutputsDir = "outputs"
	QRCodesDir = "qrcodes"
)

// Storage manages the local media areas. Paths handed to callers are relative
// to the root so they stay valid when the root moves between environments.
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	s := &Storage{root: root}
	for _, dir := range []string{UploadsDir, ResizedDir, OutputsDir, QRCodesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media dir %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Storage) Root() string {
	return s.root
}

// Abs resolves a stored relative path against the media root.
func (s *Storage) Abs(rel string) string {
	return filepath.Join(s.root, rel)
}

// URLPath maps a stored relative path onto the /media web mount.
func (s *Storage) URLPath(rel string) string {
	return "/media/" + filepath.ToSlash(rel)
}

// SaveUpload streams an uploaded file into the uploads area under a fresh
// uuid name, keeping only the original extension. Returns the relative path.
func (s *Storage) SaveUpload(r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	rel := filepath.Join(UploadsDir, uuid.New().String()+ext)

	f, err := os.Create(s.Abs(rel))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(s.Abs(rel))
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return rel, nil
}

// ResizedImagePath names the letterboxed intermediate for one source image.
func (s *Storage) ResizedImagePath(projectID uuid.UUID, sourcePath string) string {
	return filepath.Join(ResizedDir, fmt.Sprintf("resized_%s_%s", projectID, filepath.Base(sourcePath)))
}

// OutputPath names a rendered artifact. The uuid suffix makes the name
// collision-free even when two runs for the same project finish together.
func (s *Storage) OutputPath(projectID uuid.UUID) string {
	return filepath.Join(OutputsDir, fmt.Sprintf("project_%s_%s.mp4", projectID, uuid.New().String()))
}

// ShareCodePath names the share-code image for a project. Stable across the
// two generation passes so the second pass overwrites the first in place.
func (s *Storage) ShareCodePath(projectID uuid.UUID) string {
	return filepath.Join(QRCodesDir, fmt.Sprintf("qr_project_%s.png", projectID))
}

// Remove deletes a stored file. A file that is already gone is not an error.
func (s *Storage) Remove(rel string) error {
	err := os.Remove(s.Abs(rel))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}

// Exists reports whether a stored file is present on disk.
func (s *Storage) Exists(rel string) bool {
	_, err := os.Stat(s.Abs(rel))
	return err == nil
}
