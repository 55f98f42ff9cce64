package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return s
}

func TestNewCreatesAreas(t *testing.T) {
	s := newTestStorage(t)

	for _, dir := range []string{UploadsDir, ResizedDir, OutputsDir, QRCodesDir} {
		info, err := os.Stat(filepath.Join(s.Root(), dir))
		if err != nil {
			t.Fatalf("area %s missing: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("area %s is not a directory", dir)
		}
	}
}

func TestSaveUpload(t *testing.T) {
	s := newTestStorage(t)

	rel, err := s.SaveUpload(strings.NewReader("fake jpeg bytes"), "Holiday Photo.JPG")
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}

	if !strings.HasPrefix(rel, UploadsDir+string(filepath.Separator)) {
		t.Errorf("upload stored outside uploads area: %s", rel)
	}
	if filepath.Ext(rel) != ".jpg" {
		t.Errorf("expected lowercased .jpg extension, got %q", filepath.Ext(rel))
	}
	if strings.Contains(rel, "Holiday") {
		t.Errorf("original name must not leak into storage path: %s", rel)
	}

	data, err := os.ReadFile(s.Abs(rel))
	if err != nil {
		t.Fatalf("read back upload: %v", err)
	}
	if string(data) != "fake jpeg bytes" {
		t.Errorf("upload content mismatch: %q", data)
	}
}

func TestOutputPathIsCollisionFree(t *testing.T) {
	s := newTestStorage(t)
	projectID := uuid.New()

	a := s.OutputPath(projectID)
	b := s.OutputPath(projectID)
	if a == b {
		t.Errorf("two output paths for the same project collided: %s", a)
	}
	if !strings.Contains(a, "project_"+projectID.String()) {
		t.Errorf("output path not keyed by project id: %s", a)
	}
}

func TestShareCodePathIsStable(t *testing.T) {
	s := newTestStorage(t)
	projectID := uuid.New()

	if s.ShareCodePath(projectID) != s.ShareCodePath(projectID) {
		t.Error("share code path must be stable so pass 2 overwrites pass 1")
	}
}

func TestRemoveMissingFileIsNotAnError(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Remove(filepath.Join(UploadsDir, "never-existed.mp4")); err != nil {
		t.Errorf("removing a missing file should be a no-op, got %v", err)
	}
}

func TestURLPath(t *testing.T) {
	s := newTestStorage(t)
	got := s.URLPath(filepath.Join(OutputsDir, "project_x.mp4"))
	if got != "/media/outputs/project_x.mp4" {
		t.Errorf("unexpected url path: %s", got)
	}
}
