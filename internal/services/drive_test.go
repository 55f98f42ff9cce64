package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func writeTempArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project_x.mp4")
	if err := os.WriteFile(path, []byte("rendered video bytes"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestDriveUpload(t *testing.T) {
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotName = r.FormValue("name")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"abc123","webViewLink":"https://drive.example.com/view/abc123"}`))
	}))
	defer srv.Close()

	svc := NewDriveService(srv.URL, "token", "folder-1")
	link, err := svc.Upload(context.Background(), writeTempArtifact(t), "project_x.mp4")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if link != "https://drive.example.com/view/abc123" {
		t.Errorf("unexpected link: %s", link)
	}
	if gotName != "project_x.mp4" {
		t.Errorf("display name not sent, got %q", gotName)
	}
}

func TestDriveUploadRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"abc","webViewLink":"https://drive.example.com/view/abc"}`))
	}))
	defer srv.Close()

	svc := NewDriveService(srv.URL, "", "")
	link, err := svc.Upload(context.Background(), writeTempArtifact(t), "a.mp4")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if link == "" {
		t.Error("expected link after retry")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestDriveUploadDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	svc := NewDriveService(srv.URL, "bad-token", "")
	if _, err := svc.Upload(context.Background(), writeTempArtifact(t), "a.mp4"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("403 must not be retried, got %d attempts", calls)
	}
}

func TestDriveUploadDisabled(t *testing.T) {
	svc := NewDriveService("", "", "")
	if svc.Enabled() {
		t.Error("empty base URL should disable uploads")
	}

	_, err := svc.Upload(context.Background(), "whatever.mp4", "a.mp4")
	if !errors.Is(err, ErrUploadDisabled) {
		t.Errorf("expected ErrUploadDisabled, got %v", err)
	}
}

func TestDriveUploadMissingLocalFile(t *testing.T) {
	svc := NewDriveService("http://localhost:1", "", "")
	if _, err := svc.Upload(context.Background(), "/does/not/exist.mp4", "a.mp4"); err == nil {
		t.Fatal("expected error for missing local file")
	}
}
