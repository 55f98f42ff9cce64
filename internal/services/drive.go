package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUploadDisabled is returned when no remote upload endpoint is configured.
// Callers treat it like any other upload failure: the local artifact stays
// authoritative.
var ErrUploadDisabled = errors.New("remote upload disabled")

const (
	// Upload timeout per attempt, generous for large rendered videos
	driveUploadTimeout = 180 * time.Second

	// Retry configuration
	driveMaxRetries     = 3
	driveBaseRetryDelay = 1 * time.Second
	driveMaxRetryDelay  = 30 * time.Second
)

// DriveService uploads published artifacts to a Drive-style file host and
// returns a world-viewable link. The host is treated as unreliable: every
// failure is recoverable from the pipeline's point of view.
type DriveService struct {
	baseURL  string
	token    string
	folderID string
	client   *http.Client
}

func NewDriveService(baseURL, token, folderID string) *DriveService {
	return &DriveService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		folderID: folderID,
		client: &http.Client{
			Timeout: driveUploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Enabled reports whether an upload endpoint is configured.
func (s *DriveService) Enabled() bool {
	return s.baseURL != ""
}

// Upload sends a local file to the remote host under displayName and returns
// the shareable link. Retries transient failures with exponential backoff.
func (s *DriveService) Upload(ctx context.Context, localPath, displayName string) (string, error) {
	if !s.Enabled() {
		return "", ErrUploadDisabled
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	var lastErr error
	for attempt := 0; attempt <= driveMaxRetries; attempt++ {
		if attempt > 0 {
			delay := driveRetryDelay(attempt)
			log.Printf("[Drive] Upload retry %d/%d for %s (waiting %v)...", attempt, driveMaxRetries, displayName, delay)

			select {
			case <-ctx.Done():
				return "", fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		link, err := s.uploadOnce(ctx, data, displayName)
		if err == nil {
			if attempt > 0 {
				log.Printf("[Drive] Upload succeeded on attempt %d for %s", attempt+1, displayName)
			}
			return link, nil
		}

		lastErr = err
		var re *retryableUploadError
		if !errors.As(err, &re) {
			return "", err
		}
		log.Printf("[Drive] Upload attempt %d failed (retryable): %v", attempt+1, err)
	}

	return "", fmt.Errorf("upload failed after %d attempts: %w", driveMaxRetries+1, lastErr)
}

type retryableUploadError struct{ err error }

func (e *retryableUploadError) Error() string { return e.err.Error() }
func (e *retryableUploadError) Unwrap() error { return e.err }

func (s *DriveService) uploadOnce(ctx context.Context, data []byte, displayName string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, driveUploadTimeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if s.folderID != "" {
		if err := mw.WriteField("folder", s.folderID); err != nil {
			return "", fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := mw.WriteField("name", displayName); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	part, err := mw.CreateFormFile("file", filepath.Base(displayName))
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	mw.Close()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isRetryableNetErr(err) {
			return "", &retryableUploadError{fmt.Errorf("upload request failed: %w", err)}
		}
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		if isRetryableStatus(resp.StatusCode) {
			return "", &retryableUploadError{err}
		}
		return "", err
	}

	var result struct {
		ID          string `json:"id"`
		WebViewLink string `json:"webViewLink"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if result.WebViewLink == "" {
		return "", fmt.Errorf("upload response missing webViewLink")
	}

	return result.WebViewLink, nil
}

// driveRetryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func driveRetryDelay(attempt int) time.Duration {
	delay := float64(driveBaseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(driveMaxRetryDelay) {
		delay = float64(driveMaxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableNetErr checks if a network-level error is worth retrying
func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
