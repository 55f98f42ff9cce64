package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums
type ProjectStatus string

const (
	ProjectStatusPending    ProjectStatus = "pending"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// ProjectCategory selects the background audio track for the rendered video.
type ProjectCategory string

const (
	CategoryLifeStory        ProjectCategory = "life_story"
	CategoryEventCoverage    ProjectCategory = "event_coverage"
	CategoryMemoryCollection ProjectCategory = "memory_collection"
)

// ValidCategory reports whether c is one of the known project categories.
func ValidCategory(c ProjectCategory) bool {
	switch c {
	case CategoryLifeStory, CategoryEventCoverage, CategoryMemoryCollection:
		return true
	}
	return false
}

type ItemKind string

const (
	ItemKindImage ItemKind = "image"
	ItemKindVideo ItemKind = "video"
)

// Size is a pixel geometry (the render target for one pipeline run).
type Size struct {
	Width  int
	Height int
}

// Models

type Project struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    ProjectCategory `json:"category"`
	Status      ProjectStatus   `json:"status"`
	// OutputPath is the rendered artifact, relative to the media root.
	// Set only by a completed run.
	OutputPath *string `json:"output_path,omitempty"`
	// RemoteURL is the externally hosted copy of the artifact. Absent when the
	// remote upload failed or is disabled; the local output is then authoritative.
	RemoteURL     *string `json:"remote_url,omitempty"`
	ShareCodePath *string `json:"share_code_path,omitempty"`
	// ShareCodeFinalized is true once the share code encodes the real share URL
	// rather than the first-pass placeholder.
	ShareCodeFinalized bool      `json:"share_code_finalized"`
	ErrorCode          *string   `json:"error_code,omitempty"`
	ErrorMessage       *string   `json:"error_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Item struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Kind      ItemKind  `json:"kind"`
	// StoragePath is relative to the media root. Nil while the item is being
	// deleted: the reference is cleared before the row goes away so a crash
	// mid-delete can never leave a row pointing at a removed file.
	StoragePath *string   `json:"storage_path,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// DTOs for API requests and responses

type CreateProjectRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    *ProjectCategory `json:"category,omitempty"` // Default: life_story
}

type UpdateProjectRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *ProjectCategory `json:"category,omitempty"`
}

type ProjectResponse struct {
	Project
	Items []Item `json:"items,omitempty"`
}

type ListProjectsResponse struct {
	Projects []Project `json:"projects"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

type ReorderItemsRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids"`
}

type TriggerRenderResponse struct {
	ProjectID uuid.UUID     `json:"project_id"`
	Status    ProjectStatus `json:"status"`
}

// StatusResponse is the coarse polling surface. Output fields are present only
// when the project is completed.
type StatusResponse struct {
	Status       ProjectStatus `json:"status"`
	OutputURL    *string       `json:"output_url,omitempty"`
	RemoteURL    *string       `json:"remote_url,omitempty"`
	ShareCodeURL *string       `json:"share_code_url,omitempty"`
}
