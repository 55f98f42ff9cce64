package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/reminisce-app/reminisce/internal/db"
	"github.com/reminisce-app/reminisce/internal/models"
	"github.com/reminisce-app/reminisce/internal/services"
	"github.com/reminisce-app/reminisce/internal/storage"
)

// maxUploadBytes bounds one item upload (form overhead included).
const maxUploadBytes = 200 << 20

// Store is the durable repository surface the handlers need. *db.DB
// satisfies it; a not-found condition is reported via db.ErrNotFound.
type Store interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, status string, limit, offset int) ([]models.Project, error)
	CountProjects(ctx context.Context, status string) (int, error)
	UpdateProjectDetails(ctx context.Context, id uuid.UUID, title, description *string, category *models.ProjectCategory) error
	ClaimProjectForRun(ctx context.Context, id uuid.UUID) (bool, error)
	MarkProjectFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error
	MarkShareCodeFinalized(ctx context.Context, id uuid.UUID) error
	DeleteProject(ctx context.Context, id uuid.UUID) error
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	ListItems(ctx context.Context, projectID uuid.UUID) ([]models.Item, error)
	CountItems(ctx context.Context, projectID uuid.UUID) (int, error)
	ReorderItems(ctx context.Context, projectID uuid.UUID, itemIDs []uuid.UUID) error
	ClearItemStoragePath(ctx context.Context, id uuid.UUID) error
	DeleteItem(ctx context.Context, id uuid.UUID) error
}

// RenderQueue hands accepted render runs to the background worker.
type RenderQueue interface {
	EnqueueRender(ctx context.Context, projectID uuid.UUID) error
}

type Handler struct {
	db    Store
	queue RenderQueue
	files *storage.Storage
	codes *services.ShareCodeGenerator
}

func NewHandler(database Store, q RenderQueue, files *storage.Storage, codes *services.ShareCodeGenerator) *Handler {
	return &Handler{
		db:    database,
		queue: q,
		files: files,
		codes: codes,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}

	category := models.CategoryLifeStory
	if req.Category != nil {
		if !models.ValidCategory(*req.Category) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown category %q", *req.Category))
			return
		}
		category = *req.Category
	}

	project := &models.Project{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Status:      models.ProjectStatusPending,
	}

	if err := h.db.CreateProject(r.Context(), project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, project)
}

// ListProjects handles GET /v1/projects
// Query params:
//   - status: filter by project status (pending, processing, completed, failed)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.ProjectStatus(statusFilter) {
		case models.ProjectStatusPending, models.ProjectStatusProcessing,
			models.ProjectStatusCompleted, models.ProjectStatusFailed:
		default:
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", statusFilter))
			return
		}
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	projects, err := h.db.ListProjects(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}

	total, err := h.db.CountProjects(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count projects")
		return
	}

	if projects == nil {
		projects = []models.Project{}
	}

	respondJSON(w, http.StatusOK, models.ListProjectsResponse{
		Projects: projects,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetProject handles GET /v1/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	items, err := h.db.ListItems(r.Context(), project.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load items")
		return
	}

	respondJSON(w, http.StatusOK, models.ProjectResponse{Project: *project, Items: items})
}

// UpdateProject handles PATCH /v1/projects/{id}
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req models.UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		respondError(w, http.StatusBadRequest, "Title cannot be empty")
		return
	}
	if req.Category != nil && !models.ValidCategory(*req.Category) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown category %q", *req.Category))
		return
	}

	if err := h.db.UpdateProjectDetails(r.Context(), projectID, req.Title, req.Description, req.Category); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// DeleteProject handles DELETE /v1/projects/{id}. Item rows cascade with the
// project; backing files are removed after the records are durably gone, so a
// crash can at worst leak files, never leave dangling references.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	items, err := h.db.ListItems(r.Context(), project.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load items")
		return
	}

	if err := h.db.DeleteProject(r.Context(), project.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}

	for _, item := range items {
		if item.StoragePath != nil {
			if err := h.files.Remove(*item.StoragePath); err != nil {
				log.Printf("[API] Failed to remove item file %s: %v", *item.StoragePath, err)
			}
		}
	}
	if project.OutputPath != nil {
		if err := h.files.Remove(*project.OutputPath); err != nil {
			log.Printf("[API] Failed to remove output %s: %v", *project.OutputPath, err)
		}
	}
	if project.ShareCodePath != nil {
		if err := h.files.Remove(*project.ShareCodePath); err != nil {
			log.Printf("[API] Failed to remove share code %s: %v", *project.ShareCodePath, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /v1/projects/{id}/items (multipart form: "file",
// optional "kind"). The item's position is appended at the end of the
// current order.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	kind, err := itemKindForFilename(header.Filename, models.ItemKind(r.FormValue("kind")))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	position, err := h.db.CountItems(r.Context(), project.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count items")
		return
	}

	rel, err := h.files.SaveUpload(file, header.Filename)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	item := &models.Item{
		ID:          uuid.New(),
		ProjectID:   project.ID,
		Kind:        kind,
		StoragePath: &rel,
		Position:    position,
	}

	if err := h.db.CreateItem(r.Context(), item); err != nil {
		// The record never existed; drop the stored file rather than leak it.
		h.files.Remove(rel)
		respondError(w, http.StatusInternalServerError, "Failed to create item")
		return
	}

	respondJSON(w, http.StatusCreated, item)
}

// ReorderItems handles POST /v1/projects/{id}/items/reorder. The body must
// list every item of the project; positions are rewritten to 0..n-1 in the
// given order.
func (h *Handler) ReorderItems(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req models.ReorderItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.ItemIDs) == 0 {
		respondError(w, http.StatusBadRequest, "item_ids is required")
		return
	}

	if err := h.db.ReorderItems(r.Context(), projectID, req.ItemIDs); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Unknown item in reorder list")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.db.ListItems(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load items")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// DeleteItem handles DELETE /v1/projects/{id}/items/{itemID}. The storage
// reference is cleared before the row is deleted and the file removed last.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.db.GetItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Item not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load item")
		return
	}
	if item.ProjectID != projectID {
		respondError(w, http.StatusNotFound, "Item not found")
		return
	}

	backing := item.StoragePath

	if err := h.db.ClearItemStoragePath(r.Context(), itemID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to detach item file")
		return
	}
	if err := h.db.DeleteItem(r.Context(), itemID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete item")
		return
	}
	if backing != nil {
		if err := h.files.Remove(*backing); err != nil {
			log.Printf("[API] Failed to remove item file %s: %v", *backing, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerRender handles POST /v1/projects/{id}/render. Validates the item set,
// claims the project (single-flight), enqueues the run and returns
// immediately; the caller polls GetStatus for progress.
func (h *Handler) TriggerRender(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	count, err := h.db.CountItems(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count items")
		return
	}
	if count == 0 {
		respondError(w, http.StatusBadRequest, "Add media to the project before rendering")
		return
	}

	claimed, err := h.db.ClaimProjectForRun(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to start render")
		return
	}
	if !claimed {
		respondError(w, http.StatusConflict, "A render is already running for this project")
		return
	}

	if err := h.queue.EnqueueRender(r.Context(), projectID); err != nil {
		// The claim already flipped the status; leave a terminal state behind
		// instead of a processing project no worker will ever pick up.
		if dbErr := h.db.MarkProjectFailed(r.Context(), projectID, "enqueue_failed", err.Error()); dbErr != nil {
			log.Printf("[API] Failed to record enqueue failure for %s: %v", projectID, dbErr)
		}
		respondError(w, http.StatusInternalServerError, "Failed to enqueue render")
		return
	}

	respondJSON(w, http.StatusAccepted, models.TriggerRenderResponse{
		ProjectID: projectID,
		Status:    models.ProjectStatusProcessing,
	})
}

// GetStatus handles GET /v1/projects/{id}/status, the polling surface.
// On the first completed poll it also finalizes the share code: only here is
// the request-scoped base URL available to build the real share payload.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	resp := models.StatusResponse{Status: project.Status}

	if project.Status == models.ProjectStatusCompleted {
		if project.OutputPath != nil {
			outputURL := requestBaseURL(r) + h.files.URLPath(*project.OutputPath)
			resp.OutputURL = &outputURL
		}
		resp.RemoteURL = project.RemoteURL

		if project.ShareCodePath != nil {
			h.finalizeShareCode(r, project, resp.OutputURL)
			shareURL := requestBaseURL(r) + h.files.URLPath(*project.ShareCodePath)
			resp.ShareCodeURL = &shareURL
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// finalizeShareCode performs the second share-code pass: the placeholder is
// replaced with the real share URL (remote if present, local otherwise).
// Failures are left for the next poll to retry.
func (h *Handler) finalizeShareCode(r *http.Request, project *models.Project, outputURL *string) {
	if project.ShareCodeFinalized {
		return
	}

	payload := ""
	if project.RemoteURL != nil {
		payload = *project.RemoteURL
	} else if outputURL != nil {
		payload = *outputURL
	}
	if payload == "" {
		return
	}

	if err := h.codes.Generate(payload, h.files.Abs(*project.ShareCodePath)); err != nil {
		log.Printf("[API] Share code finalization failed for project %s: %v", project.ID, err)
		return
	}
	if err := h.db.MarkShareCodeFinalized(r.Context(), project.ID); err != nil {
		log.Printf("[API] Failed to record share code finalization for %s: %v", project.ID, err)
	}
}

// Helpers

func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return nil, false
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "Failed to load project")
		return nil, false
	}
	return project, true
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}

var (
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
	videoExtensions = map[string]bool{".mp4": true}
)

// itemKindForFilename validates the upload's extension against the declared
// kind, inferring the kind from the extension when none was declared.
func itemKindForFilename(filename string, declared models.ItemKind) (models.ItemKind, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch declared {
	case models.ItemKindImage:
		if !imageExtensions[ext] {
			return "", fmt.Errorf("file type %q is not allowed for images, use jpg, jpeg or png", ext)
		}
		return models.ItemKindImage, nil
	case models.ItemKindVideo:
		if !videoExtensions[ext] {
			return "", fmt.Errorf("file type %q is not allowed for videos, use mp4", ext)
		}
		return models.ItemKindVideo, nil
	case "":
		if imageExtensions[ext] {
			return models.ItemKindImage, nil
		}
		if videoExtensions[ext] {
			return models.ItemKindVideo, nil
		}
		return "", fmt.Errorf("only images (jpg, jpeg, png) and videos (mp4) are allowed")
	default:
		return "", fmt.Errorf("unknown item kind %q", declared)
	}
}

// requestBaseURL reconstructs the externally visible base URL of the request,
// honoring proxy forwarding headers.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}

	return scheme + "://" + host
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
