package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/reminisce-app/reminisce/internal/models"
)

func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (id, title, description, category, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		project.ID, project.Title, project.Description, project.Category, project.Status,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
}

func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT
			id, title, description, category, status,
			output_path, remote_url, share_code_path, share_code_finalized,
			error_code, error_message, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	project := &models.Project{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.Title, &project.Description, &project.Category,
		&project.Status, &project.OutputPath, &project.RemoteURL,
		&project.ShareCodePath, &project.ShareCodeFinalized,
		&project.ErrorCode, &project.ErrorMessage,
		&project.CreatedAt, &project.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjects returns projects ordered by creation date (newest first).
// Supports optional status filter, limit, and offset for pagination.
func (db *DB) ListProjects(ctx context.Context, status string, limit, offset int) ([]models.Project, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `
		SELECT
			id, title, description, category, status,
			output_path, remote_url, share_code_path, share_code_finalized,
			error_code, error_message, created_at, updated_at
		FROM projects
	`

	if status != "" {
		query := baseSelect + ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.Category, &p.Status,
			&p.OutputPath, &p.RemoteURL, &p.ShareCodePath, &p.ShareCodeFinalized,
			&p.ErrorCode, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// CountProjects returns the total number of projects, optionally filtered by status.
func (db *DB) CountProjects(ctx context.Context, status string) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE status = $1`, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	return count, err
}

func (db *DB) UpdateProjectDetails(ctx context.Context, id uuid.UUID, title, description *string, category *models.ProjectCategory) error {
	query := `
		UPDATE projects
		SET title = COALESCE($1, title),
		    description = COALESCE($2, description),
		    category = COALESCE($3, category),
		    updated_at = NOW()
		WHERE id = $4
	`
	res, err := db.ExecContext(ctx, query, title, description, category, id)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimProjectForRun atomically flips the project into processing, but only if
// no run is currently active for it. Returns false when the project is already
// processing (the single-flight guard) and ErrNotFound when it does not exist.
// Previous run results and errors are cleared so the poller never sees stale
// output alongside a fresh run.
func (db *DB) ClaimProjectForRun(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE projects
		SET status = $1,
		    output_path = NULL,
		    remote_url = NULL,
		    share_code_path = NULL,
		    share_code_finalized = FALSE,
		    error_code = NULL,
		    error_message = NULL,
		    updated_at = NOW()
		WHERE id = $2 AND status <> $1
	`

	res, err := db.ExecContext(ctx, query, models.ProjectStatusProcessing, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim project: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// Zero rows: either the project is mid-run or it does not exist.
	var status models.ProjectStatus
	err = db.QueryRowContext(ctx, `SELECT status FROM projects WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check project status: %w", err)
	}
	return false, nil
}

// MarkProjectCompleted records the published artifact and the first-pass share
// code in the same durable write that flips the status.
func (db *DB) MarkProjectCompleted(ctx context.Context, id uuid.UUID, outputPath string, remoteURL *string, shareCodePath string) error {
	query := `
		UPDATE projects
		SET status = $1,
		    output_path = $2,
		    remote_url = $3,
		    share_code_path = $4,
		    share_code_finalized = FALSE,
		    updated_at = NOW()
		WHERE id = $5
	`
	_, err := db.ExecContext(ctx, query, models.ProjectStatusCompleted, outputPath, remoteURL, shareCodePath, id)
	return err
}

func (db *DB) MarkProjectFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error {
	query := `
		UPDATE projects
		SET status = $1, error_code = $2, error_message = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.ProjectStatusFailed, errorCode, errorMessage, id)
	return err
}

// MarkShareCodeFinalized records that the share code now encodes the real
// share URL (second-pass regeneration done by the status endpoint).
func (db *DB) MarkShareCodeFinalized(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE projects SET share_code_finalized = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := db.ExecContext(ctx, query, id)
	return err
}

func (db *DB) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}
