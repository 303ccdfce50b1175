package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
)

// WorkspacesRepository handles data access for workspaces.
type WorkspacesRepository struct {
	db *pgxpool.Pool
}

// NewWorkspacesRepository creates a new workspaces repository.
func NewWorkspacesRepository(db *pgxpool.Pool) *WorkspacesRepository {
	return &WorkspacesRepository{db: db}
}

// ListActive lists active workspaces ordered by name.
func (r *WorkspacesRepository) ListActive(ctx context.Context) ([]models.Workspace, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, is_active FROM workspaces WHERE is_active ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	workspaces, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.Workspace])
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspaces: %w", err)
	}

	return workspaces, nil
}

// GetByID retrieves a workspace by ID.
func (r *WorkspacesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var ws models.Workspace
	err := r.db.QueryRow(ctx, `SELECT id, name, is_active FROM workspaces WHERE id = $1`, id).
		Scan(&ws.ID, &ws.Name, &ws.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("workspace", "workspace not found")
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return &ws, nil
}
