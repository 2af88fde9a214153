package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

// TemplateRepository handles workflow template database operations. The graph
// columns are JSONB documents; the engine always consumes a template whole.
type TemplateRepository struct {
	p *Persistence
}

const templateColumns = `
	id
  , organization_id
  , name
  , description
  , canvas_data
  , active
  , version
  , stage_nodes
  , action_nodes
  , connections
  , created_by
  , created_at
  , updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template    models.WorkflowTemplate
		orgID       sql.NullString
		createdBy   sql.NullString
		canvasJSON  []byte
		stagesJSON  []byte
		actionsJSON []byte
		connsJSON   []byte
	)

	err := row.Scan(
		&template.ID,
		&orgID,
		&template.Name,
		&template.Description,
		&canvasJSON,
		&template.Active,
		&template.Version,
		&stagesJSON,
		&actionsJSON,
		&connsJSON,
		&createdBy,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	template.OrganizationID = orgID.String
	template.CreatedBy = createdBy.String

	if len(canvasJSON) > 0 {
		if err := json.Unmarshal(canvasJSON, &template.CanvasData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal canvas data: %w", err)
		}
	}

	if err := json.Unmarshal(stagesJSON, &template.StageNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage nodes: %w", err)
	}

	if err := json.Unmarshal(actionsJSON, &template.ActionNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action nodes: %w", err)
	}

	if err := json.Unmarshal(connsJSON, &template.Connections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
	}

	return &template, nil
}

func (r *TemplateRepository) GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates ORDER BY created_at DESC`

	rows, err := r.p.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`

	template, err := scanTemplate(r.p.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return template, nil
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	template.Version++

	canvasJSON, err := json.Marshal(template.CanvasData)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas data: %w", err)
	}

	stagesJSON, err := json.Marshal(template.StageNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal stage nodes: %w", err)
	}

	actionsJSON, err := json.Marshal(template.ActionNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal action nodes: %w", err)
	}

	connsJSON, err := json.Marshal(template.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (
			id, organization_id, name, description, canvas_data, active,
			version, stage_nodes, action_nodes, connections, created_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			canvas_data = EXCLUDED.canvas_data,
			active = EXCLUDED.active,
			version = EXCLUDED.version,
			stage_nodes = EXCLUDED.stage_nodes,
			action_nodes = EXCLUDED.action_nodes,
			connections = EXCLUDED.connections,
			created_by = EXCLUDED.created_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.p.q(ctx).ExecContext(ctx, query,
		template.ID,
		nullString(template.OrganizationID),
		template.Name,
		template.Description,
		canvasJSON,
		template.Active,
		template.Version,
		stagesJSON,
		actionsJSON,
		connsJSON,
		nullString(template.CreatedBy),
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.p.q(ctx).ExecContext(ctx, `DELETE FROM workflow_templates WHERE id = $1`, id)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
