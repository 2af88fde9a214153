package file

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

const templatesDir = "templates"

// TemplateRepository stores each workflow template as one JSON file.
type TemplateRepository struct {
	store *store
}

func templatePath(id string) string {
	return templatesDir + "/" + id + ".json"
}

func (r *TemplateRepository) GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	rels, err := r.store.list(ctx, templatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := make([]*models.WorkflowTemplate, 0, len(rels))

	for _, rel := range rels {
		var template models.WorkflowTemplate
		if err := r.store.readJSON(ctx, rel, &template); err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", rel, err)
		}

		templates = append(templates, &template)
	}

	return templates, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	err := r.store.readJSON(ctx, templatePath(id), &template)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return &template, nil
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

	// Version only increases, bumped on every mutating save.
	template.Version++

	return r.store.writeJSON(ctx, templatePath(template.ID), template)
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return r.store.remove(ctx, templatePath(id))
}
