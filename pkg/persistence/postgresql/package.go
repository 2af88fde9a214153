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

// PackageRepository handles package database operations. Tabs and their
// document versions are a JSONB document on the package row; packages always
// load and save whole.
type PackageRepository struct {
	p *Persistence
}

const packageColumns = `
	id
  , organization_id
  , template_id
  , title
  , reference_number
  , status
  , priority
  , priority_deadline
  , originator_id
  , originating_office_id
  , current_node
  , integrity_violation
  , tabs
  , submitted_at
  , completed_at
  , archived_at
  , archived_by
  , archive_reason
  , created_at
  , updated_at
`

func scanPackage(row rowScanner) (*models.Package, error) {
	var (
		pkg           models.Package
		templateID    sql.NullString
		referenceNum  sql.NullString
		archivedBy    sql.NullString
		archiveReason sql.NullString
		tabsJSON      []byte
	)

	err := row.Scan(
		&pkg.ID,
		&pkg.OrganizationID,
		&templateID,
		&pkg.Title,
		&referenceNum,
		&pkg.Status,
		&pkg.Priority,
		&pkg.PriorityDeadline,
		&pkg.OriginatorID,
		&pkg.OriginatingOfficeID,
		&pkg.CurrentNode,
		&pkg.IntegrityViolation,
		&tabsJSON,
		&pkg.SubmittedAt,
		&pkg.CompletedAt,
		&pkg.ArchivedAt,
		&archivedBy,
		&archiveReason,
		&pkg.CreatedAt,
		&pkg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pkg.TemplateID = templateID.String
	pkg.ReferenceNumber = referenceNum.String
	pkg.ArchivedBy = archivedBy.String
	pkg.ArchiveReason = archiveReason.String

	if err := json.Unmarshal(tabsJSON, &pkg.Tabs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tabs: %w", err)
	}

	return &pkg, nil
}

func (r *PackageRepository) getPackage(ctx context.Context, query string, arg any) (*models.Package, error) {
	pkg, err := scanPackage(r.p.q(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewPackageError("Get", fmt.Sprintf("%v", arg), persistence.ErrPackageNotFound)
		}

		return nil, persistence.NewPackageError("Get", fmt.Sprintf("%v", arg), err)
	}

	return pkg, nil
}

func (r *PackageRepository) GetByID(ctx context.Context, id string) (*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = $1`

	return r.getPackage(ctx, query, id)
}

func (r *PackageRepository) GetByReference(ctx context.Context, referenceNumber string) (*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE reference_number = $1`

	return r.getPackage(ctx, query, referenceNumber)
}

// GetForUpdate locks the package row for the rest of the transaction.
// Concurrent routing transitions on the same package queue up here.
func (r *PackageRepository) GetForUpdate(ctx context.Context, id string) (*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = $1 FOR UPDATE`

	return r.getPackage(ctx, query, id)
}

func (r *PackageRepository) Save(ctx context.Context, pkg *models.Package) error {
	now := time.Now().UTC()

	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = now
	}

	pkg.UpdatedAt = now

	if pkg.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate package ID: %w", err)
		}

		pkg.ID = id.String()
	}

	tabsJSON, err := json.Marshal(pkg.Tabs)
	if err != nil {
		return fmt.Errorf("failed to marshal tabs: %w", err)
	}

	query := `
		INSERT INTO packages (
			id, organization_id, template_id, title, reference_number, status,
			priority, priority_deadline, originator_id, originating_office_id,
			current_node, integrity_violation, tabs, submitted_at, completed_at,
			archived_at, archived_by, archive_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			title = EXCLUDED.title,
			reference_number = EXCLUDED.reference_number,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			priority_deadline = EXCLUDED.priority_deadline,
			current_node = EXCLUDED.current_node,
			integrity_violation = EXCLUDED.integrity_violation,
			tabs = EXCLUDED.tabs,
			submitted_at = EXCLUDED.submitted_at,
			completed_at = EXCLUDED.completed_at,
			archived_at = EXCLUDED.archived_at,
			archived_by = EXCLUDED.archived_by,
			archive_reason = EXCLUDED.archive_reason,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.p.q(ctx).ExecContext(ctx, query,
		pkg.ID,
		pkg.OrganizationID,
		nullString(pkg.TemplateID),
		pkg.Title,
		nullString(pkg.ReferenceNumber),
		pkg.Status,
		pkg.Priority,
		pkg.PriorityDeadline,
		pkg.OriginatorID,
		pkg.OriginatingOfficeID,
		pkg.CurrentNode,
		pkg.IntegrityViolation,
		tabsJSON,
		pkg.SubmittedAt,
		pkg.CompletedAt,
		pkg.ArchivedAt,
		nullString(pkg.ArchivedBy),
		nullString(pkg.ArchiveReason),
		pkg.CreatedAt,
		pkg.UpdatedAt,
	)
	if err != nil {
		return persistence.NewPackageError("Save", pkg.ID, err)
	}

	return nil
}

func (r *PackageRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE organization_id = $1 ORDER BY created_at DESC`

	rows, err := r.p.q(ctx).QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	packages := make([]*models.Package, 0)

	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}

		packages = append(packages, pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packages: %w", err)
	}

	return packages, nil
}

func (r *PackageRepository) NextReferenceSequence(ctx context.Context, orgCode string, year int) (int, error) {
	// The suffix after the prefix is always 5 digits; MAX over the int cast
	// keeps gaps from reused or freed numbers out of play.
	query := `
		SELECT COALESCE(MAX(CAST(SUBSTRING(reference_number FROM LENGTH($1) + 1) AS INTEGER)), 0)
		FROM packages
		WHERE reference_number LIKE $1 || '%'
	`

	prefix := models.ReferencePrefix(orgCode, year)

	var maxSeq int
	if err := r.p.q(ctx).QueryRowContext(ctx, query, prefix).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("failed to query reference sequence: %w", err)
	}

	return maxSeq + 1, nil
}

// RoutingRepository handles stage action, completion, and history rows.
type RoutingRepository struct {
	p *Persistence
}

func (r *RoutingRepository) CreateStageAction(ctx context.Context, action *models.StageAction) error {
	if action.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate stage action ID: %w", err)
		}

		action.ID = id.String()
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO stage_actions (
			id, package_id, node_id, actor_id, actor_office_id, actor_position,
			decision, comment, return_to_node, ip_address, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query,
		action.ID,
		action.PackageID,
		action.NodeID,
		action.ActorID,
		action.ActorOfficeID,
		action.ActorPosition,
		action.Decision,
		action.Comment,
		action.ReturnToNode,
		action.IPAddress,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stage action: %w", err)
	}

	return nil
}

const stageActionColumns = `
	id
  , package_id
  , node_id
  , actor_id
  , actor_office_id
  , actor_position
  , decision
  , comment
  , return_to_node
  , ip_address
  , created_at
`

func scanStageAction(row rowScanner) (*models.StageAction, error) {
	var action models.StageAction

	err := row.Scan(
		&action.ID,
		&action.PackageID,
		&action.NodeID,
		&action.ActorID,
		&action.ActorOfficeID,
		&action.ActorPosition,
		&action.Decision,
		&action.Comment,
		&action.ReturnToNode,
		&action.IPAddress,
		&action.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &action, nil
}

func (r *RoutingRepository) StageActionByID(ctx context.Context, id string) (*models.StageAction, error) {
	query := `SELECT ` + stageActionColumns + ` FROM stage_actions WHERE id = $1`

	action, err := scanStageAction(r.p.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStageActionNotFound
		}

		return nil, fmt.Errorf("failed to scan stage action: %w", err)
	}

	return action, nil
}

func (r *RoutingRepository) StageActions(ctx context.Context, packageID string) ([]*models.StageAction, error) {
	query := `SELECT ` + stageActionColumns + ` FROM stage_actions WHERE package_id = $1 ORDER BY created_at`

	rows, err := r.p.q(ctx).QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	actions := make([]*models.StageAction, 0)

	for rows.Next() {
		action, err := scanStageAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage action: %w", err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage actions: %w", err)
	}

	return actions, nil
}

func (r *RoutingRepository) CreateCompletion(ctx context.Context, completion *models.StageCompletion) error {
	if completion.CreatedAt.IsZero() {
		completion.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO stage_completions (package_id, node_id, office_id, stage_action_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (package_id, node_id, office_id) DO NOTHING
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query,
		completion.PackageID,
		completion.NodeID,
		completion.OfficeID,
		completion.StageActionID,
		completion.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stage completion: %w", err)
	}

	return nil
}

func (r *RoutingRepository) CompletionsByNode(ctx context.Context, packageID, nodeID string) ([]*models.StageCompletion, error) {
	query := `
		SELECT package_id, node_id, office_id, stage_action_id, created_at
		FROM stage_completions
		WHERE package_id = $1 AND node_id = $2
		ORDER BY created_at
	`

	rows, err := r.p.q(ctx).QueryContext(ctx, query, packageID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage completions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	completions := make([]*models.StageCompletion, 0)

	for rows.Next() {
		var completion models.StageCompletion

		err := rows.Scan(
			&completion.PackageID,
			&completion.NodeID,
			&completion.OfficeID,
			&completion.StageActionID,
			&completion.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage completion: %w", err)
		}

		completions = append(completions, &completion)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage completions: %w", err)
	}

	return completions, nil
}

func (r *RoutingRepository) DeleteCompletions(ctx context.Context, packageID, nodeID string) error {
	query := `DELETE FROM stage_completions WHERE package_id = $1 AND node_id = $2`

	_, err := r.p.q(ctx).ExecContext(ctx, query, packageID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete stage completions: %w", err)
	}

	return nil
}

func (r *RoutingRepository) AppendHistory(ctx context.Context, entry *models.RoutingHistory) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate history ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO routing_history (id, package_id, from_node, to_node, transition, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.PackageID,
		entry.FromNode,
		entry.ToNode,
		entry.Transition,
		nullString(entry.TriggeredByID),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert routing history: %w", err)
	}

	return nil
}

func (r *RoutingRepository) History(ctx context.Context, packageID string) ([]*models.RoutingHistory, error) {
	query := `
		SELECT id, package_id, from_node, to_node, transition, triggered_by, created_at
		FROM routing_history
		WHERE package_id = $1
		ORDER BY created_at
	`

	rows, err := r.p.q(ctx).QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing history: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	history := make([]*models.RoutingHistory, 0)

	for rows.Next() {
		var (
			entry       models.RoutingHistory
			triggeredBy sql.NullString
		)

		err := rows.Scan(
			&entry.ID,
			&entry.PackageID,
			&entry.FromNode,
			&entry.ToNode,
			&entry.Transition,
			&triggeredBy,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing history: %w", err)
		}

		entry.TriggeredByID = triggeredBy.String
		history = append(history, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing history: %w", err)
	}

	return history, nil
}
