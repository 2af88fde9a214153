package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

// DirectoryRepository handles organization, office, user, and membership rows.
type DirectoryRepository struct {
	p *Persistence
}

func ensureID(id *string) error {
	if *id != "" {
		return nil
	}

	generated, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate ID: %w", err)
	}

	*id = generated.String()

	return nil
}

func (r *DirectoryRepository) SaveOrganization(ctx context.Context, org *models.Organization) error {
	if err := ensureID(&org.ID); err != nil {
		return err
	}

	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO organizations (id, code, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query, org.ID, org.Code, org.Name, org.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save organization: %w", err)
	}

	return nil
}

func (r *DirectoryRepository) organizationBy(ctx context.Context, where string, arg any) (*models.Organization, error) {
	query := `SELECT id, code, name, created_at FROM organizations WHERE ` + where

	var org models.Organization

	err := r.p.q(ctx).QueryRowContext(ctx, query, arg).Scan(&org.ID, &org.Code, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrOrganizationNotFound
		}

		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}

	return &org, nil
}

func (r *DirectoryRepository) OrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.organizationBy(ctx, "id = $1", id)
}

func (r *DirectoryRepository) OrganizationByCode(ctx context.Context, code string) (*models.Organization, error) {
	return r.organizationBy(ctx, "code = $1", code)
}

func (r *DirectoryRepository) SaveOffice(ctx context.Context, office *models.Office) error {
	if err := ensureID(&office.ID); err != nil {
		return err
	}

	if office.CreatedAt.IsZero() {
		office.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO offices (id, organization_id, code, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query,
		office.ID, office.OrganizationID, office.Code, office.Name, office.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save office: %w", err)
	}

	return nil
}

func (r *DirectoryRepository) OfficeByID(ctx context.Context, id string) (*models.Office, error) {
	query := `SELECT id, organization_id, code, name, created_at FROM offices WHERE id = $1`

	var office models.Office

	err := r.p.q(ctx).QueryRowContext(ctx, query, id).Scan(
		&office.ID, &office.OrganizationID, &office.Code, &office.Name, &office.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrOfficeNotFound
		}

		return nil, fmt.Errorf("failed to scan office: %w", err)
	}

	return &office, nil
}

func (r *DirectoryRepository) SaveUser(ctx context.Context, user *models.User) error {
	if err := ensureID(&user.ID); err != nil {
		return err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, email, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

func (r *DirectoryRepository) UserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, email, first_name, last_name, created_at FROM users WHERE id = $1`

	var user models.User

	err := r.p.q(ctx).QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &user, nil
}

func (r *DirectoryRepository) AddMembership(ctx context.Context, userID, officeID string) error {
	query := `
		INSERT INTO office_memberships (user_id, office_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, office_id) DO NOTHING
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query, userID, officeID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}

	return nil
}

func (r *DirectoryRepository) IsMember(ctx context.Context, userID, officeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM office_memberships WHERE user_id = $1 AND office_id = $2)`

	var member bool

	err := r.p.q(ctx).QueryRowContext(ctx, query, userID, officeID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to query membership: %w", err)
	}

	return member, nil
}

func (r *DirectoryRepository) OfficeMembers(ctx context.Context, officeID string) ([]*models.User, error) {
	query := `
		SELECT u.id, u.email, u.first_name, u.last_name, u.created_at
		FROM users u
		JOIN office_memberships m ON m.user_id = u.id
		WHERE m.office_id = $1
		ORDER BY u.email
	`

	rows, err := r.p.q(ctx).QueryContext(ctx, query, officeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query office members: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	members := make([]*models.User, 0)

	for rows.Next() {
		var user models.User

		err := rows.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		members = append(members, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating office members: %w", err)
	}

	return members, nil
}
