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

const (
	organizationsFile = "directory/organizations.json"
	officesFile       = "directory/offices.json"
	usersFile         = "directory/users.json"
	membershipsFile   = "directory/memberships.json"
)

// DirectoryRepository stores the org/office/user directory as JSON maps.
type DirectoryRepository struct {
	store *store
}

func readMap[T any](ctx context.Context, s *store, rel string) (map[string]T, error) {
	m := make(map[string]T)

	err := s.readJSON(ctx, rel, &m)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	return m, nil
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
	orgs, err := readMap[*models.Organization](ctx, r.store, organizationsFile)
	if err != nil {
		return err
	}

	if err := ensureID(&org.ID); err != nil {
		return err
	}

	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}

	orgs[org.ID] = org

	return r.store.writeJSON(ctx, organizationsFile, orgs)
}

func (r *DirectoryRepository) OrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	orgs, err := readMap[*models.Organization](ctx, r.store, organizationsFile)
	if err != nil {
		return nil, err
	}

	org, ok := orgs[id]
	if !ok {
		return nil, persistence.ErrOrganizationNotFound
	}

	return org, nil
}

func (r *DirectoryRepository) OrganizationByCode(ctx context.Context, code string) (*models.Organization, error) {
	orgs, err := readMap[*models.Organization](ctx, r.store, organizationsFile)
	if err != nil {
		return nil, err
	}

	for _, org := range orgs {
		if org.Code == code {
			return org, nil
		}
	}

	return nil, persistence.ErrOrganizationNotFound
}

func (r *DirectoryRepository) SaveOffice(ctx context.Context, office *models.Office) error {
	offices, err := readMap[*models.Office](ctx, r.store, officesFile)
	if err != nil {
		return err
	}

	if err := ensureID(&office.ID); err != nil {
		return err
	}

	if office.CreatedAt.IsZero() {
		office.CreatedAt = time.Now().UTC()
	}

	offices[office.ID] = office

	return r.store.writeJSON(ctx, officesFile, offices)
}

func (r *DirectoryRepository) OfficeByID(ctx context.Context, id string) (*models.Office, error) {
	offices, err := readMap[*models.Office](ctx, r.store, officesFile)
	if err != nil {
		return nil, err
	}

	office, ok := offices[id]
	if !ok {
		return nil, persistence.ErrOfficeNotFound
	}

	return office, nil
}

func (r *DirectoryRepository) SaveUser(ctx context.Context, user *models.User) error {
	users, err := readMap[*models.User](ctx, r.store, usersFile)
	if err != nil {
		return err
	}

	if err := ensureID(&user.ID); err != nil {
		return err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	users[user.ID] = user

	return r.store.writeJSON(ctx, usersFile, users)
}

func (r *DirectoryRepository) UserByID(ctx context.Context, id string) (*models.User, error) {
	users, err := readMap[*models.User](ctx, r.store, usersFile)
	if err != nil {
		return nil, err
	}

	user, ok := users[id]
	if !ok {
		return nil, persistence.ErrUserNotFound
	}

	return user, nil
}

func membershipKey(userID, officeID string) string {
	return userID + ":" + officeID
}

func (r *DirectoryRepository) AddMembership(ctx context.Context, userID, officeID string) error {
	memberships, err := readMap[*models.OfficeMembership](ctx, r.store, membershipsFile)
	if err != nil {
		return err
	}

	memberships[membershipKey(userID, officeID)] = &models.OfficeMembership{
		UserID:    userID,
		OfficeID:  officeID,
		CreatedAt: time.Now().UTC(),
	}

	return r.store.writeJSON(ctx, membershipsFile, memberships)
}

func (r *DirectoryRepository) IsMember(ctx context.Context, userID, officeID string) (bool, error) {
	memberships, err := readMap[*models.OfficeMembership](ctx, r.store, membershipsFile)
	if err != nil {
		return false, err
	}

	_, ok := memberships[membershipKey(userID, officeID)]

	return ok, nil
}

func (r *DirectoryRepository) OfficeMembers(ctx context.Context, officeID string) ([]*models.User, error) {
	memberships, err := readMap[*models.OfficeMembership](ctx, r.store, membershipsFile)
	if err != nil {
		return nil, err
	}

	users, err := readMap[*models.User](ctx, r.store, usersFile)
	if err != nil {
		return nil, err
	}

	members := make([]*models.User, 0)

	for _, membership := range memberships {
		if membership.OfficeID != officeID {
			continue
		}

		if user, ok := users[membership.UserID]; ok {
			members = append(members, user)
		}
	}

	return members, nil
}
