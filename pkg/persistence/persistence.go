// Package persistence provides the data storage abstraction layer for
// workflow templates, packages, and routing records.
package persistence

import (
	"context"

	"github.com/routepack/routepack/pkg/models"
)

// Persistence aggregates the repositories and transaction support of one
// storage backend.
type Persistence interface {
	Templates() TemplateRepository
	Packages() PackageRepository
	Routing() RoutingRepository
	Signatures() SignatureRepository
	Directory() DirectoryRepository

	// Transact runs fn atomically: either every write made through the
	// repositories with the derived context commits, or none do. Concurrent
	// transactions touching the same package serialize, never interleave.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TemplateRepository stores workflow templates with their nodes and
// connections.
type TemplateRepository interface {
	GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	// Save persists the template, assigning an ID on first save and bumping
	// the version on every call.
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	Delete(ctx context.Context, id string) error
}

// PackageRepository stores packages and their tabs/documents.
type PackageRepository interface {
	GetByID(ctx context.Context, id string) (*models.Package, error)
	GetByReference(ctx context.Context, referenceNumber string) (*models.Package, error)
	// GetForUpdate loads the package and locks it for the duration of the
	// surrounding transaction. Routing transitions must load through this.
	GetForUpdate(ctx context.Context, id string) (*models.Package, error)
	Save(ctx context.Context, pkg *models.Package) error
	ListByOrganization(ctx context.Context, organizationID string) ([]*models.Package, error)
	// NextReferenceSequence returns max existing sequence + 1 for the
	// (organization code, year) scope.
	NextReferenceSequence(ctx context.Context, orgCode string, year int) (int, error)
}

// RoutingRepository stores the per-package routing records: stage actions,
// completions, and the history ledger.
type RoutingRepository interface {
	CreateStageAction(ctx context.Context, action *models.StageAction) error
	StageActionByID(ctx context.Context, id string) (*models.StageAction, error)
	StageActions(ctx context.Context, packageID string) ([]*models.StageAction, error)

	CreateCompletion(ctx context.Context, completion *models.StageCompletion) error
	CompletionsByNode(ctx context.Context, packageID, nodeID string) ([]*models.StageCompletion, error)
	DeleteCompletions(ctx context.Context, packageID, nodeID string) error

	AppendHistory(ctx context.Context, entry *models.RoutingHistory) error
	History(ctx context.Context, packageID string) ([]*models.RoutingHistory, error)
}

// SignatureRepository stores signatures and integrity violations.
type SignatureRepository interface {
	Create(ctx context.Context, signature *models.Signature) error
	GetByStageAction(ctx context.Context, stageActionID string) (*models.Signature, error)
	ByPackage(ctx context.Context, packageID string) ([]*models.Signature, error)
	Save(ctx context.Context, signature *models.Signature) error

	CreateViolation(ctx context.Context, violation *models.IntegrityViolation) error
	SaveViolation(ctx context.Context, violation *models.IntegrityViolation) error
	ViolationByID(ctx context.Context, id string) (*models.IntegrityViolation, error)
	ViolationsByPackage(ctx context.Context, packageID string) ([]*models.IntegrityViolation, error)
}

// DirectoryRepository stores the organization/office/user directory the
// engine consults for authorization and notification fan-out.
type DirectoryRepository interface {
	SaveOrganization(ctx context.Context, org *models.Organization) error
	OrganizationByID(ctx context.Context, id string) (*models.Organization, error)
	OrganizationByCode(ctx context.Context, code string) (*models.Organization, error)

	SaveOffice(ctx context.Context, office *models.Office) error
	OfficeByID(ctx context.Context, id string) (*models.Office, error)

	SaveUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)

	AddMembership(ctx context.Context, userID, officeID string) error
	IsMember(ctx context.Context, userID, officeID string) (bool, error)
	OfficeMembers(ctx context.Context, officeID string) ([]*models.User, error)
}
