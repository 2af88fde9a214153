package file

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

const packagesDir = "packages"

// packageRecord is the on-disk aggregate: the package row plus everything it
// owns. Stage actions, completions, history, signatures, and violations are
// cascade-deleted with the record.
type packageRecord struct {
	Package     *models.Package              `json:"package"`
	Actions     []*models.StageAction        `json:"stage_actions"`
	Completions []*models.StageCompletion    `json:"stage_completions"`
	History     []*models.RoutingHistory     `json:"routing_history"`
	Signatures  []*models.Signature          `json:"signatures"`
	Violations  []*models.IntegrityViolation `json:"integrity_violations"`
}

func packagePath(id string) string {
	return packagesDir + "/" + id + ".json"
}

func loadRecord(ctx context.Context, s *store, packageID string) (*packageRecord, error) {
	var record packageRecord

	err := s.readJSON(ctx, packagePath(packageID), &record)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewPackageError("Get", packageID, persistence.ErrPackageNotFound)
		}

		return nil, persistence.NewPackageError("Get", packageID, err)
	}

	return &record, nil
}

func saveRecord(ctx context.Context, s *store, record *packageRecord) error {
	return s.writeJSON(ctx, packagePath(record.Package.ID), record)
}

func allRecords(ctx context.Context, s *store) ([]*packageRecord, error) {
	rels, err := s.list(ctx, packagesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}

	records := make([]*packageRecord, 0, len(rels))

	for _, rel := range rels {
		var record packageRecord
		if err := s.readJSON(ctx, rel, &record); err != nil {
			return nil, fmt.Errorf("failed to read package %s: %w", rel, err)
		}

		records = append(records, &record)
	}

	return records, nil
}

// PackageRepository stores each package aggregate as one JSON file.
type PackageRepository struct {
	store *store
}

func (r *PackageRepository) GetByID(ctx context.Context, id string) (*models.Package, error) {
	record, err := loadRecord(ctx, r.store, id)
	if err != nil {
		return nil, err
	}

	return record.Package, nil
}

func (r *PackageRepository) GetByReference(ctx context.Context, referenceNumber string) (*models.Package, error) {
	records, err := allRecords(ctx, r.store)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.Package.ReferenceNumber == referenceNumber {
			return record.Package, nil
		}
	}

	return nil, persistence.NewPackageError("GetByReference", referenceNumber, persistence.ErrPackageNotFound)
}

// GetForUpdate behaves like GetByID; the store-wide transaction lock already
// serializes concurrent transitions.
func (r *PackageRepository) GetForUpdate(ctx context.Context, id string) (*models.Package, error) {
	return r.GetByID(ctx, id)
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

	record, err := loadRecord(ctx, r.store, pkg.ID)
	if err != nil {
		if !persistence.IsPackageNotFound(err) {
			return err
		}

		record = &packageRecord{}
	}

	record.Package = pkg

	return saveRecord(ctx, r.store, record)
}

func (r *PackageRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Package, error) {
	records, err := allRecords(ctx, r.store)
	if err != nil {
		return nil, err
	}

	packages := make([]*models.Package, 0, len(records))

	for _, record := range records {
		if record.Package.OrganizationID == organizationID {
			packages = append(packages, record.Package)
		}
	}

	return packages, nil
}

func (r *PackageRepository) NextReferenceSequence(ctx context.Context, orgCode string, year int) (int, error) {
	records, err := allRecords(ctx, r.store)
	if err != nil {
		return 0, err
	}

	prefix := models.ReferencePrefix(orgCode, year)
	maxSeq := 0

	for _, record := range records {
		ref := record.Package.ReferenceNumber
		if !strings.HasPrefix(ref, prefix) {
			continue
		}

		seq, err := strconv.Atoi(strings.TrimPrefix(ref, prefix))
		if err != nil {
			continue
		}

		if seq > maxSeq {
			maxSeq = seq
		}
	}

	return maxSeq + 1, nil
}

// RoutingRepository stores stage actions, completions, and routing history
// inside the package record.
type RoutingRepository struct {
	store *store
}

func (r *RoutingRepository) CreateStageAction(ctx context.Context, action *models.StageAction) error {
	record, err := loadRecord(ctx, r.store, action.PackageID)
	if err != nil {
		return err
	}

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

	record.Actions = append(record.Actions, action)

	return saveRecord(ctx, r.store, record)
}

func (r *RoutingRepository) StageActionByID(ctx context.Context, id string) (*models.StageAction, error) {
	records, err := allRecords(ctx, r.store)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		for _, action := range record.Actions {
			if action.ID == id {
				return action, nil
			}
		}
	}

	return nil, persistence.ErrStageActionNotFound
}

func (r *RoutingRepository) StageActions(ctx context.Context, packageID string) ([]*models.StageAction, error) {
	record, err := loadRecord(ctx, r.store, packageID)
	if err != nil {
		return nil, err
	}

	return record.Actions, nil
}

func (r *RoutingRepository) CreateCompletion(ctx context.Context, completion *models.StageCompletion) error {
	record, err := loadRecord(ctx, r.store, completion.PackageID)
	if err != nil {
		return err
	}

	if completion.CreatedAt.IsZero() {
		completion.CreatedAt = time.Now().UTC()
	}

	record.Completions = append(record.Completions, completion)

	return saveRecord(ctx, r.store, record)
}

func (r *RoutingRepository) CompletionsByNode(ctx context.Context, packageID, nodeID string) ([]*models.StageCompletion, error) {
	record, err := loadRecord(ctx, r.store, packageID)
	if err != nil {
		return nil, err
	}

	completions := make([]*models.StageCompletion, 0)

	for _, completion := range record.Completions {
		if completion.NodeID == nodeID {
			completions = append(completions, completion)
		}
	}

	return completions, nil
}

func (r *RoutingRepository) DeleteCompletions(ctx context.Context, packageID, nodeID string) error {
	record, err := loadRecord(ctx, r.store, packageID)
	if err != nil {
		return err
	}

	kept := record.Completions[:0]

	for _, completion := range record.Completions {
		if completion.NodeID != nodeID {
			kept = append(kept, completion)
		}
	}

	record.Completions = kept

	return saveRecord(ctx, r.store, record)
}

func (r *RoutingRepository) AppendHistory(ctx context.Context, entry *models.RoutingHistory) error {
	record, err := loadRecord(ctx, r.store, entry.PackageID)
	if err != nil {
		return err
	}

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

	record.History = append(record.History, entry)

	return saveRecord(ctx, r.store, record)
}

func (r *RoutingRepository) History(ctx context.Context, packageID string) ([]*models.RoutingHistory, error) {
	record, err := loadRecord(ctx, r.store, packageID)
	if err != nil {
		return nil, err
	}

	return record.History, nil
}

// SignatureRepository stores signatures and integrity violations inside the
// package record.
type SignatureRepository struct {
	store *store
}

func (r *SignatureRepository) Create(ctx context.Context, signature *models.Signature) error {
	record, err := loadRecord(ctx, r.store, signature.PackageID)
	if err != nil {
		return err
	}

	for _, existing := range record.Signatures {
		if existing.StageActionID == signature.StageActionID {
			return persistence.ErrSignatureExists
		}
	}

	if signature.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate signature ID: %w", err)
		}

		signature.ID = id.String()
	}

	if signature.CreatedAt.IsZero() {
		signature.CreatedAt = time.Now().UTC()
	}

	record.Signatures = append(record.Signatures, signature)

	return saveRecord(ctx, r.store, record)
}

func (r *SignatureRepository) GetByStageAction(ctx context.Context, stageActionID string) (*models.Signature, error) {
	records, err := allRecords(ctx, r.store)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		for _, signature := range record.Signatures {
			if signature.StageActionID == stageActionID {
				return signature, nil
			}
		}
	}

	return nil, persistence.ErrSignatureNotFound
}

func (r *SignatureRepository) ByPackage(ctx context.Context, packageID string) ([]*models.Signature, error) {
	record, err := loadRecord(ctx, r.store, packageID)
	if err != nil {
		return nil, err
	}

	return record.Signatures, nil
}

func (r *SignatureRepository) Save(ctx context.Context, signature *models.Signature) error {
	record, err := loadRecord(ctx, r.store, signature.PackageID)
	if err != nil {
		return err
	}

	for i, existing := range record.Signatures {
		if existing.ID == signature.ID {
			record.Signatures[i] = signature

			return saveRecord(ctx, r.store, record)
		}
	}

	return persistence.ErrSignatureNotFound
}

func (r *SignatureRepository) CreateViolation(ctx context.Context, violation *models.IntegrityViolation) error {
	record, err := loadRecord(ctx, r.store, violation.PackageID)
	if err != nil {
		return err
	}

	if violation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate violation ID: %w", err)
		}

		violation.ID = id.String()
	}

	if violation.DetectedAt.IsZero() {
		violation.DetectedAt = time.Now().UTC()
	}

	record.Violations = append(record.Violations, violation)

	return saveRecord(ctx, r.store, record)
}

func (r *SignatureRepository) SaveViolation(ctx context.Context, violation *models.IntegrityViolation) error {
	record, err := loadRecord(ctx, r.store, violation.PackageID)
	if err != nil {
		return err
	}

	for i, existing := range record.Violations {
		if existing.ID == violation.ID {
			record.Violations[i] = violation

			return saveRecord(ctx, r.store, record)
		}
	}

	return persistence.ErrViolationNotFound
}

func (r *SignatureRepository) ViolationByID(ctx context.Context, id string) (*models.IntegrityViolation, error) {
	records, err := allRecords(ctx, r.store)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		for _, violation := range record.Violations {
			if violation.ID == id {
				return violation, nil
			}
		}
	}

	return nil, persistence.ErrViolationNotFound
}

func (r *SignatureRepository) ViolationsByPackage(ctx context.Context, packageID string) ([]*models.IntegrityViolation, error) {
	record, err := loadRecord(ctx, r.store, packageID)
	if err != nil {
		return nil, err
	}

	return record.Violations, nil
}
