package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

// SignatureRepository handles signature and integrity violation rows.
type SignatureRepository struct {
	p *Persistence
}

const signatureColumns = `
	id
  , package_id
  , stage_action_id
  , signer_id
  , signer_name
  , signer_email
  , signer_office_id
  , signer_position
  , signature_type
  , method
  , key_fingerprint
  , canonical_payload
  , signature_blob
  , status
  , verified_at
  , created_at
`

func scanSignature(row rowScanner) (*models.Signature, error) {
	var signature models.Signature

	err := row.Scan(
		&signature.ID,
		&signature.PackageID,
		&signature.StageActionID,
		&signature.SignerID,
		&signature.SignerName,
		&signature.SignerEmail,
		&signature.SignerOfficeID,
		&signature.SignerPosition,
		&signature.SignatureType,
		&signature.Method,
		&signature.KeyFingerprint,
		&signature.CanonicalPayload,
		&signature.SignatureBlob,
		&signature.Status,
		&signature.VerifiedAt,
		&signature.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &signature, nil
}

func (r *SignatureRepository) Create(ctx context.Context, signature *models.Signature) error {
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

	query := `
		INSERT INTO signatures (
			id, package_id, stage_action_id, signer_id, signer_name,
			signer_email, signer_office_id, signer_position, signature_type,
			method, key_fingerprint, canonical_payload, signature_blob, status,
			verified_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.p.q(ctx).ExecContext(ctx, query,
		signature.ID,
		signature.PackageID,
		signature.StageActionID,
		signature.SignerID,
		signature.SignerName,
		signature.SignerEmail,
		signature.SignerOfficeID,
		signature.SignerPosition,
		signature.SignatureType,
		signature.Method,
		signature.KeyFingerprint,
		signature.CanonicalPayload,
		signature.SignatureBlob,
		signature.Status,
		signature.VerifiedAt,
		signature.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.ErrSignatureExists
		}

		return fmt.Errorf("failed to insert signature: %w", err)
	}

	return nil
}

func (r *SignatureRepository) GetByStageAction(ctx context.Context, stageActionID string) (*models.Signature, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures WHERE stage_action_id = $1`

	signature, err := scanSignature(r.p.q(ctx).QueryRowContext(ctx, query, stageActionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSignatureNotFound
		}

		return nil, fmt.Errorf("failed to scan signature: %w", err)
	}

	return signature, nil
}

func (r *SignatureRepository) ByPackage(ctx context.Context, packageID string) ([]*models.Signature, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures WHERE package_id = $1 ORDER BY created_at`

	rows, err := r.p.q(ctx).QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	signatures := make([]*models.Signature, 0)

	for rows.Next() {
		signature, err := scanSignature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}

		signatures = append(signatures, signature)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signatures: %w", err)
	}

	return signatures, nil
}

func (r *SignatureRepository) Save(ctx context.Context, signature *models.Signature) error {
	query := `
		UPDATE signatures
		SET status = $2, verified_at = $3
		WHERE id = $1
	`

	result, err := r.p.q(ctx).ExecContext(ctx, query, signature.ID, signature.Status, signature.VerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to update signature: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update signature: %w", err)
	}

	if affected == 0 {
		return persistence.ErrSignatureNotFound
	}

	return nil
}

const violationColumns = `
	id
  , package_id
  , tab_identifier
  , violating_document_id
  , uploaded_by
  , affected_signatures
  , change_reason
  , resolution
  , resolved_by
  , resolved_at
  , detected_at
`

func scanViolation(row rowScanner) (*models.IntegrityViolation, error) {
	var (
		violation    models.IntegrityViolation
		resolvedBy   sql.NullString
		affectedJSON []byte
	)

	err := row.Scan(
		&violation.ID,
		&violation.PackageID,
		&violation.TabIdentifier,
		&violation.ViolatingDocumentID,
		&violation.UploadedBy,
		&affectedJSON,
		&violation.ChangeReason,
		&violation.Resolution,
		&resolvedBy,
		&violation.ResolvedAt,
		&violation.DetectedAt,
	)
	if err != nil {
		return nil, err
	}

	violation.ResolvedBy = resolvedBy.String

	if err := json.Unmarshal(affectedJSON, &violation.AffectedSignatures); err != nil {
		return nil, fmt.Errorf("failed to unmarshal affected signatures: %w", err)
	}

	return &violation, nil
}

func (r *SignatureRepository) CreateViolation(ctx context.Context, violation *models.IntegrityViolation) error {
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

	affectedJSON, err := json.Marshal(violation.AffectedSignatures)
	if err != nil {
		return fmt.Errorf("failed to marshal affected signatures: %w", err)
	}

	query := `
		INSERT INTO integrity_violations (
			id, package_id, tab_identifier, violating_document_id, uploaded_by,
			affected_signatures, change_reason, resolution, resolved_by,
			resolved_at, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.p.q(ctx).ExecContext(ctx, query,
		violation.ID,
		violation.PackageID,
		violation.TabIdentifier,
		violation.ViolatingDocumentID,
		violation.UploadedBy,
		affectedJSON,
		violation.ChangeReason,
		violation.Resolution,
		nullString(violation.ResolvedBy),
		violation.ResolvedAt,
		violation.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert integrity violation: %w", err)
	}

	return nil
}

func (r *SignatureRepository) SaveViolation(ctx context.Context, violation *models.IntegrityViolation) error {
	query := `
		UPDATE integrity_violations
		SET resolution = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1
	`

	result, err := r.p.q(ctx).ExecContext(ctx, query,
		violation.ID,
		violation.Resolution,
		nullString(violation.ResolvedBy),
		violation.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update integrity violation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update integrity violation: %w", err)
	}

	if affected == 0 {
		return persistence.ErrViolationNotFound
	}

	return nil
}

func (r *SignatureRepository) ViolationByID(ctx context.Context, id string) (*models.IntegrityViolation, error) {
	query := `SELECT ` + violationColumns + ` FROM integrity_violations WHERE id = $1`

	violation, err := scanViolation(r.p.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrViolationNotFound
		}

		return nil, fmt.Errorf("failed to scan integrity violation: %w", err)
	}

	return violation, nil
}

func (r *SignatureRepository) ViolationsByPackage(ctx context.Context, packageID string) ([]*models.IntegrityViolation, error) {
	query := `SELECT ` + violationColumns + ` FROM integrity_violations WHERE package_id = $1 ORDER BY detected_at`

	rows, err := r.p.q(ctx).QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrity violations: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	violations := make([]*models.IntegrityViolation, 0)

	for rows.Next() {
		violation, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integrity violation: %w", err)
		}

		violations = append(violations, violation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integrity violations: %w", err)
	}

	return violations, nil
}
