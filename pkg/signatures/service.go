package signatures

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

// CreateRequest carries everything needed to sign one stage action.
type CreateRequest struct {
	PackageID     string
	StageActionID string
	SignerID      string
	OfficeID      string
	Position      string
	SignatureType models.SignatureType
	Method        models.SignatureMethod
}

// Service signs stage actions over a canonical snapshot of the package's
// document content. The signing artifact is a deterministic placeholder with
// the call contract of a real X.509/PGP implementation, so swapping the
// cryptography in never changes callers.
type Service struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewService(p persistence.Persistence, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		logger:      logger.With("module", "signatures"),
	}
}

// CanonicalPayload builds the map a signature signs over: package identity,
// the stage action, a signer snapshot, and every tab's current document
// version and hash at time-of-signing.
func CanonicalPayload(
	pkg *models.Package,
	action *models.StageAction,
	signer *models.User,
	signatureType models.SignatureType,
	timestamp time.Time,
) map[string]any {
	documents := make([]map[string]any, 0, len(pkg.Tabs))

	for _, tab := range pkg.Tabs {
		current := tab.CurrentDocument()
		if current == nil {
			continue
		}

		documents = append(documents, map[string]any{
			"tab_identifier": tab.Identifier,
			"version":        current.Version,
			"sha256_hash":    current.SHA256Hash,
		})
	}

	return map[string]any{
		"package_id":       pkg.ID,
		"reference_number": pkg.ReferenceNumber,
		"stage_action_id":  action.ID,
		"node_id":          action.NodeID,
		"decision":         string(action.Decision),
		"signer_id":        signer.ID,
		"signer_name":      signer.FullName(),
		"signer_email":     signer.Email,
		"signature_type":   string(signatureType),
		"signed_at":        timestamp.UTC().Format(time.RFC3339),
		"documents":        documents,
	}
}

// PayloadJSON serializes a canonical payload deterministically: map keys come
// out sorted and there is no incidental whitespace, so identical payloads are
// byte-identical.
func PayloadJSON(payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize canonical payload: %w", err)
	}

	return string(data), nil
}

// Create signs a stage action and persists the signature with status valid.
// A stage action carries at most one signature.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Signature, error) {
	if !req.SignatureType.Valid() {
		return nil, NewSignatureError("invalid signature type: %s", req.SignatureType)
	}

	if !req.Method.Valid() {
		return nil, NewSignatureError("invalid signature method: %s", req.Method)
	}

	pkg, err := s.persistence.Packages().GetByID(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}

	action, err := s.persistence.Routing().StageActionByID(ctx, req.StageActionID)
	if err != nil {
		return nil, err
	}

	signer, err := s.persistence.Directory().UserByID(ctx, req.SignerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	payloadJSON, err := PayloadJSON(CanonicalPayload(pkg, action, signer, req.SignatureType, now))
	if err != nil {
		return nil, err
	}

	signature := &models.Signature{
		PackageID:        pkg.ID,
		StageActionID:    action.ID,
		SignerID:         signer.ID,
		SignerName:       signer.FullName(),
		SignerEmail:      signer.Email,
		SignerOfficeID:   req.OfficeID,
		SignerPosition:   req.Position,
		SignatureType:    req.SignatureType,
		Method:           req.Method,
		KeyFingerprint:   fingerprint(signer.ID, req.Method, signer.Email),
		CanonicalPayload: payloadJSON,
		SignatureBlob:    sign(payloadJSON, signer.ID),
		Status:           models.VerificationValid,
	}

	if err := s.persistence.Signatures().Create(ctx, signature); err != nil {
		if errors.Is(err, persistence.ErrSignatureExists) {
			return nil, &SignatureError{
				Message: fmt.Sprintf("stage action %s already has a signature", action.ID),
				Err:     persistence.ErrSignatureExists,
			}
		}

		return nil, err
	}

	s.logger.InfoContext(ctx, "Signature created",
		"package_id", pkg.ID, "stage_action_id", action.ID,
		"signer_id", signer.ID, "method", req.Method)

	return signature, nil
}

// Verify recomputes the signing artifact over the stored payload, compares it
// to the stored blob, and stamps the verification time. The stored canonical
// payload is the source of truth; current package state plays no part.
func (s *Service) Verify(ctx context.Context, packageID, signatureID string) (*models.Signature, error) {
	signature, err := s.signatureByID(ctx, packageID, signatureID)
	if err != nil {
		return nil, err
	}

	expected := sign(signature.CanonicalPayload, signature.SignerID)

	now := time.Now().UTC()
	signature.VerifiedAt = &now

	if string(expected) != string(signature.SignatureBlob) {
		signature.Status = models.VerificationInvalid
	}

	if err := s.persistence.Signatures().Save(ctx, signature); err != nil {
		return nil, err
	}

	return signature, nil
}

func (s *Service) signatureByID(ctx context.Context, packageID, signatureID string) (*models.Signature, error) {
	sigs, err := s.persistence.Signatures().ByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	for _, sig := range sigs {
		if sig.ID == signatureID {
			return sig, nil
		}
	}

	return nil, persistence.ErrSignatureNotFound
}

// sign is the placeholder signing artifact: a sha256 over the payload and the
// signer identity.
func sign(payloadJSON, signerID string) []byte {
	sum := sha256.Sum256([]byte(payloadJSON + ":" + signerID))

	return []byte(hex.EncodeToString(sum[:]))
}

// fingerprint derives a stable 40-hex-character key fingerprint from the
// signer identity.
func fingerprint(signerID string, method models.SignatureMethod, email string) string {
	sum := sha256.Sum256([]byte(signerID + ":" + string(method) + ":" + email))

	return hex.EncodeToString(sum[:])[:40]
}
