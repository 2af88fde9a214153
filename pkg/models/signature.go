package models

import "time"

// SignatureType is the declared meaning of a signature.
type SignatureType string

const (
	SignatureTypeConcur      SignatureType = "CONCUR"
	SignatureTypeApprove     SignatureType = "APPROVE"
	SignatureTypeCertify     SignatureType = "CERTIFY"
	SignatureTypeAcknowledge SignatureType = "ACKNOWLEDGE"
)

// Valid reports whether the signature type is a recognized kind.
func (s SignatureType) Valid() bool {
	switch s {
	case SignatureTypeConcur, SignatureTypeApprove, SignatureTypeCertify, SignatureTypeAcknowledge:
		return true
	default:
		return false
	}
}

// SignatureMethod is the cryptographic scheme the signature claims.
type SignatureMethod string

const (
	SignatureMethodX509 SignatureMethod = "x509"
	SignatureMethodPGP  SignatureMethod = "pgp"
)

// Valid reports whether the method is a recognized kind.
func (m SignatureMethod) Valid() bool {
	return m == SignatureMethodX509 || m == SignatureMethodPGP
}

// VerificationStatus is the recorded outcome of signature verification.
type VerificationStatus string

const (
	VerificationValid   VerificationStatus = "valid"
	VerificationExpired VerificationStatus = "expired"
	VerificationInvalid VerificationStatus = "invalid"
	VerificationRevoked VerificationStatus = "revoked"
)

// Signature binds a stage action to the document content present at
// time-of-signing. One-to-one with its StageAction; immutable once created.
type Signature struct {
	ID               string             `json:"id"`
	PackageID        string             `json:"package_id"`
	StageActionID    string             `json:"stage_action_id" validate:"required"`
	SignerID         string             `json:"signer_id"       validate:"required"`
	SignerName       string             `json:"signer_name"`
	SignerEmail      string             `json:"signer_email"    validate:"omitempty,email"`
	SignerOfficeID   string             `json:"signer_office_id"`
	SignerPosition   string             `json:"signer_position"`
	SignatureType    SignatureType      `json:"signature_type"  validate:"required"`
	Method           SignatureMethod    `json:"method"          validate:"required"`
	KeyFingerprint   string             `json:"key_fingerprint"`
	CanonicalPayload string             `json:"canonical_payload"` // Deterministic JSON signed over
	SignatureBlob    []byte             `json:"signature_blob"`
	Status           VerificationStatus `json:"status"`
	VerifiedAt       *time.Time         `json:"verified_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// ViolationResolution is the human resolution state of an integrity
// violation.
type ViolationResolution string

const (
	ResolutionPending      ViolationResolution = "pending"
	ResolutionAcknowledged ViolationResolution = "acknowledged"
	ResolutionReset        ViolationResolution = "reset"
)

// IntegrityViolation records that a document referenced by an existing
// signature's canonical payload changed after the signature was produced.
type IntegrityViolation struct {
	ID                  string              `json:"id"`
	PackageID           string              `json:"package_id"`
	TabIdentifier       string              `json:"tab_identifier"`
	ViolatingDocumentID string              `json:"violating_document_id"`
	UploadedBy          string              `json:"uploaded_by"`
	AffectedSignatures  []string            `json:"affected_signatures"` // Signature IDs invalidated by the change
	ChangeReason        string              `json:"change_reason"`
	Resolution          ViolationResolution `json:"resolution"`
	ResolvedBy          string              `json:"resolved_by,omitempty"`
	ResolvedAt          *time.Time          `json:"resolved_at,omitempty"`
	DetectedAt          time.Time           `json:"detected_at"`
}
