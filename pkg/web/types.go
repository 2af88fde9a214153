package web

import (
	"github.com/routepack/routepack/pkg/models"
)

// CreateTemplateRequest carries a full workflow template definition.
type CreateTemplateRequest struct {
	OrganizationID string                   `json:"organization_id"`
	Name           string                   `json:"name"        validate:"required,min=3"`
	Description    string                   `json:"description"`
	CanvasData     map[string]any           `json:"canvas_data"`
	Active         *bool                    `json:"active"`
	StageNodes     []*models.StageNode      `json:"stage_nodes"`
	ActionNodes    []*models.ActionNode     `json:"action_nodes"`
	Connections    []*models.NodeConnection `json:"connections"`
	CreatedBy      string                   `json:"created_by"`
}

// CreatePackageRequest creates a draft package.
type CreatePackageRequest struct {
	OrganizationID      string                 `json:"organization_id"       validate:"required"`
	TemplateID          string                 `json:"template_id"`
	Title               string                 `json:"title"                 validate:"required,min=1"`
	Priority            models.PackagePriority `json:"priority"`
	OriginatorID        string                 `json:"originator_id"         validate:"required"`
	OriginatingOfficeID string                 `json:"originating_office_id" validate:"required"`
}

// SubmitRequest identifies the submitting user.
type SubmitRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// TakeActionRequest carries one stage decision.
type TakeActionRequest struct {
	UserID       string              `json:"user_id"   validate:"required"`
	OfficeID     string              `json:"office_id" validate:"required"`
	Decision     models.DecisionType `json:"decision"  validate:"required"`
	Comment      string              `json:"comment"`
	ReturnToNode string              `json:"return_to_node"`
	Position     string              `json:"position"`
}

// SignRequest signs an existing stage action.
type SignRequest struct {
	StageActionID string                 `json:"stage_action_id" validate:"required"`
	SignerID      string                 `json:"signer_id"       validate:"required"`
	OfficeID      string                 `json:"office_id"`
	Position      string                 `json:"position"`
	SignatureType models.SignatureType   `json:"signature_type"  validate:"required"`
	Method        models.SignatureMethod `json:"method"          validate:"required"`
}

// AddTabRequest adds an empty tab to a draft package.
type AddTabRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=1"`
	Required    bool   `json:"required"`
}

// UploadDocumentRequest records a new document version in a tab. The engine
// consumes metadata only; file bytes are stored elsewhere.
type UploadDocumentRequest struct {
	Filename     string `json:"filename"     validate:"required"`
	FileSize     int64  `json:"file_size"`
	MimeType     string `json:"mime_type"`
	SHA256Hash   string `json:"sha256_hash"  validate:"required,len=64"`
	UploadedBy   string `json:"uploaded_by"  validate:"required"`
	ChangeReason string `json:"change_reason"`
}

// ResolveViolationRequest resolves a pending integrity violation.
type ResolveViolationRequest struct {
	ResolvedBy string                     `json:"resolved_by" validate:"required"`
	Resolution models.ViolationResolution `json:"resolution"  validate:"required,oneof=acknowledged reset"`
}
