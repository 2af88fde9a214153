// Package web provides the HTTP handlers and REST endpoints for template,
// package, and signature management.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/routepack/routepack/pkg/actions"
	"github.com/routepack/routepack/pkg/integrity"
	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/routing"
	"github.com/routepack/routepack/pkg/signatures"
)

type APIHandlers struct {
	persistence persistence.Persistence
	engine      *routing.Engine
	signatures  *signatures.Service
	detector    *integrity.Detector
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	p persistence.Persistence,
	engine *routing.Engine,
	signatureService *signatures.Service,
	detector *integrity.Detector,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		engine:      engine,
		signatures:  signatureService,
		detector:    detector,
		validator:   validate,
		logger:      logger.With("module", "web"),
	}
}

// Templates

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.persistence.Templates().GetAll(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(templates)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.persistence.Templates().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	template := &models.WorkflowTemplate{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		CanvasData:     req.CanvasData,
		Active:         true,
		StageNodes:     req.StageNodes,
		ActionNodes:    req.ActionNodes,
		Connections:    req.Connections,
		CreatedBy:      req.CreatedBy,
	}
	if req.Active != nil {
		template.Active = *req.Active
	}

	if err := h.validateTemplateGraph(template); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.Templates().Save(c.Context(), template); err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	template, err := h.persistence.Templates().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	var req CreateTemplateRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	template.Name = req.Name
	template.Description = req.Description
	template.CanvasData = req.CanvasData
	template.StageNodes = req.StageNodes
	template.ActionNodes = req.ActionNodes
	template.Connections = req.Connections

	if req.Active != nil {
		template.Active = *req.Active
	}

	if err := h.validateTemplateGraph(template); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.Templates().Save(c.Context(), template); err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	if err := h.persistence.Templates().Delete(c.Context(), c.Params("id")); err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// validateTemplateGraph rejects templates whose connections reference unknown
// nodes or whose action node configs fail their schema.
func (h *APIHandlers) validateTemplateGraph(template *models.WorkflowTemplate) error {
	known := make(map[string]bool, len(template.StageNodes)+len(template.ActionNodes))

	for _, stage := range template.StageNodes {
		if err := h.validator.Struct(stage); err != nil {
			return err
		}

		known[stage.NodeID] = true
	}

	for _, action := range template.ActionNodes {
		if err := h.validator.Struct(action); err != nil {
			return err
		}

		if err := actions.ValidateConfig(action); err != nil {
			return err
		}

		known[action.NodeID] = true
	}

	for _, conn := range template.Connections {
		if !known[conn.FromNode] || !known[conn.ToNode] {
			return fmt.Errorf("connection references unknown node: %s -> %s", conn.FromNode, conn.ToNode)
		}
	}

	return nil
}

// Packages

func (h *APIHandlers) CreatePackage(c fiber.Ctx) error {
	var req CreatePackageRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	pkg := &models.Package{
		OrganizationID:      req.OrganizationID,
		TemplateID:          req.TemplateID,
		Title:               req.Title,
		Status:              models.PackageStatusDraft,
		Priority:            priority,
		OriginatorID:        req.OriginatorID,
		OriginatingOfficeID: req.OriginatingOfficeID,
		Tabs:                []*models.Tab{},
	}

	if err := h.persistence.Packages().Save(c.Context(), pkg); err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(pkg)
}

func (h *APIHandlers) GetPackage(c fiber.Ctx) error {
	pkg, err := h.persistence.Packages().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(pkg)
}

func (h *APIHandlers) ListPackages(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	packages, err := h.persistence.Packages().ListByOrganization(c.Context(), organizationID)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(packages)
}

func (h *APIHandlers) SubmitPackage(c fiber.Ctx) error {
	var req SubmitRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	pkg, err := h.engine.Submit(c.Context(), c.Params("id"), req.UserID)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(pkg)
}

func (h *APIHandlers) TakeAction(c fiber.Ctx) error {
	var req TakeActionRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	action, err := h.engine.TakeAction(c.Context(), c.Params("id"), routing.ActionRequest{
		UserID:       req.UserID,
		OfficeID:     req.OfficeID,
		Decision:     req.Decision,
		Comment:      req.Comment,
		ReturnToNode: req.ReturnToNode,
		Position:     req.Position,
		IPAddress:    c.IP(),
	})
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(action)
}

func (h *APIHandlers) HoldPackage(c fiber.Ctx) error {
	var req SubmitRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.Hold(c.Context(), c.Params("id"), req.UserID); err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumePackage(c fiber.Ctx) error {
	var req SubmitRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.Resume(c.Context(), c.Params("id"), req.UserID); err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	history, err := h.persistence.Routing().History(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(history)
}

func (h *APIHandlers) GetReturnNodes(c fiber.Ctx) error {
	options, err := h.engine.AvailableReturnNodes(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(options)
}

func (h *APIHandlers) GetPendingOffices(c fiber.Ctx) error {
	pending, err := h.engine.PendingOffices(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(fiber.Map{"pending_offices": pending})
}

func (h *APIHandlers) CanAct(c fiber.Ctx) error {
	userID := c.Query("user_id")
	officeID := c.Query("office_id")

	if userID == "" || officeID == "" {
		return badRequest(c, "user_id and office_id query parameters are required")
	}

	allowed, err := h.engine.CanAct(c.Context(), c.Params("id"), userID, officeID)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(fiber.Map{"can_act": allowed})
}

// Tabs and documents

func (h *APIHandlers) AddTab(c fiber.Ctx) error {
	var req AddTabRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	var tab *models.Tab

	err := h.persistence.Transact(c.Context(), func(ctx context.Context) error {
		pkg, err := h.persistence.Packages().GetForUpdate(ctx, c.Params("id"))
		if err != nil {
			return err
		}

		existing := make([]string, 0, len(pkg.Tabs))
		for _, t := range pkg.Tabs {
			existing = append(existing, t.Identifier)
		}

		identifier, err := models.NextTabIdentifier(existing)
		if err != nil {
			return err
		}

		tab = &models.Tab{
			Identifier:  identifier,
			DisplayName: req.DisplayName,
			Order:       len(pkg.Tabs),
			Required:    req.Required,
			CreatedAt:   time.Now().UTC(),
		}
		pkg.Tabs = append(pkg.Tabs, tab)

		return h.persistence.Packages().Save(ctx, pkg)
	})
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tab)
}

func (h *APIHandlers) UploadDocument(c fiber.Ctx) error {
	var req UploadDocumentRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	packageID := c.Params("id")
	tabIdentifier := c.Params("tab")

	var document *models.Document

	err := h.persistence.Transact(c.Context(), func(ctx context.Context) error {
		pkg, err := h.persistence.Packages().GetForUpdate(ctx, packageID)
		if err != nil {
			return err
		}

		tab := pkg.Tab(tabIdentifier)
		if tab == nil {
			return fmt.Errorf("tab %s: %w", tabIdentifier, persistence.ErrPackageNotFound)
		}

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate document ID: %w", err)
		}

		for _, doc := range tab.Documents {
			doc.Current = false
		}

		document = &models.Document{
			ID:         id.String(),
			Version:    tab.NextDocumentVersion(),
			Filename:   req.Filename,
			FileSize:   req.FileSize,
			MimeType:   req.MimeType,
			SHA256Hash: req.SHA256Hash,
			UploadedBy: req.UploadedBy,
			UploadedAt: time.Now().UTC(),
			Current:    true,
		}
		tab.Documents = append(tab.Documents, document)

		return h.persistence.Packages().Save(ctx, pkg)
	})
	if err != nil {
		return handleDomainError(c, err)
	}

	violation, err := h.detector.DocumentUploaded(c.Context(), packageID, tabIdentifier, document, req.ChangeReason)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document":  document,
		"violation": violation,
	})
}

// Signatures

func (h *APIHandlers) CreateSignature(c fiber.Ctx) error {
	var req SignRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	signature, err := h.signatures.Create(c.Context(), signatures.CreateRequest{
		PackageID:     c.Params("id"),
		StageActionID: req.StageActionID,
		SignerID:      req.SignerID,
		OfficeID:      req.OfficeID,
		Position:      req.Position,
		SignatureType: req.SignatureType,
		Method:        req.Method,
	})
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(signature)
}

func (h *APIHandlers) ListSignatures(c fiber.Ctx) error {
	sigs, err := h.persistence.Signatures().ByPackage(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(sigs)
}

func (h *APIHandlers) VerifySignature(c fiber.Ctx) error {
	signature, err := h.signatures.Verify(c.Context(), c.Params("id"), c.Params("signatureId"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(signature)
}

// Integrity violations

func (h *APIHandlers) ListViolations(c fiber.Ctx) error {
	violations, err := h.persistence.Signatures().ViolationsByPackage(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(violations)
}

func (h *APIHandlers) ResolveViolation(c fiber.Ctx) error {
	var req ResolveViolationRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.detector.Resolve(c.Context(), c.Params("id"), c.Params("violationId"), req.ResolvedBy, req.Resolution)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
