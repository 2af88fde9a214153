// Package integrity detects document changes that invalidate existing
// signatures and manages their resolution.
package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/routepack/routepack/pkg/eventbus"
	"github.com/routepack/routepack/pkg/events"
	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

// ErrInvalidResolution is returned for resolutions other than acknowledge or
// reset.
var ErrInvalidResolution = errors.New("invalid violation resolution")

// ErrViolationResolved is returned when resolving a violation that is no
// longer pending.
var ErrViolationResolved = errors.New("violation is already resolved")

// Detector compares new document versions against the canonical payloads of
// valid signatures. A signature that references the changed tab is evidence
// the signed content no longer matches.
type Detector struct {
	persistence persistence.Persistence
	bus         eventbus.EventBus
	logger      *slog.Logger
}

func NewDetector(p persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *Detector {
	return &Detector{
		persistence: p,
		bus:         bus,
		logger:      logger.With("module", "integrity"),
	}
}

// payloadDocument mirrors the per-tab entry of a signature's canonical
// payload.
type payloadDocument struct {
	TabIdentifier string `json:"tab_identifier"`
	Version       int    `json:"version"`
	SHA256Hash    string `json:"sha256_hash"`
}

type payloadDocuments struct {
	Documents []payloadDocument `json:"documents"`
}

// DocumentUploaded runs after a new document version lands in a tab. When any
// valid signature's payload references that tab with different content, it
// records one violation and flags the package. It returns the violation, or
// nil when no signature is affected.
func (d *Detector) DocumentUploaded(
	ctx context.Context,
	packageID, tabIdentifier string,
	document *models.Document,
	changeReason string,
) (*models.IntegrityViolation, error) {
	var violation *models.IntegrityViolation

	err := d.persistence.Transact(ctx, func(ctx context.Context) error {
		pkg, err := d.persistence.Packages().GetForUpdate(ctx, packageID)
		if err != nil {
			return err
		}

		signatures, err := d.persistence.Signatures().ByPackage(ctx, packageID)
		if err != nil {
			return err
		}

		affected := make([]string, 0)

		for _, signature := range signatures {
			if signature.Status != models.VerificationValid {
				continue
			}

			if signedTabChanged(signature, tabIdentifier, document) {
				affected = append(affected, signature.ID)
			}
		}

		if len(affected) == 0 {
			return nil
		}

		violation = &models.IntegrityViolation{
			PackageID:           pkg.ID,
			TabIdentifier:       tabIdentifier,
			ViolatingDocumentID: document.ID,
			UploadedBy:          document.UploadedBy,
			AffectedSignatures:  affected,
			ChangeReason:        changeReason,
			Resolution:          models.ResolutionPending,
		}

		if err := d.persistence.Signatures().CreateViolation(ctx, violation); err != nil {
			return err
		}

		pkg.IntegrityViolation = true

		return d.persistence.Packages().Save(ctx, pkg)
	})
	if err != nil {
		return nil, err
	}

	if violation == nil {
		return nil, nil
	}

	d.logger.WarnContext(ctx, "Integrity violation detected",
		"package_id", packageID, "tab", tabIdentifier,
		"affected_signatures", len(violation.AffectedSignatures))
	d.publishDetected(ctx, violation)

	return violation, nil
}

// Resolve records the human resolution of a violation and clears the package
// flag once no violation remains pending. A reset asks the affected offices
// to sign again; the stale signatures stay on record.
func (d *Detector) Resolve(
	ctx context.Context,
	packageID, violationID, resolvedBy string,
	resolution models.ViolationResolution,
) error {
	if resolution != models.ResolutionAcknowledged && resolution != models.ResolutionReset {
		return ErrInvalidResolution
	}

	return d.persistence.Transact(ctx, func(ctx context.Context) error {
		pkg, err := d.persistence.Packages().GetForUpdate(ctx, packageID)
		if err != nil {
			return err
		}

		violation, err := d.persistence.Signatures().ViolationByID(ctx, violationID)
		if err != nil {
			return err
		}

		if violation.Resolution != models.ResolutionPending {
			return ErrViolationResolved
		}

		now := time.Now().UTC()
		violation.Resolution = resolution
		violation.ResolvedBy = resolvedBy
		violation.ResolvedAt = &now

		if err := d.persistence.Signatures().SaveViolation(ctx, violation); err != nil {
			return err
		}

		violations, err := d.persistence.Signatures().ViolationsByPackage(ctx, packageID)
		if err != nil {
			return err
		}

		pending := false

		for _, v := range violations {
			if v.Resolution == models.ResolutionPending {
				pending = true

				break
			}
		}

		pkg.IntegrityViolation = pending

		return d.persistence.Packages().Save(ctx, pkg)
	})
}

// signedTabChanged reports whether the signature's payload references the tab
// with content other than the newly uploaded document.
func signedTabChanged(signature *models.Signature, tabIdentifier string, document *models.Document) bool {
	var payload payloadDocuments
	if err := json.Unmarshal([]byte(signature.CanonicalPayload), &payload); err != nil {
		return false
	}

	for _, entry := range payload.Documents {
		if entry.TabIdentifier != tabIdentifier {
			continue
		}

		return entry.Version != document.Version || entry.SHA256Hash != document.SHA256Hash
	}

	return false
}

func (d *Detector) publishDetected(ctx context.Context, violation *models.IntegrityViolation) {
	if d.bus == nil {
		return
	}

	event := events.IntegrityDetected{
		BaseEvent: events.BaseEvent{
			ID:        d.bus.GenerateID(),
			Type:      events.IntegrityDetectedEvent,
			Timestamp: time.Now().UTC(),
			PackageID: violation.PackageID,
		},
		TabIdentifier:      violation.TabIdentifier,
		AffectedSignatures: violation.AffectedSignatures,
		UploadedBy:         violation.UploadedBy,
	}

	if err := d.bus.Publish(ctx, violation.PackageID, event); err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish integrity event",
			"package_id", violation.PackageID, "error", err)
	}
}
