package integrity

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/persistence/file"
)

func newTestDetector(t *testing.T) (*Detector, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewDetector(p, nil, slog.Default()), p
}

func seedPackage(t *testing.T, p persistence.Persistence) *models.Package {
	t.Helper()

	pkg := &models.Package{
		OrganizationID:      "org-1",
		Title:               "Budget",
		Status:              models.PackageStatusInRouting,
		OriginatorID:        "alice",
		OriginatingOfficeID: "office-a",
	}
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	return pkg
}

// seedSignature stores a valid signature whose payload pins tab A at version 1
// with the given hash.
func seedSignature(t *testing.T, p persistence.Persistence, packageID, stageActionID, hash string) *models.Signature {
	t.Helper()

	signature := &models.Signature{
		PackageID:     packageID,
		StageActionID: stageActionID,
		SignerID:      "bob",
		SignatureType: models.SignatureTypeApprove,
		Method:        models.SignatureMethodX509,
		Status:        models.VerificationValid,
		CanonicalPayload: `{"documents":[{"tab_identifier":"A","version":1,"sha256_hash":"` + hash + `"}],` +
			`"package_id":"` + packageID + `"}`,
	}
	require.NoError(t, p.Signatures().Create(t.Context(), signature))

	return signature
}

func TestDetector_DocumentUploaded_DetectsChangedTab(t *testing.T) {
	detector, p := newTestDetector(t)
	pkg := seedPackage(t, p)
	signature := seedSignature(t, p, pkg.ID, "act-1", "aaaa")

	violation, err := detector.DocumentUploaded(t.Context(), pkg.ID, "A", &models.Document{
		ID: "doc-2", Version: 2, SHA256Hash: "bbbb", UploadedBy: "carol",
	}, "updated figures")
	require.NoError(t, err)
	require.NotNil(t, violation)

	assert.Equal(t, "A", violation.TabIdentifier)
	assert.Equal(t, "carol", violation.UploadedBy)
	assert.Equal(t, models.ResolutionPending, violation.Resolution)
	assert.Equal(t, []string{signature.ID}, violation.AffectedSignatures)
	assert.False(t, violation.DetectedAt.IsZero())

	flagged, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.True(t, flagged.IntegrityViolation)
}

func TestDetector_DocumentUploaded_SameContentIsNoViolation(t *testing.T) {
	detector, p := newTestDetector(t)
	pkg := seedPackage(t, p)
	seedSignature(t, p, pkg.ID, "act-1", "aaaa")

	// Re-upload of the exact signed version changes nothing.
	violation, err := detector.DocumentUploaded(t.Context(), pkg.ID, "A", &models.Document{
		ID: "doc-1", Version: 1, SHA256Hash: "aaaa",
	}, "")
	require.NoError(t, err)
	assert.Nil(t, violation)

	pkg, err = p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.False(t, pkg.IntegrityViolation)
}

func TestDetector_DocumentUploaded_UnreferencedTabIsNoViolation(t *testing.T) {
	detector, p := newTestDetector(t)
	pkg := seedPackage(t, p)
	seedSignature(t, p, pkg.ID, "act-1", "aaaa")

	violation, err := detector.DocumentUploaded(t.Context(), pkg.ID, "B", &models.Document{
		ID: "doc-3", Version: 1, SHA256Hash: "cccc",
	}, "")
	require.NoError(t, err)
	assert.Nil(t, violation)
}

func TestDetector_DocumentUploaded_SkipsInvalidSignatures(t *testing.T) {
	detector, p := newTestDetector(t)
	pkg := seedPackage(t, p)

	signature := seedSignature(t, p, pkg.ID, "act-1", "aaaa")
	signature.Status = models.VerificationInvalid
	require.NoError(t, p.Signatures().Save(t.Context(), signature))

	violation, err := detector.DocumentUploaded(t.Context(), pkg.ID, "A", &models.Document{
		ID: "doc-2", Version: 2, SHA256Hash: "bbbb",
	}, "")
	require.NoError(t, err)
	assert.Nil(t, violation)
}

func TestDetector_Resolve(t *testing.T) {
	detector, p := newTestDetector(t)
	pkg := seedPackage(t, p)
	seedSignature(t, p, pkg.ID, "act-1", "aaaa")

	violation, err := detector.DocumentUploaded(t.Context(), pkg.ID, "A", &models.Document{
		ID: "doc-2", Version: 2, SHA256Hash: "bbbb",
	}, "")
	require.NoError(t, err)
	require.NotNil(t, violation)

	err = detector.Resolve(t.Context(), pkg.ID, violation.ID, "dana", models.ResolutionAcknowledged)
	require.NoError(t, err)

	resolved, err := p.Signatures().ViolationByID(t.Context(), violation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionAcknowledged, resolved.Resolution)
	assert.Equal(t, "dana", resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	// No pending violation remains, so the package flag clears.
	cleared, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.False(t, cleared.IntegrityViolation)
}

func TestDetector_Resolve_KeepsFlagWhilePendingRemain(t *testing.T) {
	detector, p := newTestDetector(t)
	pkg := seedPackage(t, p)
	seedSignature(t, p, pkg.ID, "act-1", "aaaa")
	seedSignature(t, p, pkg.ID, "act-2", "aaaa")

	first, err := detector.DocumentUploaded(t.Context(), pkg.ID, "A", &models.Document{
		ID: "doc-2", Version: 2, SHA256Hash: "bbbb",
	}, "")
	require.NoError(t, err)

	second, err := detector.DocumentUploaded(t.Context(), pkg.ID, "A", &models.Document{
		ID: "doc-3", Version: 3, SHA256Hash: "cccc",
	}, "")
	require.NoError(t, err)

	require.NoError(t, detector.Resolve(t.Context(), pkg.ID, first.ID, "dana", models.ResolutionReset))

	flagged, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.True(t, flagged.IntegrityViolation)

	require.NoError(t, detector.Resolve(t.Context(), pkg.ID, second.ID, "dana", models.ResolutionAcknowledged))

	cleared, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.False(t, cleared.IntegrityViolation)
}

func TestDetector_Resolve_Validation(t *testing.T) {
	detector, p := newTestDetector(t)
	pkg := seedPackage(t, p)
	seedSignature(t, p, pkg.ID, "act-1", "aaaa")

	violation, err := detector.DocumentUploaded(t.Context(), pkg.ID, "A", &models.Document{
		ID: "doc-2", Version: 2, SHA256Hash: "bbbb",
	}, "")
	require.NoError(t, err)

	err = detector.Resolve(t.Context(), pkg.ID, violation.ID, "dana", "dismissed")
	require.ErrorIs(t, err, ErrInvalidResolution)

	require.NoError(t, detector.Resolve(t.Context(), pkg.ID, violation.ID, "dana", models.ResolutionAcknowledged))

	err = detector.Resolve(t.Context(), pkg.ID, violation.ID, "dana", models.ResolutionAcknowledged)
	require.ErrorIs(t, err, ErrViolationResolved)
}
