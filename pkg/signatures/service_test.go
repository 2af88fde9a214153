package signatures

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/persistence/file"
)

func newTestService(t *testing.T) (*Service, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	ctx := t.Context()

	require.NoError(t, p.Directory().SaveUser(ctx, &models.User{
		ID: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Smith",
	}))

	return NewService(p, slog.Default()), p
}

func seedSignedPackage(t *testing.T, p persistence.Persistence) (*models.Package, *models.StageAction) {
	t.Helper()

	ctx := t.Context()

	pkg := &models.Package{
		OrganizationID:      "org-1",
		Title:               "Budget",
		ReferenceNumber:     "HQ-2026-00001",
		Status:              models.PackageStatusInRouting,
		OriginatorID:        "alice",
		OriginatingOfficeID: "office-a",
		Tabs: []*models.Tab{
			{
				Identifier:  "A",
				DisplayName: "Cover Sheet",
				Documents: []*models.Document{
					{ID: "doc-1", Version: 2, SHA256Hash: "aa11", Current: true},
					{ID: "doc-0", Version: 1, SHA256Hash: "bb22"},
				},
			},
			{Identifier: "B", DisplayName: "Empty Tab"},
		},
	}
	require.NoError(t, p.Packages().Save(ctx, pkg))

	action := &models.StageAction{
		PackageID:     pkg.ID,
		NodeID:        "stage-1",
		ActorID:       "alice",
		ActorOfficeID: "office-a",
		Decision:      models.DecisionComplete,
	}
	require.NoError(t, p.Routing().CreateStageAction(ctx, action))

	return pkg, action
}

func TestCanonicalPayload(t *testing.T) {
	signer := &models.User{ID: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Smith"}
	pkg := &models.Package{
		ID:              "pkg-1",
		ReferenceNumber: "HQ-2026-00001",
		Tabs: []*models.Tab{
			{
				Identifier: "A",
				Documents:  []*models.Document{{Version: 3, SHA256Hash: "cafe", Current: true}},
			},
			{Identifier: "B"}, // Empty tabs never enter the payload.
		},
	}
	action := &models.StageAction{ID: "act-1", NodeID: "stage-1", Decision: models.DecisionComplete}
	signedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	payload := CanonicalPayload(pkg, action, signer, models.SignatureTypeApprove, signedAt)

	assert.Equal(t, "pkg-1", payload["package_id"])
	assert.Equal(t, "act-1", payload["stage_action_id"])
	assert.Equal(t, "Alice Smith", payload["signer_name"])
	assert.Equal(t, "2026-08-29T12:00:00Z", payload["signed_at"])

	documents, ok := payload["documents"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, documents, 1)
	assert.Equal(t, "A", documents[0]["tab_identifier"])
	assert.Equal(t, 3, documents[0]["version"])
	assert.Equal(t, "cafe", documents[0]["sha256_hash"])
}

func TestPayloadJSON_Deterministic(t *testing.T) {
	payload := map[string]any{
		"zebra":  "last",
		"alpha":  "first",
		"middle": 42,
	}

	first, err := PayloadJSON(payload)
	require.NoError(t, err)

	second, err := PayloadJSON(payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, `{"alpha":"first","middle":42,"zebra":"last"}`, first)
}

func TestService_Create(t *testing.T) {
	service, p := newTestService(t)
	pkg, action := seedSignedPackage(t, p)

	signature, err := service.Create(t.Context(), CreateRequest{
		PackageID:     pkg.ID,
		StageActionID: action.ID,
		SignerID:      "alice",
		OfficeID:      "office-a",
		Position:      "Budget Officer",
		SignatureType: models.SignatureTypeApprove,
		Method:        models.SignatureMethodX509,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, signature.ID)
	assert.Equal(t, models.VerificationValid, signature.Status)
	assert.Equal(t, "Alice Smith", signature.SignerName)
	assert.Len(t, signature.KeyFingerprint, 40)
	assert.NotEmpty(t, signature.SignatureBlob)
	assert.Contains(t, signature.CanonicalPayload, `"reference_number":"HQ-2026-00001"`)
	assert.Contains(t, signature.CanonicalPayload, `"tab_identifier":"A"`)
}

func TestService_Create_InvalidTypeAndMethod(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Create(t.Context(), CreateRequest{
		SignatureType: "NOTARIZE",
		Method:        models.SignatureMethodX509,
	})
	require.Error(t, err)
	assert.True(t, IsSignatureError(err))
	assert.Contains(t, err.Error(), "invalid signature type")

	_, err = service.Create(t.Context(), CreateRequest{
		SignatureType: models.SignatureTypeApprove,
		Method:        "dsa",
	})
	require.Error(t, err)
	assert.True(t, IsSignatureError(err))
	assert.Contains(t, err.Error(), "invalid signature method")
}

func TestService_Create_DuplicateForStageAction(t *testing.T) {
	service, p := newTestService(t)
	pkg, action := seedSignedPackage(t, p)

	req := CreateRequest{
		PackageID:     pkg.ID,
		StageActionID: action.ID,
		SignerID:      "alice",
		SignatureType: models.SignatureTypeApprove,
		Method:        models.SignatureMethodX509,
	}

	_, err := service.Create(t.Context(), req)
	require.NoError(t, err)

	_, err = service.Create(t.Context(), req)
	require.Error(t, err)
	assert.True(t, IsSignatureError(err))
	assert.ErrorIs(t, err, persistence.ErrSignatureExists)
	assert.Contains(t, err.Error(), "already has a signature")
}

func TestService_Verify_ValidSignature(t *testing.T) {
	service, p := newTestService(t)
	pkg, action := seedSignedPackage(t, p)

	created, err := service.Create(t.Context(), CreateRequest{
		PackageID:     pkg.ID,
		StageActionID: action.ID,
		SignerID:      "alice",
		SignatureType: models.SignatureTypeApprove,
		Method:        models.SignatureMethodPGP,
	})
	require.NoError(t, err)

	verified, err := service.Verify(t.Context(), pkg.ID, created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.VerificationValid, verified.Status)
	assert.NotNil(t, verified.VerifiedAt)
}

func TestService_Verify_TamperedBlob(t *testing.T) {
	service, p := newTestService(t)
	pkg, action := seedSignedPackage(t, p)

	created, err := service.Create(t.Context(), CreateRequest{
		PackageID:     pkg.ID,
		StageActionID: action.ID,
		SignerID:      "alice",
		SignatureType: models.SignatureTypeApprove,
		Method:        models.SignatureMethodX509,
	})
	require.NoError(t, err)

	created.SignatureBlob = []byte("tampered")
	require.NoError(t, p.Signatures().Save(t.Context(), created))

	verified, err := service.Verify(t.Context(), pkg.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationInvalid, verified.Status)
}

func TestService_Verify_UnknownSignature(t *testing.T) {
	service, p := newTestService(t)
	pkg, _ := seedSignedPackage(t, p)

	_, err := service.Verify(t.Context(), pkg.ID, "missing")
	require.ErrorIs(t, err, persistence.ErrSignatureNotFound)
}
