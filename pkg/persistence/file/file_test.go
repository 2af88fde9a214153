package file

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
)

func TestTemplateRepository_SaveAndGet(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)

	template := &models.WorkflowTemplate{
		Name: "Budget Review",
		StageNodes: []*models.StageNode{
			{NodeID: "stage-1", Name: "Review", StageType: models.StageTypeApprove, AssignedOffices: []string{"office-a"}},
		},
	}
	require.NoError(t, p.Templates().Save(t.Context(), template))

	assert.NotEmpty(t, template.ID)
	assert.Equal(t, 1, template.Version)
	assert.False(t, template.CreatedAt.IsZero())
	assert.FileExists(t, filepath.Join(root, "templates", template.ID+".json"))

	loaded, err := p.Templates().GetByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budget Review", loaded.Name)
	require.Len(t, loaded.StageNodes, 1)
	assert.Equal(t, "stage-1", loaded.StageNodes[0].NodeID)
}

func TestTemplateRepository_SaveBumpsVersion(t *testing.T) {
	p := NewPersistence(t.TempDir())

	template := &models.WorkflowTemplate{Name: "Budget Review"}
	require.NoError(t, p.Templates().Save(t.Context(), template))
	require.NoError(t, p.Templates().Save(t.Context(), template))

	assert.Equal(t, 2, template.Version)
}

func TestTemplateRepository_GetByID_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.Templates().GetByID(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestTemplateRepository_Delete(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)

	template := &models.WorkflowTemplate{Name: "Budget Review"}
	require.NoError(t, p.Templates().Save(t.Context(), template))
	require.NoError(t, p.Templates().Delete(t.Context(), template.ID))

	assert.NoFileExists(t, filepath.Join(root, "templates", template.ID+".json"))

	_, err := p.Templates().GetByID(t.Context(), template.ID)
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func newPackage() *models.Package {
	return &models.Package{
		OrganizationID:      "org-1",
		Title:               "Quarterly Budget",
		Status:              models.PackageStatusDraft,
		OriginatorID:        "alice",
		OriginatingOfficeID: "office-a",
	}
}

func TestPackageRepository_SaveAndGet(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	assert.NotEmpty(t, pkg.ID)
	assert.FileExists(t, filepath.Join(root, "packages", pkg.ID+".json"))

	loaded, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Budget", loaded.Title)
	assert.Equal(t, models.PackageStatusDraft, loaded.Status)
}

func TestPackageRepository_GetByReference(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	pkg.ReferenceNumber = "HQ-2026-00007"
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	loaded, err := p.Packages().GetByReference(t.Context(), "HQ-2026-00007")
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, loaded.ID)

	_, err = p.Packages().GetByReference(t.Context(), "HQ-2026-99999")
	assert.True(t, persistence.IsPackageNotFound(err))
}

func TestPackageRepository_NextReferenceSequence(t *testing.T) {
	p := NewPersistence(t.TempDir())

	seq, err := p.Packages().NextReferenceSequence(t.Context(), "HQ", 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	for _, ref := range []string{"HQ-2026-00001", "HQ-2026-00005", "HQ-2025-00009", "ACME-2026-00020"} {
		pkg := newPackage()
		pkg.ReferenceNumber = ref
		require.NoError(t, p.Packages().Save(t.Context(), pkg))
	}

	// Only the (org code, year) scope counts.
	seq, err = p.Packages().NextReferenceSequence(t.Context(), "HQ", 2026)
	require.NoError(t, err)
	assert.Equal(t, 6, seq)
}

func TestPackageRepository_ListByOrganization(t *testing.T) {
	p := NewPersistence(t.TempDir())

	mine := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), mine))

	other := newPackage()
	other.OrganizationID = "org-2"
	require.NoError(t, p.Packages().Save(t.Context(), other))

	packages, err := p.Packages().ListByOrganization(t.Context(), "org-1")
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, mine.ID, packages[0].ID)
}

func TestRoutingRepository_StageActions(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	action := &models.StageAction{
		PackageID:     pkg.ID,
		NodeID:        "stage-1",
		ActorID:       "alice",
		ActorOfficeID: "office-a",
		Decision:      models.DecisionComplete,
	}
	require.NoError(t, p.Routing().CreateStageAction(t.Context(), action))
	assert.NotEmpty(t, action.ID)

	byID, err := p.Routing().StageActionByID(t.Context(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, "stage-1", byID.NodeID)

	all, err := p.Routing().StageActions(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = p.Routing().StageActionByID(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrStageActionNotFound)
}

func TestRoutingRepository_Completions(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	for _, officeID := range []string{"office-a", "office-b"} {
		require.NoError(t, p.Routing().CreateCompletion(t.Context(), &models.StageCompletion{
			PackageID: pkg.ID, NodeID: "joint", OfficeID: officeID,
		}))
	}

	require.NoError(t, p.Routing().CreateCompletion(t.Context(), &models.StageCompletion{
		PackageID: pkg.ID, NodeID: "other", OfficeID: "office-a",
	}))

	completions, err := p.Routing().CompletionsByNode(t.Context(), pkg.ID, "joint")
	require.NoError(t, err)
	assert.Len(t, completions, 2)

	require.NoError(t, p.Routing().DeleteCompletions(t.Context(), pkg.ID, "joint"))

	completions, err = p.Routing().CompletionsByNode(t.Context(), pkg.ID, "joint")
	require.NoError(t, err)
	assert.Empty(t, completions)

	// Other nodes keep theirs.
	completions, err = p.Routing().CompletionsByNode(t.Context(), pkg.ID, "other")
	require.NoError(t, err)
	assert.Len(t, completions, 1)
}

func TestRoutingRepository_HistoryKeepsOrder(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	entries := []*models.RoutingHistory{
		{PackageID: pkg.ID, ToNode: "stage-1", Transition: models.TransitionSubmit},
		{PackageID: pkg.ID, FromNode: "stage-1", ToNode: "stage-2", Transition: models.TransitionAdvance},
		{PackageID: pkg.ID, FromNode: "stage-2", Transition: models.TransitionComplete},
	}
	for _, entry := range entries {
		require.NoError(t, p.Routing().AppendHistory(t.Context(), entry))
	}

	history, err := p.Routing().History(t.Context(), pkg.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.TransitionSubmit, history[0].Transition)
	assert.Equal(t, models.TransitionAdvance, history[1].Transition)
	assert.Equal(t, models.TransitionComplete, history[2].Transition)
}

func TestSignatureRepository_DuplicateStageAction(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	signature := &models.Signature{
		PackageID:     pkg.ID,
		StageActionID: "act-1",
		SignerID:      "alice",
		SignatureType: models.SignatureTypeApprove,
		Method:        models.SignatureMethodX509,
		Status:        models.VerificationValid,
	}
	require.NoError(t, p.Signatures().Create(t.Context(), signature))

	duplicate := &models.Signature{PackageID: pkg.ID, StageActionID: "act-1", SignerID: "bob"}
	err := p.Signatures().Create(t.Context(), duplicate)
	require.ErrorIs(t, err, persistence.ErrSignatureExists)

	byAction, err := p.Signatures().GetByStageAction(t.Context(), "act-1")
	require.NoError(t, err)
	assert.Equal(t, signature.ID, byAction.ID)
}

func TestDirectoryRepository(t *testing.T) {
	p := NewPersistence(t.TempDir())
	directory := p.Directory()

	org := &models.Organization{Code: "HQ", Name: "Headquarters"}
	require.NoError(t, directory.SaveOrganization(t.Context(), org))
	assert.NotEmpty(t, org.ID)

	byCode, err := directory.OrganizationByCode(t.Context(), "HQ")
	require.NoError(t, err)
	assert.Equal(t, org.ID, byCode.ID)

	_, err = directory.OrganizationByCode(t.Context(), "NOPE")
	require.ErrorIs(t, err, persistence.ErrOrganizationNotFound)

	office := &models.Office{OrganizationID: org.ID, Code: "A", Name: "Office A"}
	require.NoError(t, directory.SaveOffice(t.Context(), office))

	user := &models.User{Email: "alice@example.com", FirstName: "Alice"}
	require.NoError(t, directory.SaveUser(t.Context(), user))

	member, err := directory.IsMember(t.Context(), user.ID, office.ID)
	require.NoError(t, err)
	assert.False(t, member)

	require.NoError(t, directory.AddMembership(t.Context(), user.ID, office.ID))

	member, err = directory.IsMember(t.Context(), user.ID, office.ID)
	require.NoError(t, err)
	assert.True(t, member)

	members, err := directory.OfficeMembers(t.Context(), office.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice@example.com", members[0].Email)
}

func TestPersistence_Transact_CommitsOnSuccess(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	err := p.Transact(t.Context(), func(ctx context.Context) error {
		loaded, err := p.Packages().GetForUpdate(ctx, pkg.ID)
		if err != nil {
			return err
		}

		loaded.Status = models.PackageStatusInRouting

		return p.Packages().Save(ctx, loaded)
	})
	require.NoError(t, err)

	loaded, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PackageStatusInRouting, loaded.Status)
}

func TestPersistence_Transact_RollsBackOnError(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	failure := errors.New("boom")

	err := p.Transact(t.Context(), func(ctx context.Context) error {
		loaded, err := p.Packages().GetForUpdate(ctx, pkg.ID)
		if err != nil {
			return err
		}

		loaded.Status = models.PackageStatusCancelled

		if err := p.Packages().Save(ctx, loaded); err != nil {
			return err
		}

		return failure
	})
	require.ErrorIs(t, err, failure)

	loaded, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PackageStatusDraft, loaded.Status)
}

func TestPersistence_Transact_ReadsSeeStagedWrites(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	err := p.Transact(t.Context(), func(ctx context.Context) error {
		loaded, err := p.Packages().GetForUpdate(ctx, pkg.ID)
		if err != nil {
			return err
		}

		loaded.Title = "Amended Budget"

		if err := p.Packages().Save(ctx, loaded); err != nil {
			return err
		}

		reread, err := p.Packages().GetByID(ctx, pkg.ID)
		if err != nil {
			return err
		}

		assert.Equal(t, "Amended Budget", reread.Title)

		return nil
	})
	require.NoError(t, err)
}

func TestPersistence_Transact_NestedJoinsOuter(t *testing.T) {
	p := NewPersistence(t.TempDir())

	pkg := newPackage()
	require.NoError(t, p.Packages().Save(t.Context(), pkg))

	failure := errors.New("outer failed")

	err := p.Transact(t.Context(), func(ctx context.Context) error {
		inner := p.Transact(ctx, func(ctx context.Context) error {
			loaded, err := p.Packages().GetForUpdate(ctx, pkg.ID)
			if err != nil {
				return err
			}

			loaded.Status = models.PackageStatusInRouting

			return p.Packages().Save(ctx, loaded)
		})
		require.NoError(t, inner)

		return failure
	})
	require.ErrorIs(t, err, failure)

	// The inner write rode the outer transaction and rolled back with it.
	loaded, err := p.Packages().GetByID(t.Context(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PackageStatusDraft, loaded.Status)
}

func TestPersistence_HealthCheck(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)

	require.NoError(t, p.HealthCheck(t.Context()))

	missing := NewPersistence(filepath.Join(root, "does-not-exist"))
	assert.Error(t, missing.HealthCheck(t.Context()))
}
