package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/routepack/routepack/pkg/models"
	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"integrity_violations", "signatures", "routing_history",
		"stage_completions", "stage_actions", "packages", "workflow_templates",
		"office_memberships", "users", "offices", "organizations",
		"schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("routepack_test"),
			postgres.WithUsername("routepack"),
			postgres.WithPassword("routepack"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

type directoryIDs struct {
	org, office, user string
}

func seedDirectory(ctx context.Context, t *testing.T, p *postgresql.Persistence) directoryIDs {
	t.Helper()

	ids := directoryIDs{
		org:    uuid.New().String(),
		office: uuid.New().String(),
		user:   uuid.New().String(),
	}

	require.NoError(t, p.Directory().SaveOrganization(ctx, &models.Organization{
		ID: ids.org, Code: "HQ", Name: "Headquarters",
	}))
	require.NoError(t, p.Directory().SaveOffice(ctx, &models.Office{
		ID: ids.office, OrganizationID: ids.org, Code: "A", Name: "Office A",
	}))
	require.NoError(t, p.Directory().SaveUser(ctx, &models.User{
		ID: ids.user, Email: "alice@example.com", FirstName: "Alice",
	}))

	return ids
}

func seedPackage(ctx context.Context, t *testing.T, p *postgresql.Persistence, ids directoryIDs) *models.Package {
	t.Helper()

	pkg := &models.Package{
		OrganizationID:      ids.org,
		Title:               "Quarterly Budget",
		Status:              models.PackageStatusDraft,
		Priority:            models.PriorityNormal,
		OriginatorID:        ids.user,
		OriginatingOfficeID: ids.office,
	}
	require.NoError(t, p.Packages().Save(ctx, pkg))

	return pkg
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'packages')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "packages table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'signatures')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "signatures table should exist")

	var applied int

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestTemplateRepository_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := &models.WorkflowTemplate{
		Name:        "Budget Review",
		Description: "Two stage budget review",
		Active:      true,
		StageNodes: []*models.StageNode{
			{
				NodeID: "stage-1", Name: "Review", StageType: models.StageTypeApprove,
				AssignedOffices: []string{"office-a"}, MultiOfficeRule: models.MultiOfficeRuleAny,
			},
		},
		ActionNodes: []*models.ActionNode{
			{NodeID: "alert-1", Name: "Alert", ActionType: models.ActionTypeSendAlert},
		},
		Connections: []*models.NodeConnection{
			{FromNode: "stage-1", ToNode: "alert-1", ConnectionType: models.ConnectionTypeDefault},
		},
	}
	require.NoError(t, p.Templates().Save(ctx, template))
	assert.Equal(t, 1, template.Version)

	loaded, err := p.Templates().GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budget Review", loaded.Name)
	require.Len(t, loaded.StageNodes, 1)
	assert.Equal(t, []string{"office-a"}, loaded.StageNodes[0].AssignedOffices)
	require.Len(t, loaded.Connections, 1)
	assert.Equal(t, models.ConnectionTypeDefault, loaded.Connections[0].ConnectionType)

	require.NoError(t, p.Templates().Save(ctx, loaded))
	assert.Equal(t, 2, loaded.Version)

	require.NoError(t, p.Templates().Delete(ctx, template.ID))

	_, err = p.Templates().GetByID(ctx, template.ID)
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestPackageRepository_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	ids := seedDirectory(ctx, t, p)

	pkg := seedPackage(ctx, t, p, ids)
	pkg.Tabs = []*models.Tab{
		{
			Identifier: "A", DisplayName: "Cover Sheet",
			Documents: []*models.Document{
				{ID: "doc-1", Version: 1, SHA256Hash: "aaaa", Current: true},
			},
		},
	}
	pkg.ReferenceNumber = "HQ-2026-00003"
	require.NoError(t, p.Packages().Save(ctx, pkg))

	loaded, err := p.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Budget", loaded.Title)
	require.Len(t, loaded.Tabs, 1)
	assert.Equal(t, "A", loaded.Tabs[0].Identifier)

	byRef, err := p.Packages().GetByReference(ctx, "HQ-2026-00003")
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, byRef.ID)

	seq, err := p.Packages().NextReferenceSequence(ctx, "HQ", 2026)
	require.NoError(t, err)
	assert.Equal(t, 4, seq)

	packages, err := p.Packages().ListByOrganization(ctx, ids.org)
	require.NoError(t, err)
	assert.Len(t, packages, 1)
}

func TestRoutingRepository_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	ids := seedDirectory(ctx, t, p)
	pkg := seedPackage(ctx, t, p, ids)

	action := &models.StageAction{
		PackageID:     pkg.ID,
		NodeID:        "stage-1",
		ActorID:       ids.user,
		ActorOfficeID: ids.office,
		Decision:      models.DecisionComplete,
		Comment:       "looks good",
	}
	require.NoError(t, p.Routing().CreateStageAction(ctx, action))

	byID, err := p.Routing().StageActionByID(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, "looks good", byID.Comment)

	require.NoError(t, p.Routing().CreateCompletion(ctx, &models.StageCompletion{
		PackageID: pkg.ID, NodeID: "stage-1", OfficeID: ids.office, StageActionID: action.ID,
	}))

	completions, err := p.Routing().CompletionsByNode(ctx, pkg.ID, "stage-1")
	require.NoError(t, err)
	assert.Len(t, completions, 1)

	require.NoError(t, p.Routing().DeleteCompletions(ctx, pkg.ID, "stage-1"))

	completions, err = p.Routing().CompletionsByNode(ctx, pkg.ID, "stage-1")
	require.NoError(t, err)
	assert.Empty(t, completions)

	require.NoError(t, p.Routing().AppendHistory(ctx, &models.RoutingHistory{
		PackageID: pkg.ID, ToNode: "stage-1", Transition: models.TransitionSubmit,
	}))
	require.NoError(t, p.Routing().AppendHistory(ctx, &models.RoutingHistory{
		PackageID: pkg.ID, FromNode: "stage-1", Transition: models.TransitionComplete, TriggeredByID: action.ID,
	}))

	history, err := p.Routing().History(ctx, pkg.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.TransitionSubmit, history[0].Transition)
	assert.Equal(t, action.ID, history[1].TriggeredByID)
}

func TestSignatureRepository_UniquePerStageAction(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	ids := seedDirectory(ctx, t, p)
	pkg := seedPackage(ctx, t, p, ids)

	action := &models.StageAction{
		PackageID: pkg.ID, NodeID: "stage-1", ActorID: ids.user,
		ActorOfficeID: ids.office, Decision: models.DecisionComplete,
	}
	require.NoError(t, p.Routing().CreateStageAction(ctx, action))

	signature := &models.Signature{
		PackageID:        pkg.ID,
		StageActionID:    action.ID,
		SignerID:         ids.user,
		SignatureType:    models.SignatureTypeApprove,
		Method:           models.SignatureMethodX509,
		CanonicalPayload: "{}",
		SignatureBlob:    []byte("blob"),
		Status:           models.VerificationValid,
	}
	require.NoError(t, p.Signatures().Create(ctx, signature))

	duplicate := &models.Signature{
		PackageID:        pkg.ID,
		StageActionID:    action.ID,
		SignerID:         ids.user,
		SignatureType:    models.SignatureTypeApprove,
		Method:           models.SignatureMethodX509,
		CanonicalPayload: "{}",
		SignatureBlob:    []byte("blob"),
		Status:           models.VerificationValid,
	}
	err := p.Signatures().Create(ctx, duplicate)
	require.ErrorIs(t, err, persistence.ErrSignatureExists)

	byAction, err := p.Signatures().GetByStageAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, signature.ID, byAction.ID)
}

func TestViolations_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	ids := seedDirectory(ctx, t, p)
	pkg := seedPackage(ctx, t, p, ids)

	violation := &models.IntegrityViolation{
		PackageID:           pkg.ID,
		TabIdentifier:       "A",
		ViolatingDocumentID: "doc-2",
		UploadedBy:          ids.user,
		AffectedSignatures:  []string{"sig-1"},
		Resolution:          models.ResolutionPending,
	}
	require.NoError(t, p.Signatures().CreateViolation(ctx, violation))

	loaded, err := p.Signatures().ViolationByID(ctx, violation.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig-1"}, loaded.AffectedSignatures)

	now := time.Now().UTC()
	loaded.Resolution = models.ResolutionAcknowledged
	loaded.ResolvedBy = ids.user
	loaded.ResolvedAt = &now
	require.NoError(t, p.Signatures().SaveViolation(ctx, loaded))

	violations, err := p.Signatures().ViolationsByPackage(ctx, pkg.ID)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, models.ResolutionAcknowledged, violations[0].Resolution)
}

func TestPersistence_Transact_RollsBack(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	ids := seedDirectory(ctx, t, p)
	pkg := seedPackage(ctx, t, p, ids)

	failure := assert.AnError

	err := p.Transact(ctx, func(ctx context.Context) error {
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

	loaded, err := p.Packages().GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PackageStatusDraft, loaded.Status)
}
