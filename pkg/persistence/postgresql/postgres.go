// Package postgresql provides PostgreSQL persistence for templates,
// packages, routing records, signatures, and the directory.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/persistence/sqlbase"
)

// querier is the subset of *sql.DB and *sql.Tx the repositories use, so the
// same code runs inside and outside transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	templates  *TemplateRepository
	packages   *PackageRepository
	routing    *RoutingRepository
	signatures *SignatureRepository
	directory  *DirectoryRepository
}

// NewPersistence connects, runs migrations, and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	p := &Persistence{
		db:     database,
		logger: logger,
	}
	p.templates = &TemplateRepository{p: p}
	p.packages = &PackageRepository{p: p}
	p.routing = &RoutingRepository{p: p}
	p.signatures = &SignatureRepository{p: p}
	p.directory = &DirectoryRepository{p: p}

	return p, nil
}

func (p *Persistence) Templates() persistence.TemplateRepository   { return p.templates }
func (p *Persistence) Packages() persistence.PackageRepository     { return p.packages }
func (p *Persistence) Routing() persistence.RoutingRepository      { return p.routing }
func (p *Persistence) Signatures() persistence.SignatureRepository { return p.signatures }
func (p *Persistence) Directory() persistence.DirectoryRepository  { return p.directory }

// Transact runs fn inside one database transaction carried on the context.
// Nested calls join the outer transaction.
func (p *Persistence) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(context.WithValue(ctx, txKey{}, tx))
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// q returns the transaction carried on ctx, or the bare connection pool.
func (p *Persistence) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}

	return p.db
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
