// Package file provides file-based persistence for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/routepack/routepack/pkg/persistence"
)

const dirPerm = 0o755

// Persistence implements persistence.Persistence on top of the file system.
// A store-wide write lock backs Transact, which also serializes concurrent
// routing transitions the way row locking does in postgres.
type Persistence struct {
	store         *store
	templateRepo  *TemplateRepository
	packageRepo   *PackageRepository
	routingRepo   *RoutingRepository
	signatureRepo *SignatureRepository
	directoryRepo *DirectoryRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix is stripped so database URLs can be passed unchanged.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	s := &store{root: cleanRoot}

	return &Persistence{
		store:         s,
		templateRepo:  &TemplateRepository{store: s},
		packageRepo:   &PackageRepository{store: s},
		routingRepo:   &RoutingRepository{store: s},
		signatureRepo: &SignatureRepository{store: s},
		directoryRepo: &DirectoryRepository{store: s},
	}
}

func (fp *Persistence) Templates() persistence.TemplateRepository   { return fp.templateRepo }
func (fp *Persistence) Packages() persistence.PackageRepository     { return fp.packageRepo }
func (fp *Persistence) Routing() persistence.RoutingRepository      { return fp.routingRepo }
func (fp *Persistence) Signatures() persistence.SignatureRepository { return fp.signatureRepo }
func (fp *Persistence) Directory() persistence.DirectoryRepository  { return fp.directoryRepo }

// Transact stages every write made through the derived context and flushes
// them only when fn succeeds. The store-wide lock is held for the whole
// transaction, so transitions on the same package serialize.
func (fp *Persistence) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return fp.store.transact(ctx, fn)
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to clean up for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

type txKey struct{}

// txState buffers writes made inside a transaction until commit.
type txState struct {
	pending map[string][]byte
	deleted map[string]bool
}

type store struct {
	root string
	mu   sync.RWMutex
}

func (s *store) transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := txFrom(ctx); tx != nil {
		// Nested Transact joins the outer transaction.
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txState{
		pending: make(map[string][]byte),
		deleted: make(map[string]bool),
	}

	err := fn(context.WithValue(ctx, txKey{}, tx))
	if err != nil {
		return err
	}

	return s.flush(tx)
}

func (s *store) flush(tx *txState) error {
	for rel := range tx.deleted {
		if err := os.Remove(filepath.Join(s.root, rel)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", rel, err)
		}
	}

	for rel, data := range tx.pending {
		path := filepath.Join(s.root, rel)
		if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
	}

	return nil
}

func txFrom(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey{}).(*txState)

	return tx
}

// readJSON loads rel into v, honoring staged transaction state.
func (s *store) readJSON(ctx context.Context, rel string, v any) error {
	tx := txFrom(ctx)
	if tx != nil {
		if tx.deleted[rel] {
			return os.ErrNotExist
		}

		if data, ok := tx.pending[rel]; ok {
			return json.Unmarshal(data, v)
		}
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

// writeJSON persists v at rel, staging inside a transaction.
func (s *store) writeJSON(ctx context.Context, rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rel, err)
	}

	if tx := txFrom(ctx); tx != nil {
		delete(tx.deleted, rel)
		tx.pending[rel] = data

		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	return os.WriteFile(path, data, 0o644)
}

func (s *store) remove(ctx context.Context, rel string) error {
	if tx := txFrom(ctx); tx != nil {
		delete(tx.pending, rel)
		tx.deleted[rel] = true

		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.root, rel))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// list returns the relative paths of every JSON file under dir, merged with
// staged transaction entries.
func (s *store) list(ctx context.Context, dir string) ([]string, error) {
	tx := txFrom(ctx)
	if tx == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	seen := make(map[string]bool)

	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		seen[dir+"/"+entry.Name()] = true
	}

	if tx != nil {
		for rel := range tx.pending {
			if strings.HasPrefix(rel, dir+"/") {
				seen[rel] = true
			}
		}

		for rel := range tx.deleted {
			delete(seen, rel)
		}
	}

	rels := make([]string, 0, len(seen))
	for rel := range seen {
		rels = append(rels, rel)
	}

	return rels, nil
}
