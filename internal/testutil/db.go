// Package testutil provides helpers shared by darwinxref tests: SQLite
// backed repositories, an in-memory repository with failure injection, and
// Mach-O image builders.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darwinbuild/darwinxref/internal/infrastructure/sqlite"
	"github.com/darwinbuild/darwinxref/internal/inventory/domain"
)

// NewTestDB opens a migrated database in a temp dir. It is closed when the
// test completes.
func NewTestDB(t testing.TB) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "darwinxref.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewTestRepository returns the inventory repository of a fresh test DB.
func NewTestRepository(t testing.TB) domain.Repository {
	t.Helper()
	return NewTestDB(t).InventoryRepository()
}

// FilePaths returns the registered paths for (build, project).
func FilePaths(t testing.TB, repo domain.Repository, build, project string) []string {
	t.Helper()
	files, err := repo.Files(build, project)
	require.NoError(t, err)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

// DependencyPaths returns the registered dependencies for (build, project)
// in insertion order.
func DependencyPaths(t testing.TB, repo domain.Repository, build, project string) []string {
	t.Helper()
	deps, err := repo.Dependencies(build, project)
	require.NoError(t, err)
	paths := make([]string, 0, len(deps))
	for _, d := range deps {
		paths = append(paths, d.Dependency)
	}
	return paths
}
