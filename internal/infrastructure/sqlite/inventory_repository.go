package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/darwinbuild/darwinxref/internal/inventory/domain"
	"github.com/darwinbuild/darwinxref/internal/log"
)

// schemaStatements are safe to run against a database of any age,
// including one created before migrations were tracked.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS files (build text, project text, path text)`,
	`CREATE INDEX IF NOT EXISTS files_index ON files (build, project, path)`,
	`CREATE TABLE IF NOT EXISTS unresolved_dependencies (build text, project text, type text, dependency)`,
}

// inventoryRepository implements domain.Repository using SQLite.
type inventoryRepository struct {
	db *sql.DB
}

func newInventoryRepository(db *sql.DB) *inventoryRepository {
	return &inventoryRepository{db: db}
}

// Ensure inventoryRepository implements domain.Repository.
var _ domain.Repository = (*inventoryRepository)(nil)

// Begin starts a transaction, ensures the schema and deletes the current
// records for (build, project).
func (r *inventoryRepository) Begin(build, project string) (domain.Registration, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM files WHERE build = ? AND project = ?`, build, project); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to delete files: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM unresolved_dependencies WHERE build = ? AND project = ?`, build, project); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to delete dependencies: %w", err)
	}

	log.Debug(log.CatDB, "registration started", "build", build, "project", project)
	return &registration{tx: tx, build: build, project: project}, nil
}

// Files returns the paths registered for (build, project), sorted.
func (r *inventoryRepository) Files(build, project string) ([]domain.FileRecord, error) {
	rows, err := r.db.Query(
		`SELECT build, project, path FROM files WHERE build = ? AND project = ? ORDER BY path`,
		build, project,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []domain.FileRecord
	for rows.Next() {
		var f domain.FileRecord
		if err := rows.Scan(&f.Build, &f.Project, &f.Path); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return files, nil
}

// Dependencies returns the dependency rows for (build, project) in
// insertion order.
func (r *inventoryRepository) Dependencies(build, project string) ([]domain.DependencyRecord, error) {
	rows, err := r.db.Query(
		`SELECT build, project, type, dependency FROM unresolved_dependencies
		WHERE build = ? AND project = ? ORDER BY rowid`,
		build, project,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []domain.DependencyRecord
	for rows.Next() {
		var d domain.DependencyRecord
		if err := rows.Scan(&d.Build, &d.Project, &d.Kind, &d.Dependency); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return deps, nil
}

// Close is a no-op; the connection is owned by DB.
func (r *inventoryRepository) Close() error {
	return nil
}

// registration implements domain.Registration on a single transaction.
type registration struct {
	tx      *sql.Tx
	build   string
	project string
	done    bool
	files   int
	deps    int
}

func (g *registration) AddFile(path string) error {
	if g.done {
		return domain.ErrRegistrationClosed
	}
	if _, err := g.tx.Exec(
		`INSERT INTO files (build, project, path) VALUES (?, ?, ?)`,
		g.build, g.project, path,
	); err != nil {
		return fmt.Errorf("failed to insert file %s: %w", path, err)
	}
	g.files++
	return nil
}

func (g *registration) AddDependency(kind, dependency string) error {
	if g.done {
		return domain.ErrRegistrationClosed
	}
	if _, err := g.tx.Exec(
		`INSERT INTO unresolved_dependencies (build, project, type, dependency) VALUES (?, ?, ?, ?)`,
		g.build, g.project, kind, dependency,
	); err != nil {
		return fmt.Errorf("failed to insert dependency %s: %w", dependency, err)
	}
	g.deps++
	return nil
}

func (g *registration) Commit() error {
	if g.done {
		return domain.ErrRegistrationClosed
	}
	g.done = true
	if err := g.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	log.Debug(log.CatDB, "registration committed",
		"build", g.build, "project", g.project, "files", g.files, "dependencies", g.deps)
	return nil
}

// Rollback discards the registration. It is a no-op after Commit.
func (g *registration) Rollback() error {
	if g.done {
		return nil
	}
	g.done = true
	if err := g.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back registration: %w", err)
	}
	log.Debug(log.CatDB, "registration rolled back", "build", g.build, "project", g.project)
	return nil
}
