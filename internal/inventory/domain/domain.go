// Package domain defines the records darwinxref keeps about a project's
// installed files and its unresolved library dependencies, and the
// repository contract used to replace them.
package domain

import "errors"

// DependencyKindLib marks a dependency on a dynamic library or linker.
const DependencyKindLib = "lib"

// ErrRegistrationClosed is returned when a Registration is used after
// Commit or Rollback.
var ErrRegistrationClosed = errors.New("registration already committed or rolled back")

// FileRecord is one file or symlink installed by a project.
// Path is project-relative and starts with "/".
type FileRecord struct {
	Build   string
	Project string
	Path    string
}

// DependencyRecord is a dependency string found inside one of a project's
// files. Duplicates across files and architectures are kept.
type DependencyRecord struct {
	Build      string
	Project    string
	Kind       string
	Dependency string
}

// Registration replaces everything known about one (build, project).
// Nothing is visible to readers until Commit succeeds; Rollback (or a
// failed Commit) leaves the previous records in place.
type Registration interface {
	AddFile(path string) error
	AddDependency(kind, dependency string) error
	Commit() error
	Rollback() error
}

// Repository stores file and dependency records.
type Repository interface {
	// Begin opens a Registration. Existing records for (build, project)
	// are already deleted inside it.
	Begin(build, project string) (Registration, error)
	Files(build, project string) ([]FileRecord, error)
	Dependencies(build, project string) ([]DependencyRecord, error)
	Close() error
}
