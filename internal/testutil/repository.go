package testutil

import (
	"errors"
	"sort"
	"sync"

	"github.com/darwinbuild/darwinxref/internal/inventory/domain"
)

// ErrInjected is returned by MemoryRepository when a failure is armed.
var ErrInjected = errors.New("injected failure")

// MemoryRepository is an in-memory domain.Repository.
type MemoryRepository struct {
	mu    sync.Mutex
	files map[[2]string][]string
	deps  map[[2]string][]domain.DependencyRecord

	// FailCommit makes every Commit fail.
	FailCommit bool
	// FailAddFileAfter makes AddFile fail once this many files were added
	// to a registration. Zero disables it.
	FailAddFileAfter int

	Commits   int
	Rollbacks int
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		files: make(map[[2]string][]string),
		deps:  make(map[[2]string][]domain.DependencyRecord),
	}
}

var _ domain.Repository = (*MemoryRepository)(nil)

// Begin starts a registration.
func (m *MemoryRepository) Begin(build, project string) (domain.Registration, error) {
	return &memoryRegistration{repo: m, key: [2]string{build, project}}, nil
}

// Files returns sorted file records.
func (m *MemoryRepository) Files(build, project string) ([]domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := append([]string(nil), m.files[[2]string{build, project}]...)
	sort.Strings(paths)
	out := make([]domain.FileRecord, 0, len(paths))
	for _, p := range paths {
		out = append(out, domain.FileRecord{Build: build, Project: project, Path: p})
	}
	return out, nil
}

// Dependencies returns dependency records in insertion order.
func (m *MemoryRepository) Dependencies(build, project string) ([]domain.DependencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DependencyRecord(nil), m.deps[[2]string{build, project}]...), nil
}

// Close does nothing.
func (m *MemoryRepository) Close() error { return nil }

type memoryRegistration struct {
	repo  *MemoryRepository
	key   [2]string
	files []string
	deps  []domain.DependencyRecord
	done  bool
}

func (g *memoryRegistration) AddFile(path string) error {
	if g.done {
		return domain.ErrRegistrationClosed
	}
	if n := g.repo.FailAddFileAfter; n > 0 && len(g.files) >= n {
		return ErrInjected
	}
	g.files = append(g.files, path)
	return nil
}

func (g *memoryRegistration) AddDependency(kind, dependency string) error {
	if g.done {
		return domain.ErrRegistrationClosed
	}
	g.deps = append(g.deps, domain.DependencyRecord{
		Build: g.key[0], Project: g.key[1], Kind: kind, Dependency: dependency,
	})
	return nil
}

func (g *memoryRegistration) Commit() error {
	if g.done {
		return domain.ErrRegistrationClosed
	}
	g.done = true
	g.repo.mu.Lock()
	defer g.repo.mu.Unlock()
	if g.repo.FailCommit {
		g.repo.Rollbacks++
		return ErrInjected
	}
	g.repo.files[g.key] = g.files
	g.repo.deps[g.key] = g.deps
	g.repo.Commits++
	return nil
}

func (g *memoryRegistration) Rollback() error {
	if g.done {
		return nil
	}
	g.done = true
	g.repo.mu.Lock()
	g.repo.Rollbacks++
	g.repo.mu.Unlock()
	return nil
}
