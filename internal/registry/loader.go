package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"

	"github.com/darwinbuild/darwinxref/internal/log"
)

// symbolTable is the part of *plugin.Plugin the loader needs.
type symbolTable interface {
	Lookup(name string) (plugin.Symbol, error)
}

type opener func(path string) (symbolTable, error)

func openPlugin(path string) (symbolTable, error) {
	return plugin.Open(path)
}

// LoadCommands loads every plugin module in dir, in name order.
// Modules that fail to open or initialize are logged and skipped.
// A missing directory loads nothing.
func (r *Registry) LoadCommands(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug(log.CatRegistry, "no plugin directory", "dir", dir)
			return nil
		}
		return fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var modules []Module
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ModuleSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		m, err := r.openModule(path)
		if err != nil {
			log.Warn(log.CatRegistry, "could not load plugin (skipping)", "path", path, "error", err)
			continue
		}
		modules = append(modules, m)
	}

	log.Debug(log.CatRegistry, "plugins found", "dir", dir, "count", len(modules))
	return r.Load(modules...)
}

func (r *Registry) openModule(path string) (Module, error) {
	p, err := r.open(path)
	if err != nil {
		return Module{}, err
	}
	sym, err := p.Lookup(InitializeSymbol)
	if err != nil {
		return Module{}, err
	}

	var fn InitializeFunc
	switch s := sym.(type) {
	case func(int, *Declarer) int:
		fn = s
	case *func(int, *Declarer) int:
		if s != nil {
			fn = *s
		}
	case InitializeFunc:
		fn = s
	case *InitializeFunc:
		if s != nil {
			fn = *s
		}
	default:
		return Module{}, fmt.Errorf("symbol %s has type %T", InitializeSymbol, sym)
	}
	if fn == nil {
		return Module{}, fmt.Errorf("symbol %s is nil", InitializeSymbol)
	}
	return Module{Source: path, Initialize: fn}, nil
}
