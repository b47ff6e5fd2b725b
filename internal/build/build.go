// Package build resolves the identifier of the operating-system build that
// registered records are scoped to.
package build

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/darwinbuild/darwinxref/internal/log"
)

// ErrUnknownBuild is returned when no source yields a build identifier.
var ErrUnknownBuild = errors.New("unable to determine current build")

// Resolver resolves the build once and caches the result.
// Resolution order: Override, then the Env variable, then Lookup.
type Resolver struct {
	Override string
	Env      string
	Lookup   func() (string, error)

	once  sync.Once
	build string
	err   error
}

// NewResolver returns a Resolver using the platform lookup.
func NewResolver(override, env string) *Resolver {
	return &Resolver{Override: override, Env: env, Lookup: PlatformBuild}
}

// Resolve returns the current build. The first call decides the value for
// the lifetime of the Resolver.
func (r *Resolver) Resolve() (string, error) {
	r.once.Do(func() {
		r.build, r.err = r.resolve()
		if r.err == nil {
			log.Debug(log.CatBuild, "resolved build", "build", r.build)
		}
	})
	return r.build, r.err
}

func (r *Resolver) resolve() (string, error) {
	if r.Override != "" {
		return r.Override, nil
	}
	if r.Env != "" {
		if v := os.Getenv(r.Env); v != "" {
			return v, nil
		}
	}
	if r.Lookup == nil {
		return "", ErrUnknownBuild
	}
	b, err := r.Lookup()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnknownBuild, err)
	}
	if b == "" {
		return "", ErrUnknownBuild
	}
	return b, nil
}

// PlatformBuild asks the host for its build version. Only macOS exposes one.
func PlatformBuild() (string, error) {
	if runtime.GOOS != "darwin" {
		return "", fmt.Errorf("no build version lookup on %s", runtime.GOOS)
	}
	out, err := exec.Command("/usr/bin/sw_vers", "-buildVersion").Output()
	if err != nil {
		return "", fmt.Errorf("sw_vers: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
