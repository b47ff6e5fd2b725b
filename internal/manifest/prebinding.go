package manifest

import (
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/darwinbuild/darwinxref/internal/config"
	"github.com/darwinbuild/darwinxref/internal/log"
)

// Normalizer checksums Mach-O images after removing build-specific
// content such as prebinding.
type Normalizer interface {
	// Available reports whether Digest can be used.
	Available() bool
	// Digest returns the checksum of the normalized file, or ErrorChecksum.
	Digest(path string) string
}

// Prebinding runs an external helper (redo_prebinding) and hashes its
// output. Availability is probed once.
type Prebinding struct {
	Helper      string
	Args        []string
	ProbeTarget string

	once      sync.Once
	available bool
}

// NewPrebinding returns a Prebinding configured from cfg.
func NewPrebinding(cfg config.PrebindingConfig) *Prebinding {
	return &Prebinding{Helper: cfg.Helper, Args: cfg.Args, ProbeTarget: cfg.ProbeTarget}
}

// Available reports whether the helper exists and understands Args, which
// is checked by running it against ProbeTarget.
func (p *Prebinding) Available() bool {
	p.once.Do(func() {
		if p.Helper == "" {
			return
		}
		if _, err := os.Stat(p.Helper); err != nil {
			log.Debug(log.CatManifest, "prebinding helper not found", "helper", p.Helper)
			return
		}
		if p.ProbeTarget != "" && p.Digest(p.ProbeTarget) == ErrorChecksum {
			log.Info(log.CatManifest, "prebinding helper rejected probe", "helper", p.Helper, "target", p.ProbeTarget)
			return
		}
		p.available = true
	})
	return p.available
}

// Digest runs the helper on path and checksums its standard output.
func (p *Prebinding) Digest(path string) string {
	args := append(append([]string(nil), p.Args...), path)
	cmd := exec.Command(p.Helper, args...) //nolint:gosec // helper path comes from configuration
	out, err := cmd.StdoutPipe()
	if err != nil {
		return ErrorChecksum
	}
	if err := cmd.Start(); err != nil {
		log.Debug(log.CatManifest, "prebinding helper failed to start", "error", err)
		return ErrorChecksum
	}

	sum, err := digestOutput(out, cmd.Wait)
	if err != nil {
		log.Debug(log.CatManifest, "prebinding helper failed", "path", path, "error", err)
		return ErrorChecksum
	}
	return sum
}

// digestOutput checksums out and then calls wait. If reading stops early
// the rest of out is discarded first so the writer can exit.
func digestOutput(out io.Reader, wait func() error) (string, error) {
	sum, err := Digest(out)
	if err != nil {
		_, _ = io.Copy(io.Discard, out)
	}
	if werr := wait(); werr != nil {
		return "", werr
	}
	return sum, err
}
