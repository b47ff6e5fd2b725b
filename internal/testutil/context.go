package testutil

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/darwinbuild/darwinxref/internal/build"
	"github.com/darwinbuild/darwinxref/internal/config"
	"github.com/darwinbuild/darwinxref/internal/inventory/domain"
	"github.com/darwinbuild/darwinxref/internal/registry"
)

// CommandContext is a registry.Context with captured output streams.
type CommandContext struct {
	*registry.Context
	Out *bytes.Buffer
	Err *bytes.Buffer
}

// NewCommandContext returns a context for buildID backed by repo. The
// prebinding helper is disabled so checksums are plain digests.
func NewCommandContext(repo domain.Repository, buildID string) *CommandContext {
	cfg := config.Defaults()
	cfg.Prebinding.Helper = ""

	var out, errOut bytes.Buffer
	return &CommandContext{
		Context: &registry.Context{
			Ctx:        context.Background(),
			Builds:     &build.Resolver{Override: buildID},
			Repository: repo,
			Config:     cfg,
			Stdin:      strings.NewReader(""),
			Stdout:     &out,
			Stderr:     &errOut,
		},
		Out: &out,
		Err: &errOut,
	}
}

// WithStdin replaces the context's standard input.
func (c *CommandContext) WithStdin(r io.Reader) *CommandContext {
	c.Stdin = r
	return c
}
