package registry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/trace"

	"github.com/darwinbuild/darwinxref/internal/config"
	"github.com/darwinbuild/darwinxref/internal/inventory/domain"
)

// Kind classifies a command. KindNull marks a module that never set one.
type Kind int

const (
	KindNull Kind = iota
	KindBasic
	KindPropertyBacked
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBasic:
		return "basic"
	case KindPropertyBacked:
		return "property"
	default:
		return "unknown"
	}
}

// RunFunc executes a command. A status of -1 asks the caller to print the
// command's usage; any other nonzero status is a failure.
type RunFunc func(ctx *Context, args []string) int

// UsageFunc returns the argument synopsis shown after the command name.
type UsageFunc func() string

// Command is a registered, dispatchable command.
type Command struct {
	Name   string
	Kind   Kind
	Run    RunFunc
	Usage  UsageFunc
	Source string
}

// UsageText returns the synopsis, or "" when the command has none.
func (c Command) UsageText() string {
	if c.Usage == nil {
		return ""
	}
	return c.Usage()
}

// BuildResolver yields the build that commands operate on.
type BuildResolver interface {
	Resolve() (string, error)
}

// Context is handed to every RunFunc.
type Context struct {
	Ctx        context.Context
	Builds     BuildResolver
	Repository domain.Repository
	Config     config.Config
	Tracer     trace.Tracer
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer

	// Current is the command being run. Set by Dispatch.
	Current *Command
}

// Build resolves the current build.
func (c *Context) Build() (string, error) {
	if c.Builds == nil {
		return "", errNoResolver
	}
	return c.Builds.Resolve()
}

// Context returns Ctx, or context.Background when unset.
func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}
