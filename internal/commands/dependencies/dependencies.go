// Package dependencies implements the dependencies command, which prints
// the unresolved dependencies registered for a project.
package dependencies

import (
	"fmt"

	"github.com/darwinbuild/darwinxref/internal/registry"
)

func init() {
	registry.Builtin(registry.Module{Source: "internal/commands/dependencies", Initialize: Initialize})
}

// Initialize declares the dependencies command.
func Initialize(_ int, d *registry.Declarer) int {
	d.SetName("dependencies")
	d.SetKind(registry.KindBasic)
	d.SetRun(run)
	d.SetUsage(func() string { return "<project>" })
	return 0
}

func run(ctx *registry.Context, args []string) int {
	if len(args) != 1 {
		return -1
	}
	build, err := ctx.Build()
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "dependencies: %v\n", err)
		return 1
	}
	deps, err := ctx.Repository.Dependencies(build, args[0])
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "dependencies: %v\n", err)
		return 1
	}
	for _, d := range deps {
		fmt.Fprintf(ctx.Stdout, "%s %s\n", d.Kind, d.Dependency)
	}
	return 0
}
