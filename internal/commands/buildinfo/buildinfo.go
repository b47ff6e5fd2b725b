// Package buildinfo implements the build command, which prints the build
// that other commands operate on.
package buildinfo

import (
	"fmt"

	"github.com/darwinbuild/darwinxref/internal/registry"
)

func init() {
	registry.Builtin(registry.Module{Source: "internal/commands/buildinfo", Initialize: Initialize})
}

// Initialize declares the build command.
func Initialize(_ int, d *registry.Declarer) int {
	d.SetName("build")
	d.SetKind(registry.KindBasic)
	d.SetRun(run)
	d.SetUsage(func() string { return "" })
	return 0
}

func run(ctx *registry.Context, args []string) int {
	if len(args) != 0 {
		return -1
	}
	build, err := ctx.Build()
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "build: %v\n", err)
		return 1
	}
	fmt.Fprintln(ctx.Stdout, build)
	return 0
}
