// Package files implements the files command, which prints the paths
// registered for a project.
package files

import (
	"fmt"

	"github.com/darwinbuild/darwinxref/internal/registry"
)

func init() {
	registry.Builtin(registry.Module{Source: "internal/commands/files", Initialize: Initialize})
}

// Initialize declares the files command.
func Initialize(_ int, d *registry.Declarer) int {
	d.SetName("files")
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
		fmt.Fprintf(ctx.Stderr, "files: %v\n", err)
		return 1
	}
	records, err := ctx.Repository.Files(build, args[0])
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "files: %v\n", err)
		return 1
	}
	for _, r := range records {
		fmt.Fprintln(ctx.Stdout, r.Path)
	}
	return 0
}
