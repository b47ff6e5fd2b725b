// Package register implements the register command, which records the
// files a project installed into a destination root.
package register

import (
	"fmt"

	"github.com/darwinbuild/darwinxref/internal/manifest"
	"github.com/darwinbuild/darwinxref/internal/registry"
)

// Name is the command name.
const Name = "register"

func init() {
	registry.Builtin(registry.Module{Source: "internal/commands/register", Initialize: Initialize})
}

// Initialize declares the register command.
func Initialize(_ int, d *registry.Declarer) int {
	d.SetName(Name)
	d.SetKind(registry.KindBasic)
	d.SetRun(run)
	d.SetUsage(usage)
	return 0
}

func usage() string {
	return "[-stdin] <project> <dstroot>"
}

func run(ctx *registry.Context, args []string) int {
	fromStdin := false
	if len(args) > 0 && args[0] == "-stdin" {
		fromStdin = true
		args = args[1:]
	}
	if len(args) != 2 {
		return -1
	}
	project, root := args[0], args[1]

	build, err := ctx.Build()
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "%s: %v\n", Name, err)
		return 1
	}

	opts := []manifest.Option{manifest.WithNormalizer(manifest.NewPrebinding(ctx.Config.Prebinding))}
	if ctx.Tracer != nil {
		opts = append(opts, manifest.WithTracer(ctx.Tracer))
	}
	b := manifest.New(ctx.Repository, ctx.Stdout, opts...)

	var n int
	if fromStdin {
		n, err = b.RegisterListing(ctx.Context(), build, project, root, ctx.Stdin)
	} else {
		n, err = b.RegisterTree(ctx.Context(), build, project, root)
	}
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "%s: %v\n", Name, err)
		return 1
	}

	fmt.Fprintf(ctx.Stderr, "%s - %d files registered.\n", project, n)
	return 0
}
