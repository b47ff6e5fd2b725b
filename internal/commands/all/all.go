// Package all links every built-in command into the binary.
package all

import (
	_ "github.com/darwinbuild/darwinxref/internal/commands/buildinfo"
	_ "github.com/darwinbuild/darwinxref/internal/commands/dependencies"
	_ "github.com/darwinbuild/darwinxref/internal/commands/files"
	_ "github.com/darwinbuild/darwinxref/internal/commands/register"
)
