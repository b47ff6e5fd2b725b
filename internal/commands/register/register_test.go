package register

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darwinbuild/darwinxref/internal/registry"
	"github.com/darwinbuild/darwinxref/internal/testutil"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Load(registry.Module{Source: "test", Initialize: Initialize}))
	return r
}

func dstroot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr", "bin", "tool"), []byte("abc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte(""), 0o644))
	return root
}

func TestRegister_Tree(t *testing.T) {
	r := newRegistry(t)
	repo := testutil.NewTestRepository(t)
	ctx := testutil.NewCommandContext(repo, "8A428")

	status, err := r.Dispatch(ctx.Context, Name, []string{"bash", dstroot(t)})
	require.NoError(t, err)
	require.Equal(t, 0, status, ctx.Err.String())

	require.Equal(t, "bash - 2 files registered.\n", ctx.Err.String())
	require.Contains(t, ctx.Out.String(), "a9993e364706816aba3e25717850c26c9cd0d89d 100755 ")
	require.Contains(t, ctx.Out.String(), " ./usr/bin/tool\n")
	require.Equal(t, []string{"/README", "/usr/bin/tool"}, testutil.FilePaths(t, repo, "8A428", "bash"))
}

func TestRegister_Stdin(t *testing.T) {
	r := newRegistry(t)
	repo := testutil.NewTestRepository(t)
	ctx := testutil.NewCommandContext(repo, "8A428").
		WithStdin(strings.NewReader(".\n./usr\n./usr/bin\n./usr/bin/tool\n"))

	status, err := r.Dispatch(ctx.Context, Name, []string{"-stdin", "bash", dstroot(t)})
	require.NoError(t, err)
	require.Equal(t, 0, status, ctx.Err.String())

	require.Equal(t, "bash - 1 files registered.\n", ctx.Err.String())
	require.NotContains(t, ctx.Out.String(), "a9993e36", "listing mode does not checksum")
	require.Equal(t, []string{"/usr/bin/tool"}, testutil.FilePaths(t, repo, "8A428", "bash"))
}

func TestRegister_BadArguments(t *testing.T) {
	r := newRegistry(t)
	for _, args := range [][]string{
		nil,
		{"bash"},
		{"-stdin", "bash"},
		{"bash", "/dst", "extra"},
	} {
		ctx := testutil.NewCommandContext(testutil.NewMemoryRepository(), "B")
		status, err := r.Dispatch(ctx.Context, Name, args)
		require.NoError(t, err)
		require.Equal(t, -1, status, "args %v", args)
	}
}

func TestRegister_MissingRootFails(t *testing.T) {
	r := newRegistry(t)
	ctx := testutil.NewCommandContext(testutil.NewMemoryRepository(), "B")

	status, err := r.Dispatch(ctx.Context, Name, []string{"bash", filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	require.Equal(t, 1, status)
	require.Contains(t, ctx.Err.String(), "register: ")
	require.NotContains(t, ctx.Err.String(), "files registered")
}

func TestRegister_Usage(t *testing.T) {
	cmd, ok := newRegistry(t).Lookup(Name)
	require.True(t, ok)
	require.Equal(t, registry.KindBasic, cmd.Kind)
	require.Equal(t, "[-stdin] <project> <dstroot>", cmd.UsageText())
}
