package cmd

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type harness struct {
	dir     string
	db      string
	config  string
	plugins string
}

// newHarness writes an isolated config and returns paths for a test run.
func newHarness(t *testing.T, extraConfig string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:     dir,
		db:      filepath.Join(dir, "xref.db"),
		config:  filepath.Join(dir, "config.yaml"),
		plugins: filepath.Join(dir, "plugins"),
	}
	cfg := "prebinding:\n  helper: \"\"\n" + extraConfig
	require.NoError(t, os.WriteFile(h.config, []byte(cfg), 0o600))
	return h
}

// run executes a fresh root command and returns stdout, stderr and the
// exit code main would use.
func (h *harness) run(t *testing.T, stdin io.Reader, args ...string) (string, string, int) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.SetIn(stdin)
	cmd.SetArgs(append([]string{"-c", h.config, "-f", h.db, "--plugins", h.plugins}, args...))

	err := cmd.Execute()
	code := 0
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		} else {
			code = 1
			errOut.WriteString(err.Error())
		}
	}
	return out.String(), errOut.String(), code
}

func dstroot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "sh"), []byte("abc"), 0o755))
	return root
}

func TestRoot_NoArgsPrintsAllUsage(t *testing.T) {
	h := newHarness(t, "")
	_, stderr, code := h.run(t, nil)
	require.Equal(t, 1, code)
	require.Equal(t,
		"usage: darwinxref [-f db] [-b build] build \n"+
			"usage: darwinxref [-f db] [-b build] dependencies <project>\n"+
			"usage: darwinxref [-f db] [-b build] files <project>\n"+
			"usage: darwinxref [-f db] [-b build] register [-stdin] <project> <dstroot>\n",
		stderr)
}

func TestRoot_UnknownCommand(t *testing.T) {
	h := newHarness(t, "")
	_, stderr, code := h.run(t, nil, "nosuch")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "usage: darwinxref [-f db] [-b build] register")
	_, err := os.Stat(h.db)
	require.True(t, os.IsNotExist(err), "database is not opened for unknown commands")
}

func TestRoot_BadArgumentsPrintCommandUsage(t *testing.T) {
	h := newHarness(t, "")
	_, stderr, code := h.run(t, nil, "-b", "8A428", "register", "only-project")
	require.Equal(t, 1, code)
	require.Equal(t, "usage: darwinxref [-f db] [-b build] register [-stdin] <project> <dstroot>\n", stderr)
}

func TestRoot_RegisterThenQuery(t *testing.T) {
	h := newHarness(t, "")
	root := dstroot(t)

	stdout, stderr, code := h.run(t, nil, "-b", "8A428", "register", "bash", root)
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "bash - 1 files registered.\n", stderr)
	require.Contains(t, stdout, "a9993e364706816aba3e25717850c26c9cd0d89d 100755 ")
	require.Contains(t, stdout, " ./bin/sh\n")

	stdout, _, code = h.run(t, nil, "-b", "8A428", "files", "bash")
	require.Equal(t, 0, code)
	require.Equal(t, "/bin/sh\n", stdout)

	stdout, _, code = h.run(t, nil, "-b", "other", "files", "bash")
	require.Equal(t, 0, code)
	require.Empty(t, stdout, "records are scoped by build")
}

func TestRoot_StdinFlagPassesThrough(t *testing.T) {
	h := newHarness(t, "")
	root := dstroot(t)

	stdout, stderr, code := h.run(t, strings.NewReader("./bin\n./bin/sh\n"),
		"-b", "8A428", "register", "-stdin", "bash", root)
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "bash - 1 files registered.\n", stderr)
	require.NotContains(t, stdout, "a9993e36")
}

func TestRoot_BuildFromEnvironment(t *testing.T) {
	t.Setenv("DARWINBUILD_BUILD", "9A581")
	h := newHarness(t, "")

	stdout, _, code := h.run(t, nil, "build")
	require.Equal(t, 0, code)
	require.Equal(t, "9A581\n", stdout)

	stdout, _, code = h.run(t, nil, "-b", "8A428", "build")
	require.Equal(t, 0, code)
	require.Equal(t, "8A428\n", stdout, "flag overrides environment")
}

func TestRoot_BuildFromConfigFile(t *testing.T) {
	t.Setenv("DARWINBUILD_BUILD", "")
	h := newHarness(t, "build: 10A432\n")

	stdout, _, code := h.run(t, nil, "build")
	require.Equal(t, 0, code)
	require.Equal(t, "10A432\n", stdout)
}

func TestRoot_FailureExitCode(t *testing.T) {
	h := newHarness(t, "")
	_, stderr, code := h.run(t, nil, "-b", "8A428", "register", "bash", filepath.Join(h.dir, "missing"))
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "register: ")
}

func TestRoot_InvalidConfig(t *testing.T) {
	h := newHarness(t, "tracing:\n  exporter: otlp\n")
	_, stderr, code := h.run(t, nil, "build")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "tracing.exporter")
}

func TestRoot_TracingFileExporter(t *testing.T) {
	traces := filepath.Join(t.TempDir(), "traces", "traces.jsonl")
	h := newHarness(t, "tracing:\n  enabled: true\n  exporter: file\n  file_path: "+traces+"\n")

	_, stderr, code := h.run(t, nil, "-b", "8A428", "register", "bash", dstroot(t))
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(traces)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"command.dispatch"`)
	require.Contains(t, string(data), `"name":"register.tree"`)
	require.Contains(t, string(data), `"name":"repo.commit"`)
}

func TestExitError(t *testing.T) {
	require.Equal(t, "exit status 3", (&ExitError{Code: 3}).Error())

	inner := errors.New("boom")
	err := &ExitError{Code: 2, Err: inner}
	require.Equal(t, "boom", err.Error())
	require.ErrorIs(t, err, inner)
}
