package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	initMu.Lock()
	prev := defaultLogger
	defaultLogger = &Logger{writer: &buf, enabled: true, minLevel: LevelWarn}
	initMu.Unlock()
	t.Cleanup(func() {
		initMu.Lock()
		defaultLogger = prev
		initMu.Unlock()
	})
	return &buf
}

func TestLog_DefaultLevelIsWarn(t *testing.T) {
	buf := reset(t)

	Debug(CatRegistry, "hidden")
	Info(CatRegistry, "hidden")
	Warn(CatRegistry, "plugin has no name (skipping)", "source", "x.so")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[WARN] [registry] plugin has no name (skipping) source=x.so\n")
}

func TestLog_Fields(t *testing.T) {
	buf := reset(t)
	SetMinLevel(LevelDebug)

	Debug(CatDB, "odd", "a", 1, "b")
	ErrorErr(CatManifest, "failed", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "[DEBUG] [db] odd a=1 b=<missing>"), lines[0])
	require.True(t, strings.HasSuffix(lines[1], "[ERROR] [manifest] failed error=<nil>"), lines[1])
}

func TestLog_Disabled(t *testing.T) {
	buf := reset(t)
	SetEnabled(false)
	Error(CatBuild, "nothing")
	require.Empty(t, buf.String())
}

func TestInit_WritesDebugToFile(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "darwinxref.log")

	cleanup, err := Init(path)
	require.NoError(t, err)
	Debug(CatConfig, "starting", "version", "dev")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[DEBUG] [config] starting version=dev")
}

func TestInit_BadPath(t *testing.T) {
	reset(t)
	_, err := Init(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	require.Error(t, err)
}

func TestLevel_String(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "ERROR", LevelError.String())
	require.Equal(t, "UNKNOWN", Level(99).String())
}
