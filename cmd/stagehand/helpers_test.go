package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), mode))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
}

func TestLogLevelPrecedence(t *testing.T) {
	t.Parallel()

	require.Equal(t, "info", logLevel(nil, ""))
	require.Equal(t, "warn", logLevel(&rootFlags{}, "warn"))
	require.Equal(t, "error", logLevel(&rootFlags{logLevel: "error"}, "warn"))
	require.Equal(t, "debug", logLevel(&rootFlags{verbose: true, logLevel: "error"}, "warn"))
}

func TestRequireFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "job.yaml", "x", 0o644)

	got, err := requireFile("config file", path)
	require.NoError(t, err)
	require.Equal(t, path, got)

	_, err = requireFile("config file", " ")
	require.EqualError(t, err, "config file is required")

	_, err = requireFile("config file", dir)
	require.ErrorContains(t, err, "is a directory")

	_, err = requireFile("config file", filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "config file does not exist")
}
