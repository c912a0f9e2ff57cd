package internalexec

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStreaming_CombinesLinesInOrder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	var lines []string
	var pid int
	cmd := exec.Command("sh", "-c", "echo one; echo two >&2; printf three")

	res, err := RunStreaming(cmd, Stream{
		OnStart: func(p int) { pid = p },
		OnLine:  func(l string) { lines = append(lines, l) },
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"one", "two", "three"}, lines)
	assert.Equal(t, 3, res.Lines)
	assert.Equal(t, "three", res.Last)
	assert.NotZero(t, pid)
}

func TestRunStreaming_NonZeroExitIsNotAnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	res, err := RunStreaming(exec.Command("sh", "-c", "echo failing; exit 3"), Stream{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "failing", res.Last)
}

func TestRunStreaming_SignalIsNegative(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	res, err := RunStreaming(exec.Command("sh", "-c", "kill -TERM $$"), Stream{})
	require.NoError(t, err)
	assert.Equal(t, -15, res.ExitCode)
}

func TestRunStreaming_ContextCancelKills(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := RunStreaming(exec.CommandContext(ctx, "sleep", "5"), Stream{})
	require.NoError(t, err)
	assert.Equal(t, -9, res.ExitCode)
}

func TestRunStreaming_CommandNotFound(t *testing.T) {
	_, err := RunStreaming(exec.Command("this-command-does-not-exist"), Stream{})
	require.Error(t, err)
}

func TestBuildEnvAppendsCustomValues(t *testing.T) {
	env := BuildEnv(map[string]string{"ZZ_STAGEHAND": "2", "AA_STAGEHAND": "1"})
	joined := strings.Join(env, "\n")
	require.Contains(t, joined, "AA_STAGEHAND=1")
	require.Less(t, strings.Index(joined, "AA_STAGEHAND=1"), strings.Index(joined, "ZZ_STAGEHAND=2"))
}

func TestRunStreaming_CancelKillsForkedChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// sh forks sleep, which inherits the output pipe.
	cmd := exec.CommandContext(ctx, "sh", "-c", "sleep 5; echo late")
	KillGroupOnCancel(cmd)

	start := time.Now()
	res, err := RunStreaming(cmd, Stream{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, -9, res.ExitCode)
	assert.NotEqual(t, "late", res.Last)
}

func TestReadLines_SplitsOverlongLines(t *testing.T) {
	var lines []string
	input := strings.Repeat("x", 10) + "\nshort\n\n" + strings.Repeat("y", 4)
	require.NoError(t, readLines(strings.NewReader(input), 4, func(l string) { lines = append(lines, l) }))
	assert.Equal(t, []string{"xxxx", "xxxx", "xx", "short", "", "yyyy"}, lines)
}

func TestReadLines_ExactMultipleDoesNotEmitEmptyTail(t *testing.T) {
	var lines []string
	require.NoError(t, readLines(strings.NewReader("abcdefgh\nz\n"), 4, func(l string) { lines = append(lines, l) }))
	assert.Equal(t, []string{"abcd", "efgh", "z"}, lines)
}
