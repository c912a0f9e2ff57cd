package internalexec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"
)

// MaxLineBytes bounds a single streamed line. Longer lines are split.
const MaxLineBytes = 1 << 20

// killGrace bounds how long Wait lingers after cancellation before killing
// the leader outright.
const killGrace = 5 * time.Second

// Result captures how a streamed command ended.
type Result struct {
	// ExitCode is the process exit status, or the negated signal number when
	// the process was killed by a signal.
	ExitCode int
	Lines    int
	Last     string
}

// Stream receives the life events of a streamed command.
type Stream struct {
	// OnStart runs right after the child is spawned.
	OnStart func(pid int)
	// OnLine receives each output line without its newline.
	OnLine func(line string)
}

// RunStreaming starts cmd with stdout and stderr combined into one pipe and
// hands the output to the stream line by line as it arrives. A non-zero exit
// is reported through Result; err is only set when the command could not run.
func RunStreaming(cmd *exec.Cmd, s Stream) (Result, error) {
	var res Result

	reader, writer, err := os.Pipe()
	if err != nil {
		return res, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return res, err
	}
	// Only the child holds the write end now, so EOF means it is gone.
	_ = writer.Close()

	if s.OnStart != nil {
		s.OnStart(cmd.Process.Pid)
	}

	readErr := readLines(reader, MaxLineBytes, func(line string) {
		res.Lines++
		res.Last = line
		if s.OnLine != nil {
			s.OnLine(line)
		}
	})
	_ = reader.Close()

	waitErr := cmd.Wait()
	res.ExitCode = exitCode(waitErr)
	if waitErr != nil && res.ExitCode == 0 {
		return res, waitErr
	}
	if readErr != nil {
		return res, fmt.Errorf("read command output: %w", readErr)
	}
	return res, nil
}

// KillGroupOnCancel runs cmd in its own process group and kills the whole
// group when its context is cancelled, so children forked by a wrapper
// script die with it.
func KillGroupOnCancel(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = killGrace
}

// readLines hands every line to fn. A line longer than max is delivered in
// chunks of at most max bytes.
func readLines(r io.Reader, max int, fn func(string)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var pending []byte
	split := false
	for {
		chunk, err := br.ReadSlice('\n')
		pending = append(pending, chunk...)
		for len(pending) > max {
			fn(string(pending[:max]))
			pending = append(pending[:0], pending[max:]...)
			split = true
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if line := strings.TrimRight(string(pending), "\r\n"); line != "" || (len(pending) > 0 && !split) {
			fn(line)
		}
		pending = pending[:0]
		split = false
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return -int(status.Signal())
	}
	return exitErr.ExitCode()
}

// BuildEnv returns the current environment with custom overriding it, in a
// stable order.
func BuildEnv(custom map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, custom[k]))
	}
	return env
}
