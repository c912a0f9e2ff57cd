// Package resmon supervises the resource-sampling side process that runs
// alongside an engine stage and analyses what it writes.
package resmon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/alexisbeaulieu97/stagehand/internal/logger"
)

// ErrFlushTimeout is returned by Stop when the sampler did not acknowledge the
// flush request before the deadline. Metrics must be treated as unavailable.
var ErrFlushTimeout = errors.New("resource sampler did not flush in time")

// DefaultTool is the sampler executable.
const DefaultTool = "prmon"

// Files names the outputs of a sampler run for one stage.
type Files struct {
	Full    string
	Summary string
}

// FilesFor returns the sampler output names for stage.
func FilesFor(stage string) Files {
	return Files{
		Full:    "prmon.full." + stage,
		Summary: "prmon.summary." + stage + ".json",
	}
}

// Command builds the sampler command line for pid.
func Command(tool string, pid int, files Files, intervalSeconds int) []string {
	if tool == "" {
		tool = DefaultTool
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 30
	}
	return []string{
		tool,
		"--pid", strconv.Itoa(pid),
		"--filename", files.Full,
		"--json-summary", files.Summary,
		"--interval", strconv.Itoa(intervalSeconds),
	}
}

// Sampler is a running side process. A supervising goroutine owns Wait and
// reports the exit on a channel, so a flush request is an awaited event.
type Sampler struct {
	cmd  *exec.Cmd
	log  *logger.Logger
	done chan struct{}

	mu      sync.Mutex
	waitErr error
	stopped bool
}

// Start launches argv in dir.
func Start(argv []string, dir string, log *logger.Logger) (*Sampler, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty sampler command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start resource sampler: %w", err)
	}

	s := &Sampler{cmd: cmd, log: log, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(s.done)
	}()
	log.Debugf("resource sampler started with pid %d", cmd.Process.Pid)
	return s, nil
}

// Pid returns the sampler process id.
func (s *Sampler) Pid() int {
	return s.cmd.Process.Pid
}

// Stop asks the sampler to flush its summary and waits for it to exit. When
// ctx expires first the sampler is killed and ErrFlushTimeout is returned.
func (s *Sampler) Stop(ctx context.Context) error {
	s.mu.Lock()
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
	}

	if !already {
		if err := unix.Kill(s.cmd.Process.Pid, unix.SIGUSR1); err != nil && !errors.Is(err, unix.ESRCH) {
			s.log.Warnf("cannot signal resource sampler: %v", err)
		}
	}

	select {
	case <-s.done:
		s.mu.Lock()
		err := s.waitErr
		s.mu.Unlock()
		if err != nil {
			s.log.Debugf("resource sampler exited: %v", err)
		}
		return nil
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		<-s.done
		return ErrFlushTimeout
	}
}
