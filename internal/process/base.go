package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a process that is
// still running.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when SetupAndStart is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyLogDir is returned when SetupAndStart is called without a log directory.
const ErrEmptyLogDir = sentinel.Error("log directory must not be empty")

// BaseProcess supervises one external process: it owns the single cmd.Wait
// goroutine, the stdout/stderr log files and the stop sequence.
//
// BaseProcess is not safe for concurrent use. The owning engine serializes
// SetupAndStart, Stop and Close.
type BaseProcess struct {
	cmd         *exec.Cmd
	waitDone    <-chan error
	exited      <-chan struct{}
	logFiles    LogFiles
	name        string
	log         *slog.Logger
	stopTimeout time.Duration
	stopSignal  syscall.Signal
}

// NewBaseProcess creates a BaseProcess. stopTimeout bounds the safety-net
// stop performed by Close and falls back to DefaultStopTimeout when zero.
// stopSignal is the first signal sent by Stop; zero means SIGTERM.
// Panics if name is empty.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration, stopSignal syscall.Signal) BaseProcess {
	if name == "" {
		panic("pgenv: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if stopSignal == 0 {
		stopSignal = syscall.SIGTERM
	}
	return BaseProcess{name: name, log: logger, stopTimeout: stopTimeout, stopSignal: stopSignal}
}

// Stop terminates the process, escalating to SIGKILL after a grace period.
// IsStarted reports false afterwards even when Stop returns an error, since
// the process is no longer in a known-running state. Stop on a process that
// was never started returns nil.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.reset()
		return nil
	}
	pid := b.cmd.Process.Pid
	err := stopWithDone(b.cmd, b.waitDone, timeout, b.stopSignal, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.reset()
	return err
}

func (b *BaseProcess) reset() {
	b.cmd = nil
	b.waitDone = nil
	b.exited = nil
}

// Close closes the log files. A process that is still running is stopped
// first with a warning; callers are expected to Stop before Close.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process closed while running; stopping it", "process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("stop during close failed", "process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}

// Logger returns the logger used by this process.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel closed when the process exits, or nil when no
// process is running.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// LogFiles returns the log files of the current or last started process.
func (b *BaseProcess) LogFiles() LogFiles {
	return b.logFiles
}

// SetupAndStart wires stdout/stderr into log files under logDir and starts
// cmd. The caller sets Path, Args and Dir. Exactly one goroutine calls
// cmd.Wait; its result is consumed by Stop.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, logDir string) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if logDir == "" {
		return ErrEmptyLogDir
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	configureSysProcAttr(cmd)

	// Log files from a previous run are replaced.
	b.logFiles.Close()
	logFiles, err := StartCmd(cmd, logDir, b.name)
	if err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	b.cmd = cmd
	b.logFiles = logFiles

	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	b.waitDone = done
	b.exited = exited

	return nil
}
