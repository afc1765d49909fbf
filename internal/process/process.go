package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// LogFiles holds the stdout/stderr files of a supervised process.
type LogFiles struct {
	stdoutFile *os.File
	stderrFile *os.File
	dir        string
	stdoutName string
	stderrName string
}

func (l *LogFiles) create() error {
	stdoutFile, err := os.OpenFile(l.StdoutPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.OpenFile(l.StderrPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = stdoutFile.Close()
		return fmt.Errorf("create stderr log: %w", err)
	}
	l.stdoutFile = stdoutFile
	l.stderrFile = stderrFile
	return nil
}

// Close closes both files. Safe to call more than once.
func (l *LogFiles) Close() {
	if l.stdoutFile != nil {
		_ = l.stdoutFile.Close()
		l.stdoutFile = nil
	}
	if l.stderrFile != nil {
		_ = l.stderrFile.Close()
		l.stderrFile = nil
	}
}

// Stdout returns the open stdout file as a writer, or io.Discard when the
// files are closed.
func (l *LogFiles) Stdout() io.Writer {
	if l.stdoutFile == nil {
		return io.Discard
	}
	return l.stdoutFile
}

// StdoutPath returns the path of the stdout log file.
func (l LogFiles) StdoutPath() string {
	return filepath.Join(l.dir, l.stdoutName)
}

// StderrPath returns the path of the stderr log file.
func (l LogFiles) StderrPath() string {
	return filepath.Join(l.dir, l.stderrName)
}

// NewLogFiles opens "<name>-stdout.log" and "<name>-stderr.log" in dir for
// appending, so that output of consecutive runs is kept.
func NewLogFiles(dir, name string) (LogFiles, error) {
	l := LogFiles{
		dir:        dir,
		stdoutName: name + "-stdout.log",
		stderrName: name + "-stderr.log",
	}
	if err := l.create(); err != nil {
		return LogFiles{}, err
	}
	return l, nil
}

// DefaultStopTimeout is used when no stop timeout is configured.
const DefaultStopTimeout = 10 * time.Second

// termGracePeriod caps the wait between the stop signal and SIGKILL.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds the wait for cmd.Wait after SIGKILL.
const killDrainTimeout = 10 * time.Second

// drainDone waits up to timeout for the cmd.Wait result. It reports false
// when the timeout elapsed first.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// stopWithDone sends sig, escalates to SIGKILL after the grace period and
// waits for the single cmd.Wait goroutine to report through done.
//
// Worst-case blocking is timeout + killDrainTimeout.
func stopWithDone(cmd *exec.Cmd, done <-chan error, timeout time.Duration, sig syscall.Signal, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}

	if err := cmd.Process.Signal(sig); err != nil {
		// Already exited.
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectSignalExit(waitErr, sig, name)
	}

	grace := min(termGracePeriod, timeout)
	killTimer := time.AfterFunc(grace, func() {
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	totalTimer := time.NewTimer(timeout)
	defer totalTimer.Stop()

	select {
	case err := <-done:
		return expectSignalExit(err, sig, name)
	case <-totalTimer.C:
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
		}
		if err := expectSignalExit(waitErr, sig, name); err != nil {
			return fmt.Errorf("%s stop timeout: %w", name, err)
		}
		return nil
	}
}

// expectSignalExit interprets the cmd.Wait result after sending sent.
// A clean exit and deaths by sent or SIGKILL count as a successful stop.
func expectSignalExit(err error, sent syscall.Signal, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			sig := status.Signal()
			if sig == sent || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// StartCmd opens log files in logDir, attaches them to cmd and starts it.
// The caller owns the returned LogFiles; they are closed on failure.
func StartCmd(cmd *exec.Cmd, logDir, name string) (LogFiles, error) {
	logFiles, err := NewLogFiles(logDir, name)
	if err != nil {
		return LogFiles{}, fmt.Errorf("create %s logs: %w", name, err)
	}

	cmd.Stdout = logFiles.stdoutFile
	cmd.Stderr = logFiles.stderrFile

	if err := cmd.Start(); err != nil {
		logFiles.Close()
		return LogFiles{}, fmt.Errorf("start %s process: %w", name, err)
	}

	return logFiles, nil
}

// Run executes a short-lived helper command to completion, appending its
// output to "<name>-stdout.log"/"<name>-stderr.log" in logDir. A non-zero
// exit is reported together with the path of the stderr log.
func Run(ctx context.Context, cmd *exec.Cmd, logDir, name string) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if ctx.Err() != nil {
		return fmt.Errorf("run %s: %w", name, ctx.Err())
	}
	logFiles, err := StartCmd(cmd, logDir, name)
	if err != nil {
		return err
	}
	defer logFiles.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("run %s (see %s): %w", name, logFiles.StderrPath(), err)
	}
	return nil
}
