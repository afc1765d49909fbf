// Package process supervises external engine processes.
//
// BaseProcess owns the start/stop sequence of one child process (signal,
// grace period, SIGKILL escalation) and its log files. Run executes
// short-lived helper commands such as initdb to completion. WaitReady polls a
// readiness check until the child accepts connections, aborting early when
// the child exits.
package process
