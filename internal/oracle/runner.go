// Package oracle restarts the server under test and decides from its exit
// status and error log whether doublewrite recovery behaved as the requested
// mode demands.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/internal/logging"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

// Defaults for [Runner].
const (
	DefaultTimeout = 30 * time.Second
	DefaultGrace   = 5 * time.Second
)

var (
	// ErrNoCommand is returned when no server command is configured.
	ErrNoCommand = errors.New("no server command configured")
	// ErrInterrupted is returned when the caller's context ends before the
	// server run does.
	ErrInterrupted = errors.New("server run interrupted")
)

// Outcome is what a server run produced.
type Outcome struct {
	// Exited is false when the server was still running at the timeout and
	// had to be stopped.
	Exited bool
	// ExitCode is the status of a server that exited by itself; -1 when it
	// was ended by a signal.
	ExitCode int
	// Log is the full content of the server error log.
	Log string
}

func (o Outcome) String() string {
	if !o.Exited {
		return "still running at timeout"
	}

	return fmt.Sprintf("exited with status %d", o.ExitCode)
}

// Runner starts the server command through the shell and waits for it.
type Runner struct {
	FS      fs.FS
	Command string // full shell command, see [BuildCommand]
	LogFile string
	Timeout time.Duration
	Grace   time.Duration // time between SIGTERM and SIGKILL
	Log     logging.Logger
}

// BuildCommand derives the command to run from the configured server
// command: core dumps are disabled and the error log is redirected to
// logFile.
func BuildCommand(serverCmd, logFile string) string {
	cmd := strings.TrimSpace(strings.ReplaceAll(serverCmd, "--core-file", ""))

	return cmd + " --log_error=" + logFile
}

// LogPath returns the error log location for a trial in mode.
func LogPath(tmpDir string, mode dblwr.Mode) string {
	return filepath.Join(tmpDir, fmt.Sprintf("innodb_corrupt_doublewrite-%d.log", int(mode)))
}

// Run truncates the log file, starts the server in its own process group
// and waits for it to exit or for the timeout. On timeout the whole group
// gets SIGTERM, then SIGKILL after the grace period.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	if strings.TrimSpace(r.Command) == "" {
		return Outcome{}, ErrNoCommand
	}

	log := r.Log
	if log == nil {
		log = logging.Discard{}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	grace := r.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	if err := r.resetLog(); err != nil {
		return Outcome{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", r.Command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}
	cmd.WaitDelay = grace

	log.Info("starting server", "command", r.Command, "timeout", timeout.String())

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("starting server: %w", err)
	}

	waitErr := cmd.Wait()

	// Reap anything left in the group, including children that outlived
	// the shell.
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		log.Warn("killing server process group", "pid", cmd.Process.Pid, "error", err)
	}

	if ctx.Err() != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}

	var out Outcome

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.Exited = false
	case waitErr == nil:
		out.Exited = true
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Outcome{}, fmt.Errorf("waiting for server: %w", waitErr)
		}

		out.Exited = true
		out.ExitCode = exitErr.ExitCode()
	}

	data, err := r.FS.ReadFile(r.LogFile)
	switch {
	case err == nil:
		out.Log = string(data)
	case errors.Is(err, os.ErrNotExist):
		log.Warn("server wrote no error log", "path", r.LogFile)
	default:
		return Outcome{}, fmt.Errorf("reading server log: %w", err)
	}

	log.Info("server finished", "outcome", out.String(), "log_bytes", len(out.Log))

	return out, nil
}

func (r *Runner) resetLog() error {
	if r.LogFile == "" {
		return nil
	}

	if err := r.FS.MkdirAll(filepath.Dir(r.LogFile), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	f, err := r.FS.OpenFile(r.LogFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("truncating server log: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("truncating server log: %w", err)
	}

	return nil
}
