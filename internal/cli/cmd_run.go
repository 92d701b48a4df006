package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/internal/oracle"
)

// RunCmd returns the run command.
func RunCmd(e *env) *Command {
	tf := newTrialFlags("run", e)
	timeout := tf.flags.Duration("timeout", e.cfg.Timeout.Std(), "How long the server may run before it is stopped")

	return &Command{
		Flags: tf.flags,
		Usage: "run [flags]",
		Writes: true,
		Short: "Corrupt a page, restart the server and check recovery",
		Long: `Corrupt one page protected by the doublewrite buffer, seed the buffer for
the requested mode, start the server and judge its error log.

Full mode (1) passes when the server recovers the page from the buffer and
exits within the timeout. Reduced mode (2) passes when the server refuses
recovery and either hangs until the timeout or exits with a non-zero
status; the page is then restored.`,
		Exec: func(ctx context.Context, o *IO) error {
			return execRun(ctx, o, e, tf, *timeout)
		},
	}
}

func execRun(ctx context.Context, o *IO, e *env, tf *trialFlags, timeout time.Duration) error {
	mode, err := tf.resolveMode(e)
	if err != nil {
		return err
	}

	if err := e.cfg.RequireServer(); err != nil {
		return err
	}

	if timeout <= 0 {
		return fmt.Errorf("%w: --timeout must be positive", errUsage)
	}

	t, err := openTrial(e, trialOptions{lock: true, buffer: true})
	if err != nil {
		return err
	}
	defer t.close()

	in := t.injector(tf.seed)

	rec, err := t.corrupt(in, mode, tf.target())
	if err != nil {
		return err
	}

	logFile := oracle.LogPath(e.cfg.TmpDir, mode)
	runner := &oracle.Runner{
		FS:      e.fs,
		Command: oracle.BuildCommand(e.cfg.ServerCmd, logFile),
		LogFile: logFile,
		Timeout: timeout,
		Log:     e.log,
	}

	out, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	marker, err := oracle.Judge(mode, rec.Entry(), out)
	if err != nil {
		e.log.Error("trial failed", "run_id", rec.RunID, "record", e.cfg.RecordFileAbs)

		return err
	}

	if mode == dblwr.ModeReduced {
		if err := in.UncorruptPage(rec); err != nil {
			return err
		}
	}

	t.removeRecord(o)

	o.Println(strings.TrimRight(marker, "\n"))

	return nil
}
