package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/dwcorrupt/internal/inject"
)

// RestoreCmd returns the restore command.
func RestoreCmd(e *env) *Command {
	flags := flag.NewFlagSet("restore", flag.ContinueOnError)
	record := flags.StringP("record", "r", "", "Corruption record `file` (default from config)")

	return &Command{
		Flags: flags,
		Usage: "restore [--record file]",
		Writes: true,
		Short: "Write the original page from a corruption record back",
		Exec: func(_ context.Context, o *IO) error {
			return execRestore(o, e, *record)
		},
	}
}

func execRestore(o *IO, e *env, recordPath string) error {
	if recordPath == "" {
		recordPath = e.cfg.RecordFileAbs
	}

	if recordPath == "" {
		return e.cfg.RequireDataDir()
	}

	rec, err := inject.LoadRecord(e.fs, recordPath)
	if err != nil {
		return err
	}

	t, err := openTrial(e, trialOptions{lock: true})
	if err != nil {
		return err
	}
	defer t.close()

	if rec.PageSize != t.format.Size() {
		return fmt.Errorf("%w: record page size %d, configured %d", errUsage, rec.PageSize, t.format.Size())
	}

	if err := t.injector(0).UncorruptPage(rec); err != nil {
		return err
	}

	if recordPath == e.cfg.RecordFileAbs {
		t.removeRecord(o)
	}

	o.Println("restored " + rec.Entry().String())

	return nil
}
