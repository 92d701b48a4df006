package cli

import (
	"context"
	"fmt"
)

// CorruptCmd returns the corrupt command.
func CorruptCmd(e *env) *Command {
	tf := newTrialFlags("corrupt", e)

	return &Command{
		Flags: tf.flags,
		Usage: "corrupt [flags]",
		Writes: true,
		Short: "Corrupt a page and seed the buffer without starting the server",
		Long: `Corrupt one page and seed the doublewrite buffer for the requested mode,
then save the corruption record. Start the server yourself and undo the
change with "dwcorrupt restore".`,
		Exec: func(_ context.Context, o *IO) error {
			return execCorrupt(o, e, tf)
		},
	}
}

func execCorrupt(o *IO, e *env, tf *trialFlags) error {
	mode, err := tf.resolveMode(e)
	if err != nil {
		return err
	}

	t, err := openTrial(e, trialOptions{lock: true, buffer: true})
	if err != nil {
		return err
	}
	defer t.close()

	rec, err := t.corrupt(t.injector(tf.seed), mode, tf.target())
	if err != nil {
		return err
	}

	o.Println("run_id=" + rec.RunID)
	o.Println(rec.Entry().String())
	o.Println(fmt.Sprintf("offset=%d mask=0x%02x", rec.Offset, rec.Mask))
	o.Println("record=" + e.cfg.RecordFileAbs)

	return nil
}
