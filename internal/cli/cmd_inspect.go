package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// InspectCmd returns the inspect command.
func InspectCmd(e *env) *Command {
	return &Command{
		Flags: flag.NewFlagSet("inspect", flag.ContinueOnError),
		Usage: "inspect",
		Short: "Show the doublewrite header, layout and entries",
		Exec: func(_ context.Context, o *IO) error {
			return execInspect(o, e)
		},
	}
}

func execInspect(o *IO, e *env) error {
	t, err := openTrial(e, trialOptions{buffer: true})
	if err != nil {
		return err
	}

	h := t.buffer.Header()

	entries, err := t.buffer.Entries()
	if err != nil {
		return err
	}

	o.Println("system_file=" + t.buffer.Path())
	o.Println(fmt.Sprintf("magic=%d", h.Magic))
	o.Println(fmt.Sprintf("block1=%d", h.Block1))
	o.Println(fmt.Sprintf("block2=%d", h.Block2))
	o.Println("layout=" + t.buffer.Layout().String())
	o.Println(fmt.Sprintf("entries=%d", len(entries)))

	for _, entry := range entries {
		o.Println(entry.String())
	}

	return nil
}
