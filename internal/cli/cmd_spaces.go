package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// SpacesCmd returns the spaces command.
func SpacesCmd(e *env) *Command {
	return &Command{
		Flags: flag.NewFlagSet("spaces", flag.ContinueOnError),
		Usage: "spaces",
		Short: "List tablespace ids and their files",
		Exec: func(_ context.Context, o *IO) error {
			return execSpaces(o, e)
		},
	}
}

func execSpaces(o *IO, e *env) error {
	t, err := openTrial(e, trialOptions{})
	if err != nil {
		return err
	}

	for _, id := range t.index.IDs() {
		path, err := t.index.Path(id)
		if err != nil {
			return err
		}

		o.Println(fmt.Sprintf("%d\t%s", id, path))
	}

	return nil
}
