package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one dwcorrupt subcommand. None of them take positional
// arguments; everything is passed as flags.
type Command struct {
	// Flags holds the command's own flags. The set's name is ignored, the
	// command is named by the first word of Usage.
	Flags *flag.FlagSet

	// Usage follows "dwcorrupt" in help output, e.g. "run [flags]".
	Usage string

	// Short is the line shown in the command listing.
	Short string

	// Long is shown by "<cmd> --help". Short is used when empty.
	Long string

	// Writes marks commands that modify the data files. Their help lists
	// the exit codes a trial can end with.
	Writes bool

	Exec func(ctx context.Context, o *IO) error
}

// Name is the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine formats c for the command listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-26s %s", c.Usage, c.Short)
}

// PrintHelp writes the help for "dwcorrupt <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: dwcorrupt", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()

		o.Println()
		o.Println("Flags:")
		o.Printf("%s", buf.String())
	}

	if c.Writes {
		o.Println()
		o.Println("Exit codes:")
		o.Printf("  %d  passed\n", ExitOK)
		o.Printf("  %d  verdict failed or an I/O error occurred\n", ExitFailure)
		o.Printf("  %d  configuration or on-disk precondition not met\n", ExitConfig)
		o.Printf("  %d  mode does not match the doublewrite layout\n", ExitWrongMode)
	}
}

// Run parses args into c.Flags, rejects positional arguments and calls
// Exec. It returns the process exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o)
		return ExitOK
	}

	if err == nil && c.Flags.NArg() > 0 {
		err = fmt.Errorf("unexpected argument %q", c.Flags.Arg(0))
	}

	if err != nil {
		o.ErrPrintln("error:", fmt.Errorf("%w: %w", errUsage, err))
		o.ErrPrintln()
		c.PrintHelp(o)

		return ExitConfig
	}

	if err := c.Exec(ctx, o); err != nil {
		reportError(o, err)
		return exitCode(err)
	}

	return o.Finish()
}
