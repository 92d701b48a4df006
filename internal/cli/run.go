package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/dwcorrupt/internal/config"
	"github.com/calvinalkan/dwcorrupt/internal/logging"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

var errUsage = errors.New("invalid arguments")

// env carries what every command needs besides its own flags.
type env struct {
	cfg *config.Config
	fs  fs.FS
	log *logging.Zap
}

// Run is the main entry point. Returns exit code.
//
// A signal on sigCh cancels the context passed to the command; a running
// server is stopped and the trial aborts with its record kept on disk.
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, environ map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("dwcorrupt", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	dataDir := globals.StringP("data-dir", "d", "", "Server data `dir`")
	help := globals.BoolP("help", "h", false, "Show help")

	o := NewIO(out, errOut)

	if len(args) > 0 {
		args = args[1:]
	}

	if err := globals.Parse(args); err != nil {
		o.ErrPrintln("error:", err)
		printUsage(errOut, globals, nil)

		return ExitConfig
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Overrides:       config.Config{DataDir: *dataDir},
		Env:             environ,
	})
	if err != nil {
		o.ErrPrintln("error:", err)

		return exitCode(err)
	}

	log, err := logging.New(cfg.Logging(), errOut)
	if err != nil {
		o.ErrPrintln("error:", err)

		return ExitConfig
	}

	defer func() { _ = log.Sync() }()

	e := &env{cfg: &cfg, fs: fs.NewReal(), log: log}
	commands := allCommands(e)

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, globals, commands)

		return ExitOK
	}

	var cmd *Command

	for _, c := range commands {
		if c.Name() == rest[0] {
			cmd = c

			break
		}
	}

	if cmd == nil {
		o.ErrPrintln("error: unknown command:", rest[0])
		printUsage(errOut, globals, commands)

		return ExitConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				log.Warn("received signal, aborting", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, o, rest[1:])
}

func allCommands(e *env) []*Command {
	return []*Command{
		RunCmd(e),
		CorruptCmd(e),
		RestoreCmd(e),
		InspectCmd(e),
		SpacesCmd(e),
		PrintConfigCmd(e.cfg),
	}
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	_, _ = fmt.Fprintln(w, `dwcorrupt - doublewrite buffer fault-injection harness

Usage: dwcorrupt [options] <command> [args]

Options:`)
	_, _ = fmt.Fprint(w, globals.FlagUsages())

	if len(commands) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Commands:")

	for _, c := range commands {
		_, _ = fmt.Fprintln(w, c.HelpLine())
	}
}
