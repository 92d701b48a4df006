package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/dwcorrupt/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and where it was loaded from.",
		Exec: func(_ context.Context, io *IO) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("data_dir=" + cfg.DataDirAbs)
	io.Println("system_file=" + cfg.SystemFile)
	io.Println("file_ext=" + cfg.FileExt)
	io.Println(fmt.Sprintf("page_size=%d", cfg.PageSize))
	io.Println(fmt.Sprintf("mode=%d", cfg.Mode))
	io.Println("server_cmd=" + cfg.ServerCmd)
	io.Println("tmp_dir=" + cfg.TmpDir)
	io.Println("timeout=" + cfg.Timeout.Std().String())
	io.Println(fmt.Sprintf("seed=%d", cfg.Seed))
	io.Println("record_file=" + cfg.RecordFileAbs)
	io.Println("log_level=" + cfg.LogLevel)
	io.Println("log_format=" + cfg.LogFormat)

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" && len(cfg.Sources.Env) == 0 {
		io.Println("(defaults only)")

		return nil
	}

	if cfg.Sources.Global != "" {
		io.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		io.Println("project_config=" + cfg.Sources.Project)
	}

	if len(cfg.Sources.Env) > 0 {
		io.Println("env=" + strings.Join(cfg.Sources.Env, ","))
	}

	return nil
}
