package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/dwcorrupt/internal/config"
	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/internal/page"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func load(t *testing.T, in config.LoadInput) config.Config {
	t.Helper()

	if in.Env == nil {
		in.Env = map[string]string{}
	}

	cfg, err := config.Load(in)
	require.NoError(t, err)

	return cfg
}

func Test_Load_Returns_Defaults_When_No_Sources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := load(t, config.LoadInput{WorkDirOverride: dir})

	if got, want := cfg.PageSize, page.DefaultSize; got != want {
		t.Errorf("PageSize=%d, want=%d", got, want)
	}

	if got, want := cfg.DoublewriteMode(), dblwr.ModeFull; got != want {
		t.Errorf("Mode=%s, want=%s", got, want)
	}

	if got, want := cfg.Timeout.Std(), 30*time.Second; got != want {
		t.Errorf("Timeout=%s, want=%s", got, want)
	}

	if got, want := cfg.SystemFile, "ibdata1"; got != want {
		t.Errorf("SystemFile=%q, want=%q", got, want)
	}

	if err := cfg.RequireDataDir(); !errors.Is(err, config.ErrDataDirRequired) {
		t.Errorf("RequireDataDir err=%v, want %v", err, config.ErrDataDirRequired)
	}
}

func Test_Load_Applies_Layers_In_Precedence_Order(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "dwcorrupt", "config.json"), `{
		"data_dir": "global-data",
		"page_size": 4096,
		"timeout": "5s",
		"server_cmd": "from-global",
	}`)
	writeFile(t, filepath.Join(dir, ".dwcorrupt.json"), `{
		// project wins over global
		"data_dir": "project-data",
		"mode": 2,
	}`)

	cfg := load(t, config.LoadInput{
		WorkDirOverride: dir,
		Env: map[string]string{
			"XDG_CONFIG_HOME": xdg,
			"MYSQLD_CMD":      "mysqld --datadir=x",
			"MYSQL_TMP_DIR":   "tmp",
		},
		Overrides: config.Config{Timeout: config.Duration(time.Second)},
	})

	if got, want := cfg.DataDirAbs, filepath.Join(dir, "project-data"); got != want {
		t.Errorf("DataDirAbs=%q, want=%q", got, want)
	}

	if got, want := cfg.PageSize, 4096; got != want {
		t.Errorf("PageSize=%d, want=%d", got, want)
	}

	if got, want := cfg.DoublewriteMode(), dblwr.ModeReduced; got != want {
		t.Errorf("Mode=%s, want=%s", got, want)
	}

	if got, want := cfg.ServerCmd, "mysqld --datadir=x"; got != want {
		t.Errorf("ServerCmd=%q, want=%q", got, want)
	}

	if got, want := cfg.TmpDir, filepath.Join(dir, "tmp"); got != want {
		t.Errorf("TmpDir=%q, want=%q", got, want)
	}

	if got, want := cfg.Timeout.Std(), time.Second; got != want {
		t.Errorf("Timeout=%s, want=%s", got, want)
	}

	if got, want := cfg.RecordFileAbs, filepath.Join(dir, "project-data", config.RecordFileName); got != want {
		t.Errorf("RecordFileAbs=%q, want=%q", got, want)
	}

	want := config.Sources{
		Global:  filepath.Join(xdg, "dwcorrupt", "config.json"),
		Project: filepath.Join(dir, ".dwcorrupt.json"),
		Env:     []string{"MYSQLD_CMD", "MYSQL_TMP_DIR"},
	}
	if diff := cmp.Diff(want, cfg.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, cfg.RequireServer())
}

func Test_Load_Uses_Explicit_File_When_Config_Flag_Given(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".dwcorrupt.json"), `{"data_dir": "project"}`)
	writeFile(t, filepath.Join(dir, "custom.json"), `{"data_dir": "custom"}`)

	cfg := load(t, config.LoadInput{WorkDirOverride: dir, ConfigPath: "custom.json"})

	if got, want := cfg.DataDirAbs, filepath.Join(dir, "custom"); got != want {
		t.Errorf("DataDirAbs=%q, want=%q", got, want)
	}
}

func Test_Load_Fails_When_Input_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		cfgPath string
		want    error
	}{
		{name: "Mode", file: `{"mode": 3}`, want: config.ErrInvalidMode},
		{name: "PageSize", file: `{"page_size": 5000}`, want: page.ErrInvalidPageSize},
		{name: "Timeout", file: `{"timeout": "-1s"}`, want: config.ErrInvalidTimeout},
		{name: "Syntax", file: `{"data_dir": `, want: config.ErrConfigInvalid},
		{name: "UnknownField", file: `{"datadir": "x"}`, want: config.ErrConfigInvalid},
		{name: "MissingExplicit", cfgPath: "nope.json", want: config.ErrConfigFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, ".dwcorrupt.json"), tt.file)
			}

			_, err := config.Load(config.LoadInput{
				WorkDirOverride: dir,
				ConfigPath:      tt.cfgPath,
				Env:             map[string]string{},
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func Test_RequireServer_Fails_When_Env_Missing(t *testing.T) {
	t.Parallel()

	cfg := load(t, config.LoadInput{WorkDirOverride: t.TempDir()})
	if err := cfg.RequireServer(); !errors.Is(err, config.ErrServerCmdRequired) {
		t.Errorf("err=%v, want %v", err, config.ErrServerCmdRequired)
	}

	cfg.ServerCmd = "mysqld"
	if err := cfg.RequireServer(); !errors.Is(err, config.ErrTmpDirRequired) {
		t.Errorf("err=%v, want %v", err, config.ErrTmpDirRequired)
	}
}
