// Package config loads the harness configuration from layered JSONC files,
// the environment and command-line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/internal/logging"
	"github.com/calvinalkan/dwcorrupt/internal/page"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrInvalidMode        = dblwr.ErrInvalidMode
	ErrInvalidTimeout     = errors.New("timeout must be positive")
	ErrDataDirRequired    = errors.New("data_dir is required")
	ErrServerCmdRequired  = errors.New("server_cmd is required (set MYSQLD_CMD)")
	ErrTmpDirRequired     = errors.New("tmp_dir is required (set MYSQL_TMP_DIR)")
)

// Environment variables read by [Load].
const (
	EnvServerCmd = "MYSQLD_CMD"
	EnvTmpDir    = "MYSQL_TMP_DIR"
)

// FileName is the project config file looked up in the working directory.
const FileName = ".dwcorrupt.json"

// LockFileName is created inside the data directory to serialize trials.
const LockFileName = ".dwcorrupt.lock"

// RecordFileName is the default corruption record, inside the data directory.
const RecordFileName = ".dwcorrupt-record.json"

// Config holds all configuration options.
type Config struct {
	DataDir    string   `json:"data_dir,omitempty"`
	SystemFile string   `json:"system_file,omitempty"`
	FileExt    string   `json:"file_ext,omitempty"`
	PageSize   int      `json:"page_size,omitempty"`
	Mode       int      `json:"mode,omitempty"`
	ServerCmd  string   `json:"server_cmd,omitempty"`
	TmpDir     string   `json:"tmp_dir,omitempty"`
	Timeout    Duration `json:"timeout,omitempty"`
	Seed       uint64   `json:"seed,omitempty"`
	RecordFile string   `json:"record_file,omitempty"`
	LogLevel   string   `json:"log_level,omitempty"`
	LogFormat  string   `json:"log_format,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd  string `json:"-"`
	DataDirAbs    string `json:"-"`
	RecordFileAbs string `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks where configuration came from (for diagnostics).
type Sources struct {
	Global  string   // path to global config if loaded
	Project string   // path to project or explicit config if loaded
	Env     []string // environment variables applied
}

// Duration is a time.Duration encoded as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)

	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the default configuration.
func Default() Config {
	return Config{
		SystemFile: "ibdata1",
		FileExt:    ".ibd",
		PageSize:   page.DefaultSize,
		Mode:       int(dblwr.ModeFull),
		Timeout:    Duration(30 * time.Second),
		LogLevel:   "info",
		LogFormat:  logging.FormatConsole,
	}
}

// Format returns the validated page geometry.
func (c Config) Format() (page.Format, error) {
	return page.New(c.PageSize)
}

// DoublewriteMode returns the configured mode.
func (c Config) DoublewriteMode() dblwr.Mode {
	return dblwr.Mode(c.Mode)
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

// LockPath returns the lock file serializing trials on the data directory.
func (c Config) LockPath() string {
	return filepath.Join(c.DataDirAbs, LockFileName)
}

// RequireDataDir fails unless a data directory is configured.
func (c Config) RequireDataDir() error {
	if c.DataDir == "" {
		return ErrDataDirRequired
	}

	return nil
}

// RequireServer fails unless everything needed to start the server is set.
func (c Config) RequireServer() error {
	if c.ServerCmd == "" {
		return ErrServerCmdRequired
	}

	if c.TmpDir == "" {
		return ErrTmpDirRequired
	}

	return nil
}

func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "dwcorrupt", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "dwcorrupt", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config
	Overrides       Config            // non-zero fields win over everything else
	Env             map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/dwcorrupt/config.json)
//  3. Project config (.dwcorrupt.json in the working directory, if present)
//  4. Explicit config file via ConfigPath
//  5. Environment (MYSQLD_CMD, MYSQL_TMP_DIR)
//  6. Command-line overrides
//
// Paths in the returned Config are resolved against the working directory.
func Load(in LoadInput) (Config, error) {
	workDir := in.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalPath(in.Env); path != "" {
		global, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, global)
		}
	}

	project, projectPath, err := loadProject(workDir, in.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = merge(cfg, project)

	if v := in.Env[EnvServerCmd]; v != "" {
		cfg.ServerCmd = v
		cfg.Sources.Env = append(cfg.Sources.Env, EnvServerCmd)
	}

	if v := in.Env[EnvTmpDir]; v != "" {
		cfg.TmpDir = v
		cfg.Sources.Env = append(cfg.Sources.Env, EnvTmpDir)
	}

	cfg = merge(cfg, in.Overrides)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if cfg.DataDir != "" {
		cfg.DataDirAbs = abs(workDir, cfg.DataDir)
	}

	switch {
	case cfg.RecordFile != "":
		cfg.RecordFileAbs = abs(workDir, cfg.RecordFile)
	case cfg.DataDirAbs != "":
		cfg.RecordFileAbs = filepath.Join(cfg.DataDirAbs, RecordFileName)
	}

	if cfg.TmpDir != "" {
		cfg.TmpDir = abs(workDir, cfg.TmpDir)
	}

	return cfg, nil
}

func abs(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}

func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		path := filepath.Join(workDir, FileName)

		cfg, loaded, err := loadFile(path, false)
		if err != nil || !loaded {
			return Config{}, "", err
		}

		return cfg, path, nil
	}

	path := abs(workDir, configPath)

	if _, err := os.Stat(path); err != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}

	cfg, _, err := loadFile(path, true)
	if err != nil {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadFile loads one config file. If mustExist is false a missing file
// yields a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.SystemFile != "" {
		base.SystemFile = overlay.SystemFile
	}

	if overlay.FileExt != "" {
		base.FileExt = overlay.FileExt
	}

	if overlay.PageSize != 0 {
		base.PageSize = overlay.PageSize
	}

	if overlay.Mode != 0 {
		base.Mode = overlay.Mode
	}

	if overlay.ServerCmd != "" {
		base.ServerCmd = overlay.ServerCmd
	}

	if overlay.TmpDir != "" {
		base.TmpDir = overlay.TmpDir
	}

	if overlay.Timeout != 0 {
		base.Timeout = overlay.Timeout
	}

	if overlay.Seed != 0 {
		base.Seed = overlay.Seed
	}

	if overlay.RecordFile != "" {
		base.RecordFile = overlay.RecordFile
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.LogFormat != "" {
		base.LogFormat = overlay.LogFormat
	}

	return base
}

func validate(cfg Config) error {
	if !cfg.DoublewriteMode().Valid() {
		return fmt.Errorf("%w: %d (want 1 or 2)", ErrInvalidMode, cfg.Mode)
	}

	if _, err := cfg.Format(); err != nil {
		return err
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, cfg.Timeout.Std())
	}

	if _, err := logging.New(cfg.Logging(), io.Discard); err != nil {
		return err
	}

	return nil
}
