// Package logging provides the structured logger used across the harness.
//
// Components depend on the small [Logger] interface; [New] builds the zap
// backed implementation from configuration and [Discard] is used when no
// output is wanted.
package logging

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger logs a message with alternating key-value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ErrInvalidFormat is returned by [New] for unknown output formats.
var ErrInvalidFormat = errors.New("invalid log format")

// Config selects the minimum level and the encoding.
type Config struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string `json:"log_level"`
	// Format is "console" or "json". Empty means console.
	Format string `json:"log_format"`
}

// New creates a Logger writing to w.
func New(cfg Config, w io.Writer) (*Zap, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	enc, err := encoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)

	return NewZap(zap.New(core)), nil
}

func encoder(format string) (zapcore.Encoder, error) {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder

	switch strings.ToLower(format) {
	case "", FormatConsole:
		return zapcore.NewConsoleEncoder(ec), nil
	case FormatJSON:
		return zapcore.NewJSONEncoder(ec), nil
	default:
		return nil, fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidFormat, format, FormatConsole, FormatJSON)
	}
}

// Zap adapts a zap.Logger to [Logger].
type Zap struct {
	logger *zap.SugaredLogger
}

// NewZap wraps an existing zap.Logger.
func NewZap(l *zap.Logger) *Zap {
	return &Zap{logger: l.Sugar()}
}

func (z *Zap) Debug(msg string, kv ...any) { z.logger.Debugw(msg, kv...) }
func (z *Zap) Info(msg string, kv ...any)  { z.logger.Infow(msg, kv...) }
func (z *Zap) Warn(msg string, kv ...any)  { z.logger.Warnw(msg, kv...) }
func (z *Zap) Error(msg string, kv ...any) { z.logger.Errorw(msg, kv...) }

// With returns a child logger that adds kv to every entry.
func (z *Zap) With(kv ...any) *Zap {
	return &Zap{logger: z.logger.With(kv...)}
}

// Sync flushes buffered entries.
func (z *Zap) Sync() error {
	return z.logger.Sync()
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Debug(string, ...any) {}
func (Discard) Info(string, ...any)  {}
func (Discard) Warn(string, ...any)  {}
func (Discard) Error(string, ...any) {}

var (
	_ Logger = (*Zap)(nil)
	_ Logger = Discard{}
)
