package command

import (
	"fmt"
	"log/slog"

	"github.com/pixil98/go-errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggingConfig struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Level      string `json:"level,omitempty"`
}

func (c *LoggingConfig) Validate() error {
	el := errors.NewErrorList()

	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		el.Add(fmt.Errorf("unknown log level %q", c.Level))
	}

	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		el.Add(fmt.Errorf("log rotation limits must not be negative"))
	}

	return el.Err()
}

// Apply redirects the default logger to a rolling file when one is
// configured. Without a file, logging stays on the process defaults.
func (c *LoggingConfig) Apply() {
	if c.File == "" {
		return
	}

	out := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.sizeOr(10),
		MaxBackups: c.backupsOr(3),
		MaxAge:     c.ageOr(7),
	}

	level := slog.LevelInfo
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
}

func (c *LoggingConfig) sizeOr(def int) int {
	if c.MaxSizeMB == 0 {
		return def
	}
	return c.MaxSizeMB
}

func (c *LoggingConfig) backupsOr(def int) int {
	if c.MaxBackups == 0 {
		return def
	}
	return c.MaxBackups
}

func (c *LoggingConfig) ageOr(def int) int {
	if c.MaxAgeDays == 0 {
		return def
	}
	return c.MaxAgeDays
}
