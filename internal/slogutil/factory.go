package slogutil

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"mapsync/internal/config"
)

// LoggerFactory builds component loggers from the logging configuration.
// Every logger writes to the console writer; when a log file is configured
// it also receives every record, rotated according to max_size.
// Level precedence is CLI override, then config, then info.
type LoggerFactory struct {
	cfg      config.LoggingConfig
	console  io.Writer
	cliLevel *slog.Level

	mu   sync.Mutex
	file io.WriteCloser
}

// NewLoggerFactory creates a factory writing console output to console
// (os.Stderr when nil).
func NewLoggerFactory(cfg config.LoggingConfig, console io.Writer) *LoggerFactory {
	if console == nil {
		console = os.Stderr
	}
	return &LoggerFactory{cfg: cfg, console: console}
}

// SetLevel overrides the configured level, e.g. from -v or --quiet.
func (f *LoggerFactory) SetLevel(level slog.Level) {
	f.cliLevel = &level
}

// Level returns the effective level.
func (f *LoggerFactory) Level() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.cfg.Level != "" {
		return LevelFromString(f.cfg.Level)
	}
	return slog.LevelInfo
}

// Logger returns a logger tagged with component.
func (f *LoggerFactory) Logger(component string) (*slog.Logger, error) {
	level := f.Level()
	handler := NewHandler(f.console, f.cfg.Format, level)

	if f.cfg.File != "" {
		w, err := f.fileWriter()
		if err != nil {
			return nil, err
		}
		// The file keeps debug detail regardless of console verbosity,
		// unless the config asks for less.
		fileLevel := slog.LevelDebug
		if f.cfg.Level != "" {
			fileLevel = LevelFromString(f.cfg.Level)
		}
		handler = NewTeeHandler(handler, NewHandler(w, f.cfg.Format, fileLevel))
	}

	return slog.New(handler).With("component", component), nil
}

// fileWriter opens the shared log file once.
func (f *LoggerFactory) fileWriter() (io.Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file != nil {
		return f.file, nil
	}
	rf, err := OpenRotatingFile(f.cfg.File, ParseSize(f.cfg.MaxSize), f.cfg.MaxBackups)
	if err != nil {
		return nil, err
	}
	f.file = rf
	return rf, nil
}

// Close closes the log file, if one was opened.
func (f *LoggerFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
