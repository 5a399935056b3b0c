package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the process logger and the files it writes to.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string    // trace, debug, info, warn, error
	File      string    // log file path
	Console   bool      // enable console output
	Output    io.Writer // console destination, stderr when nil
	Pretty    bool      // human-readable console output
	Redaction bool      // mask subject identifiers and credentials
	Patterns  []string  // extra regular expressions to mask when Redaction is set
	Service   string    // stamped on every event when set
	MaxSize   int       // max size in MB before rotation, 0 disables rotation
	MaxAge    int       // max age of rotated files in days
	Compress  bool      // gzip rotated files
}

// New builds the logger described by cfg and installs it as the global
// zerolog logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		for _, p := range cfg.Patterns {
			if err := redactor.AddPattern(p); err != nil {
				return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
			}
		}
	}

	var writers []io.Writer

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		if cfg.Pretty {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
		writers = append(writers, out)
	}

	file, err := openFile(cfg)
	if err != nil {
		return nil, err
	}
	if file != nil {
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stderr
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if redactor != nil {
		writer = redactor.Wrap(writer)
	}

	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		file:     file,
		redactor: redactor,
	}, nil
}

// openFile opens the log file, rotating when MaxSize is set. It returns nil
// when no file is configured.
func openFile(cfg Config) (io.WriteCloser, error) {
	if cfg.File == "" {
		return nil, nil
	}
	if cfg.MaxSize > 0 {
		rw, err := NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, err
		}
		return rw, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debug starts a debug event.
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info starts an info event.
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn starts a warning event.
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error starts an error event.
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    false,
		Redaction: true,
		Service:   "portalcheck",
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
