package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SlogAPI implements API using the log/slog package.
type SlogAPI struct {
	logger *slog.Logger
}

// NewSlogAPI creates a SlogAPI writing to the given logger, a nil logger
// means slog.Default() at the time of each report.
func NewSlogAPI(logger *slog.Logger) SlogAPI {
	return SlogAPI{logger: logger}
}

func (s SlogAPI) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.log().Error("broken component", remainingPairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.log().Warn("warning", remainingPairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	s.log().Debug(message, remainingPairs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.log().Info("count", "id", id, "n", count)
}

// InitSlog sets the default slog logger to a text handler on stderr.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})))
}

// FileFormat controls the date prefix of a log file name.
type FileFormat string

const (
	FileFormatDaily   FileFormat = "DAILY"
	FileFormatMonthly FileFormat = "MONTHLY"
	FileFormatNone    FileFormat = "NONE"
)

type FileLoggerOptions struct {
	// Name is attached to every record as the "logger" attribute.
	Name string
	// File is the base name of the log file, it defaults to "log.log".
	File string
	// Format defaults to FileFormatDaily, any unknown value means no prefix.
	Format FileFormat
	Level  slog.Level
	// RootDir is the directory the log file is placed in, empty means the cwd.
	RootDir string
	// Now defaults to time.Now.
	Now func() time.Time
}

// LogFilePath returns the path a file logger with the given options writes to.
func LogFilePath(opts FileLoggerOptions) string {
	name := opts.File
	if name == "" {
		name = "log.log"
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	var prefix string
	switch FileFormat(strings.ToUpper(string(opts.Format))) {
	case FileFormatDaily, "":
		prefix = now().Format("2006_01_02_")
	case FileFormatMonthly:
		prefix = now().Format("2006_01_")
	}

	name = prefix + name
	if opts.RootDir != "" {
		name = filepath.Join(opts.RootDir, name)
	}
	return name
}

// NewFileLogger opens (in append mode) a log file named according to opts and
// returns a logger writing to it. Closing the returned io.Closer closes the file.
func NewFileLogger(opts FileLoggerOptions) (*slog.Logger, io.Closer, error) {
	path := LogFilePath(opts)
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, 0777)
		if err != nil {
			return nil, nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: opts.Level}))
	if opts.Name != "" {
		logger = logger.With("logger", opts.Name)
	}
	return logger, f, nil
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Tee returns a logger writing every record to all of `loggers`, each one
// filtering by its own level.
func Tee(loggers ...*slog.Logger) *slog.Logger {
	handlers := make(teeHandler, len(loggers))
	for i, l := range loggers {
		handlers[i] = l.Handler()
	}
	return slog.New(handlers)
}
