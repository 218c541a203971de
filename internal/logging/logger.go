// Package logging provides the structured JSON logger used across the
// universe host, including size-based rotation and trace propagation.
package logging

import (
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"multiverse/sim/internal/config"
)

// TraceIDHeader is the HTTP header that carries trace identifiers.
const TraceIDHeader = "X-Trace-ID"

// TraceIDField is the structured field name for trace identifiers.
const TraceIDField = "trace_id"

// Level orders log verbosity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

func parseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
}

// Field is one structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// String returns a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Strings returns a string slice field.
func Strings(key string, values []string) Field { return Field{Key: key, Value: values} }

// Int returns an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 returns an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool returns a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Error returns an error field.
func Error(err error) Field { return Field{Key: "error", Value: err} }

// flushWriter is a writer that can push buffered output to durable storage.
type flushWriter interface {
	io.Writer
	Sync() error
}

// Logger emits JSON lines with leveled filtering and inherited fields.
type Logger struct {
	mu     sync.Mutex
	level  Level
	writer flushWriter
	fields map[string]any
}

// New opens the rotating log file described by cfg, mirrors output to
// stdout, and installs the result as the global logger.
func New(cfg config.LoggingConfig) (*Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("logging path must be specified")
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	rotated, err := newRotatingFile(cfg)
	if err != nil {
		return nil, err
	}
	logger := &Logger{
		level:  level,
		writer: &fanoutWriter{sinks: []flushWriter{rotated, stdoutWriter{}}},
		fields: map[string]any{"service": "universe"},
	}
	ReplaceGlobals(logger)
	return logger, nil
}

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *Logger {
	return &Logger{level: DebugLevel, writer: discardWriter{}, fields: map[string]any{}}
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewTestLogger()

	loggerContextKey = contextKey("universe-logger")
	traceContextKey  = contextKey("universe-trace-id")
)

type contextKey string

// ReplaceGlobals swaps the fallback logger used when no context logger is present.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the current global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With derives a logger carrying the additional fields on every entry.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, field := range fields {
		merged[field.Key] = field.Value
	}
	return &Logger{level: l.level, writer: l.writer, fields: merged}
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	if l == nil || l.writer == nil {
		return nil
	}
	return l.writer.Sync()
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields ...Field) { l.emit(DebugLevel, message, fields) }

// Info logs at info level.
func (l *Logger) Info(message string, fields ...Field) { l.emit(InfoLevel, message, fields) }

// Warn logs at warn level.
func (l *Logger) Warn(message string, fields ...Field) { l.emit(WarnLevel, message, fields) }

// Error logs at error level.
func (l *Logger) Error(message string, fields ...Field) { l.emit(ErrorLevel, message, fields) }

// Fatal logs the message, flushes, and exits the process.
func (l *Logger) Fatal(message string, fields ...Field) { l.emit(FatalLevel, message, fields) }

func (l *Logger) emit(level Level, message string, fields []Field) {
	if l == nil {
		L().emit(level, message, fields)
		return
	}
	if level < l.level {
		return
	}
	entry := make(map[string]any, len(l.fields)+len(fields)+3)
	for k, v := range l.fields {
		entry[k] = v
	}
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["message"] = message
	for _, field := range fields {
		entry[field.Key] = field.Value
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.writer.Write(append(line, '\n'))
	if level == FatalLevel {
		_ = l.writer.Sync()
		os.Exit(1)
	}
}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext returns the context logger or the global fallback.
func LoggerFromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok && logger != nil {
			return logger
		}
	}
	return L()
}

// ContextWithTraceID stores a trace identifier in the context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceContextKey, traceID)
}

// TraceIDFromContext extracts the trace identifier, if any.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceContextKey).(string); ok {
		return traceID
	}
	return ""
}

// GenerateTraceID creates a random 16-byte identifier rendered as hex.
func GenerateTraceID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}
	return fmt.Sprintf("%x", time.Now().UnixNano())
}

// WithTrace derives a trace-scoped logger and stores both in the context.
func WithTrace(ctx context.Context, base *Logger, traceID string) (context.Context, *Logger, string) {
	tid := strings.TrimSpace(traceID)
	if tid == "" {
		tid = GenerateTraceID()
	}
	if base == nil {
		base = L()
	}
	derived := base.With(Field{Key: TraceIDField, Value: tid})
	ctx = ContextWithTraceID(ctx, tid)
	ctx = ContextWithLogger(ctx, derived)
	return ctx, derived, tid
}

// HTTPTraceMiddleware gives every request a trace identifier, propagated
// through the context and echoed in the response headers.
func HTTPTraceMiddleware(base *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			incoming := strings.TrimSpace(r.Header.Get(TraceIDHeader))
			ctx, logger, traceID := WithTrace(r.Context(), base, incoming)
			r = r.WithContext(ctx)
			w.Header().Set(TraceIDHeader, traceID)
			logger.Debug("request received", String("method", r.Method), String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}

// fanoutWriter duplicates writes across every sink.
type fanoutWriter struct {
	sinks []flushWriter
}

func (f *fanoutWriter) Write(p []byte) (int, error) {
	for _, sink := range f.sinks {
		if _, err := sink.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (f *fanoutWriter) Sync() error {
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type stdoutWriter struct{}

func (stdoutWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdoutWriter) Sync() error { return nil }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (discardWriter) Sync() error { return nil }

// rotatingFile appends to one log file and rotates it once it outgrows the
// configured size, keeping a bounded set of timestamped backups.
type rotatingFile struct {
	mu       sync.Mutex
	path     string
	limit    int64
	backups  int
	maxAge   time.Duration
	compress bool
	file     *os.File
	written  int64
}

func newRotatingFile(cfg config.LoggingConfig) (*rotatingFile, error) {
	if cfg.MaxSizeMB <= 0 {
		return nil, errors.New("UNIVERSE_LOG_MAX_SIZE_MB must be positive")
	}
	if cfg.MaxBackups < 0 {
		return nil, errors.New("UNIVERSE_LOG_MAX_BACKUPS must be non-negative")
	}
	if cfg.MaxAgeDays < 0 {
		return nil, errors.New("UNIVERSE_LOG_MAX_AGE_DAYS must be non-negative")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &rotatingFile{
		path:     cfg.Path,
		limit:    int64(cfg.MaxSizeMB) * 1024 * 1024,
		backups:  cfg.MaxBackups,
		maxAge:   time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress: cfg.Compress,
		file:     file,
		written:  info.Size(),
	}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.written+int64(len(p)) > r.limit {
		if err := r.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *rotatingFile) rotateLocked() error {
	if r.file == nil {
		return errors.New("log file not initialized")
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	//1.- Move the full file aside under a timestamped name before reopening.
	archived := fmt.Sprintf("%s.%s", r.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(r.path, archived); err != nil {
		return err
	}
	if r.compress {
		if err := gzipFile(archived, archived+".gz"); err == nil {
			_ = os.Remove(archived)
		}
	}
	if err := r.pruneLocked(); err != nil {
		return err
	}
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = file
	r.written = 0
	return nil
}

func (r *rotatingFile) pruneLocked() error {
	dir := filepath.Dir(r.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type backup struct {
		path string
		mod  time.Time
	}
	prefix := filepath.Base(r.path) + "."
	var backups []backup
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: filepath.Join(dir, entry.Name()), mod: info.ModTime()})
	}
	//1.- Newest first, so everything past the retained count is removable.
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })
	if r.backups > 0 && len(backups) > r.backups {
		for _, old := range backups[r.backups:] {
			_ = os.Remove(old.path)
		}
		backups = backups[:r.backups]
	}
	if r.maxAge > 0 {
		cutoff := time.Now().Add(-r.maxAge)
		for _, old := range backups {
			if old.mod.Before(cutoff) {
				_ = os.Remove(old.path)
			}
		}
	}
	return nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
