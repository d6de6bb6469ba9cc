// Package logging builds the zerolog logger used across scenegaze,
// following the teacher repo's console+rotating-file composition.
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config controls level, console/file output, and file rotation.
type Config struct {
	Level      zerolog.Level
	Console    bool
	File       bool
	FilePath   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
	TimeFormat string
}

// DefaultConfig returns console-only, info-level logging.
func DefaultConfig() Config {
	return Config{
		Level:      zerolog.InfoLevel,
		Console:    true,
		File:       false,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
		TimeFormat: time.RFC3339,
	}
}

// PersistentConfig returns a config that writes rotated, gzip-compressed
// logs under dataDir/logs in addition to the console.
func PersistentConfig(dataDir string) Config {
	cfg := DefaultConfig()
	cfg.File = true
	cfg.FilePath = filepath.Join(dataDir, "logs", "scenegaze.log")
	return cfg
}

// New builds a zerolog.Logger per cfg and returns a close function that
// flushes and closes any open file writer.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	var writers []io.Writer
	closers := []func() error{}

	if cfg.Console {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: cfg.TimeFormat, NoColor: !isatty.IsTerminal(os.Stderr.Fd())}
		writers = append(writers, out)
	}

	if cfg.File {
		rw, err := NewRotatingWriter(cfg)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("logging: open rotating writer: %w", err)
		}
		writers = append(writers, rw)
		closers = append(closers, rw.Close)
	}

	var out io.Writer = io.Discard
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()

	closeFn := func() error {
		var firstErr error
		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	return logger, closeFn, nil
}

// RotatingWriter rotates the underlying log file by size and optionally
// gzips the rotated copy in the background. It is the teacher's
// PersistentLogger, adapted.
type RotatingWriter struct {
	mu          sync.Mutex
	cfg         Config
	currentFile *os.File
	currentSize int64
	logDir      string
}

// NewRotatingWriter creates the log directory and opens (or appends to)
// the configured log file.
func NewRotatingWriter(cfg Config) (*RotatingWriter, error) {
	logDir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rw := &RotatingWriter{cfg: cfg, logDir: logDir}
	if err := rw.openFile(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) openFile() error {
	f, err := os.OpenFile(rw.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.currentFile = f
	rw.currentSize = info.Size()
	return nil
}

// Write implements io.Writer, rotating first if the write would exceed
// MaxSizeMB.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.cfg.MaxSizeMB > 0 && rw.currentSize+int64(len(p)) > int64(rw.cfg.MaxSizeMB)*1024*1024 {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rw.currentFile.Write(p)
	rw.currentSize += int64(n)
	return n, err
}

func (rw *RotatingWriter) rotate() error {
	if rw.currentFile != nil {
		rw.currentFile.Close()
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	rotatedPath := filepath.Join(rw.logDir, fmt.Sprintf("scenegaze_%s.log", timestamp))
	if err := os.Rename(rw.cfg.FilePath, rotatedPath); err != nil {
		return rw.openFile()
	}
	if rw.cfg.Compress {
		go compressFile(rotatedPath)
	}
	return rw.openFile()
}

func compressFile(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}
	gz.Close()
	os.Remove(path)
}

// Close flushes and closes the current log file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.currentFile == nil {
		return nil
	}
	return rw.currentFile.Close()
}
