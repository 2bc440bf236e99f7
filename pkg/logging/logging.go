// Package logging builds the process-wide zap logger. Log output goes to
// stderr and to a size-rotated file under the workspace.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rotatingWriter appends to a file and rotates it once it passes MaxSize
// bytes, keeping MaxBackups numbered backups.
type rotatingWriter struct {
	filename   string
	maxSize    int64
	maxBackups int
	file       *os.File
	mu         sync.Mutex
}

func newRotatingWriter(filename string, maxSize int64, maxBackups int) *rotatingWriter {
	return &rotatingWriter{filename: filename, maxSize: maxSize, maxBackups: maxBackups}
}

func (w *rotatingWriter) open() error {
	file, err := os.OpenFile(w.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = file
	return nil
}

func (w *rotatingWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	for i := w.maxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", w.filename, i), fmt.Sprintf("%s.%d", w.filename, i+1))
	}
	if w.maxBackups > 0 {
		os.Rename(w.filename, w.filename+".1")
	}
	return w.open()
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			return os.Stderr.Write(p)
		}
	}
	if info, err := w.file.Stat(); err == nil && info.Size() > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// Sync is a no-op so the writer satisfies zapcore.WriteSyncer.
func (w *rotatingWriter) Sync() error { return nil }

// New builds a sugared logger writing to stderr and to logDir/calico.log
// (10MB limit, 5 backups). An empty logDir logs to stderr only.
func New(logDir string, debug bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err == nil {
			sink := newRotatingWriter(filepath.Join(logDir, "calico.log"), 10*1024*1024, 5)
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level))
		}
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
