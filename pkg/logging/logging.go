package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/renlou/orbit/pkg/config"
)

// Logger wraps the standard log.Logger.
type Logger struct {
	*log.Logger
	roller *lumberjack.Logger
}

// New returns a logger writing to stdout.
func New(prefix string) *Logger {
	return &Logger{Logger: log.New(os.Stdout, prefix+" ", log.LstdFlags|log.Lshortfile)}
}

// Configure applies logging settings from config. When a file path is set the
// logger writes to both stdout and a size-rotated file.
func (l *Logger) Configure(cfg config.LoggingConfig) error {
	if l == nil || l.Logger == nil {
		return nil
	}
	if cfg.Level != "" {
		l.SetPrefix(strings.ToUpper(cfg.Level) + " " + l.Prefix())
	}
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o700); err != nil {
			return err
		}
		l.roller = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.FileMaxSize,
			MaxBackups: cfg.FileBackups,
		}
		l.SetOutput(io.MultiWriter(os.Stdout, l.roller))
	}
	return nil
}

// Close flushes the rotated file, if any.
func (l *Logger) Close() error {
	if l == nil || l.roller == nil {
		return nil
	}
	return l.roller.Close()
}
