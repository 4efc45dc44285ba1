package sync

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"
)

// LogFileName returns the per-day log file name for name, e.g. vsync-20240131.log.
func LogFileName(name string, day time.Time) string {
	return fmt.Sprintf("%s-%s.log", name, day.Format("20060102"))
}

// NewLogger returns a logger writing to out and appending to the day's log
// file under dir. The returned close function closes the log file.
func NewLogger(out io.Writer, fs billy.Filesystem, dir string, name string, now time.Time) (*logrus.Logger, func() error, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	f, err := fs.OpenFile(fs.Join(dir, LogFileName(name, now)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	log := logrus.New()
	log.SetOutput(io.MultiWriter(out, f))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	log.SetLevel(logrus.InfoLevel)
	return log, f.Close, nil
}

// SetLogLevel sets level by name (debug, info, warn, error).
// Unknown names fall back to info.
func SetLogLevel(log *logrus.Logger, level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}
