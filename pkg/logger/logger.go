package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// Log is the global logger instance
	Log  *logrus.Logger
	once sync.Once
)

// Init initializes the global logger with the specified configuration. The
// global is only assigned once the logger is fully configured, so a failed
// Init never leaves a half-configured instance behind.
func Init(level, logFile string) error {
	var err error
	once.Do(func() {
		l := logrus.New()

		// Set log level
		var logLevel logrus.Level
		logLevel, err = logrus.ParseLevel(level)
		if err != nil {
			return
		}
		l.SetLevel(logLevel)

		// Set output
		if logFile != "" {
			var f *os.File
			f, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return
			}
			l.SetOutput(f)
		} else {
			l.SetOutput(os.Stderr) // stdout is the payload stream, keep logs off it
		}

		// Set formatter
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})

		Log = l
	})
	return err
}

// Get returns the global logger instance, initializing with defaults if needed
func Get() *logrus.Logger {
	if Log == nil {
		Init("info", "")
	}
	if Log == nil {
		// A failed explicit Init consumed the once; fall back to defaults
		// so callers always get a usable logger.
		Log = logrus.New()
		Log.SetOutput(os.Stderr)
	}
	return Log
}
