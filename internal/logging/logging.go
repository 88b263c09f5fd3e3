package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// DevMode indicates if development logging is enabled
	DevMode = os.Getenv("DEV_MODE") == "1"
	// Logger is the shared logger instance
	Logger *log.Logger
)

func init() {
	Logger = log.New(os.Stderr, "", log.LstdFlags)
}

// Setup routes log output to a size-rotated file. An empty path keeps the
// default stderr logger. In quiet mode stderr is skipped so tool output
// stays clean.
func Setup(path string, quiet bool) {
	if path == "" {
		if quiet {
			Logger = log.New(io.Discard, "", log.LstdFlags)
		}
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
	if quiet {
		Logger = log.New(rotated, "", log.LstdFlags)
		return
	}
	Logger = log.New(io.MultiWriter(os.Stderr, rotated), "", log.LstdFlags)
}

// DevLog logs only when DEV_MODE=1
func DevLog(format string, args ...interface{}) {
	if DevMode {
		Logger.Printf("[DEV] "+format, args...)
	}
}

// UserLog logs important user-facing information (always visible)
func UserLog(format string, args ...interface{}) {
	Logger.Printf("[USER] "+format, args...)
}

// ErrorLog logs errors (always visible)
func ErrorLog(format string, args ...interface{}) {
	Logger.Printf("[ERROR] "+format, args...)
}
