package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/natefinch/lumberjack.v2"
)

var rotator *lumberjack.Logger

// DefaultPath returns the log file used when none is configured.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mvimg.log"
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "mvimg.log")
	}
	return filepath.Join(home, ".local", "state", "mvimg", "mvimg.log")
}

func Setup(logFilePath string) {
	if logFilePath == "" {
		logFilePath = DefaultPath()
	}
	os.MkdirAll(filepath.Dir(logFilePath), 0o755)

	fmt.Printf("Log file: %s\n", logFilePath)

	rotator = &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7,    // days
		Compress:   true, // gzip
	}

	mw := io.MultiWriter(os.Stdout, rotator)

	log.SetOutput(mw)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// MuteStdout keeps logging to the file only, for when the terminal is owned
// by a progress bar or the TUI.
func MuteStdout() {
	if rotator != nil {
		log.SetOutput(rotator)
	}
}

// UnmuteStdout restores the stdout tee after MuteStdout.
func UnmuteStdout() {
	if rotator != nil {
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}
}

// Close flushes and closes the rotating file.
func Close() error {
	if rotator == nil {
		return nil
	}
	return rotator.Close()
}
