package logger

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mvimg.log")
	Setup(path)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	})

	log.Println("visible")
	MuteStdout()
	log.Println("file only")
	UnmuteStdout()
	if err := Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"visible", "file only", "logger_test.go"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q:\n%s", want, data)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	if got := DefaultPath(); !strings.HasPrefix(got, "/home/test/") || filepath.Base(got) != "mvimg.log" {
		t.Errorf("DefaultPath() = %q", got)
	}
}
