package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLoggerFiltersByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.log")
	l := New(Config{Logfile: path, MaxSize: 1, MaxAge: 1, Level: LogInfo})

	l.Debugf("hidden %d", 1)
	l.Infof("rendered tile %d", 7)
	l.Errorf("decode failed")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug line should be filtered: %s", text)
	}
	if !strings.Contains(text, "INFO: rendered tile 7") || !strings.Contains(text, "ERROR: decode failed") {
		t.Fatalf("missing lines: %s", text)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != LogDebug || ParseLevel("error") != LogError || ParseLevel("") != LogInfo {
		t.Fatalf("unexpected level parsing")
	}
}

func TestSetLogLevel(t *testing.T) {
	l := New(Config{Level: LogError})
	l.SetLogLevel(LogDebug)
	if l.GetLogLevel() != LogDebug {
		t.Fatalf("level not updated")
	}
}
