package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "pulsewatch.log")
	log, err := New(Config{Level: "debug", File: p, Quiet: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("logging: test line")
	_ = log.Sync()

	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"logging: test line"`) {
		t.Errorf("log file: missing message, got %s", data)
	}
	if !strings.Contains(string(data), `"ts":`) {
		t.Errorf("log file: missing ts key, got %s", data)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("New: expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil): got nil logger")
	}
}
