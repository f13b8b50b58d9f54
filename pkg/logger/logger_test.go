package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stream-sync/recsync/config"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recsync.log")
	log := New(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
	log.Debug("sweep finished")
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "sweep finished") {
		t.Fatalf("log file missing entry: %s", raw)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	log := New(config.LogConfig{Level: "loud"})
	if log.Core().Enabled(-1) {
		t.Fatalf("debug should be disabled for unknown level")
	}
}
