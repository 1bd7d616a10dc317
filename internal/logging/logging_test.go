package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bbs.log")
	logger, err := NewFile(path, true)
	if err != nil {
		t.Fatalf("new file logger: %v", err)
	}
	logger.Debug("typewriter done")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"typewriter done"`) {
		t.Fatalf("debug line missing: %s", raw)
	}
}

func TestNewHonoursLevel(t *testing.T) {
	logger, err := New(false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatal("debug should be disabled by default")
	}
}
