package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileWriter_Write(t *testing.T) {
	tmpDir := t.TempDir()

	fw, err := NewFileWriter(tmpDir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	defer fw.Close()

	if _, err := fw.Write([]byte(`{"msg":"test"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	content, err := os.ReadFile(filepath.Join(tmpDir, today+".jsonl"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(content), `{"msg":"test"}`) {
		t.Errorf("expected content to contain test message, got: %s", content)
	}
}

func TestFileWriter_RotatesAtMidnight(t *testing.T) {
	tmpDir := t.TempDir()

	fw, err := NewFileWriter(tmpDir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	defer fw.Close()

	tomorrow := time.Now().AddDate(0, 0, 1)
	fw.now = func() time.Time { return tomorrow }

	if _, err := fw.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	name := tomorrow.Format("2006-01-02") + ".jsonl"
	if _, err := os.Stat(filepath.Join(tmpDir, name)); err != nil {
		t.Errorf("expected rotated file %s: %v", name, err)
	}

	target, err := os.Readlink(filepath.Join(tmpDir, "latest"))
	if err != nil {
		t.Fatalf("reading symlink: %v", err)
	}
	if target != name {
		t.Errorf("expected symlink to point to %s, got %s", name, target)
	}
}
