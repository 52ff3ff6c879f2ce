package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/engine"
	"github.com/radio-control/commandd/internal/logging"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	cfg := config.Default().Audit
	cfg.File = filepath.Join(t.TempDir(), "nested", "audit.jsonl")

	l, err := NewLogger(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open audit file: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Invalid audit line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestNewLoggerRequiresPath(t *testing.T) {
	if _, err := NewLogger(config.AuditConfig{}, logging.Discard()); err == nil {
		t.Error("Expected error for empty audit path")
	}
}

func TestInstructionDoneWritesEntries(t *testing.T) {
	l := newTestLogger(t)

	l.InstructionDone(engine.Result{
		Name:         "echo",
		SubmissionID: "sub-1",
		Outcome:      engine.OutcomeOK,
		Duration:     1500 * time.Microsecond,
	})
	l.InstructionDone(engine.Result{
		Name:         "fail",
		SubmissionID: "sub-1",
		Outcome:      engine.OutcomeError,
		Err:          errors.New("boom"),
	})

	entries := readEntries(t, l.FilePath())
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Instruction != "echo" || first.SubmissionID != "sub-1" || first.Outcome != "ok" {
		t.Errorf("Unexpected first entry: %+v", first)
	}
	if first.DurationMs != 1.5 {
		t.Errorf("Expected durationMs 1.5, got %v", first.DurationMs)
	}
	if first.Error != "" {
		t.Errorf("Expected no error on success, got %q", first.Error)
	}
	if !first.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Unexpected timestamp %v", first.Timestamp)
	}

	if entries[1].Outcome != "error" || entries[1].Error != "boom" {
		t.Errorf("Unexpected second entry: %+v", entries[1])
	}
}

func TestWriteAfterCloseIsDropped(t *testing.T) {
	l := newTestLogger(t)
	l.Write(Entry{Instruction: "before"})

	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	l.Write(Entry{Instruction: "after"})
	if err := l.Close(); err != nil {
		t.Errorf("Second Close() should be a no-op, got %v", err)
	}

	entries := readEntries(t, l.FilePath())
	if len(entries) != 1 || entries[0].Instruction != "before" {
		t.Errorf("Expected only the entry written before close, got %+v", entries)
	}
}
