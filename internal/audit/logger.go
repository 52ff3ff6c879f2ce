//
//
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/engine"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp    time.Time `json:"ts"`
	SubmissionID string    `json:"submissionId"`
	Instruction  string    `json:"instruction"`
	Outcome      string    `json:"outcome"`
	DurationMs   float64   `json:"durationMs"`
	Error        string    `json:"error,omitempty"`
}

// Logger appends audit entries to a rotating JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
	logger   *slog.Logger
	now      func() time.Time
}

var _ engine.Observer = (*Logger)(nil)

// NewLogger opens the audit file described by cfg, creating its directory.
func NewLogger(cfg config.AuditConfig, logger *slog.Logger) (*Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("audit file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	return &Logger{
		filePath: cfg.File,
		out:      out,
		logger:   logger.With("component", "audit"),
		now:      time.Now,
	}, nil
}

// InstructionDone records one executed instruction.
func (l *Logger) InstructionDone(r engine.Result) {
	entry := Entry{
		Timestamp:    l.now().UTC(),
		SubmissionID: r.SubmissionID,
		Instruction:  r.Name,
		Outcome:      string(r.Outcome),
		DurationMs:   float64(r.Duration.Microseconds()) / 1000,
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}
	l.Write(entry)
}

// Write appends entry as one JSON line. Failures are logged, never returned,
// so auditing cannot stall the engine.
func (l *Logger) Write(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("failed to marshal audit entry", "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		l.logger.Error("failed to write audit entry", "error", err)
	}
}

// FilePath returns the path of the active audit file.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close closes the audit file. Later writes are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}
