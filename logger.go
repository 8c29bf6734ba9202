package macrolog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// OperationLogger is the interface for food log session logging.
type OperationLogger interface {
	LogOperation(op OperationLog) error
}

// OperationLog represents a single orchestrator operation and its outcome.
type OperationLog struct {
	Operation string        `json:"operation"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration_ns"`
	Attempts  int           `json:"attempts,omitempty"`
	Refreshed bool          `json:"refreshed,omitempty"`
	Rows      int           `json:"rows,omitempty"`
	Detail    any           `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// FileOperationLogger logs to a file, accumulating operations and flushing at the end
type FileOperationLogger struct {
	operations []OperationLog
	writer     io.Writer
}

// NewFileOperationLogger creates a new file-based operation logger
func NewFileOperationLogger(writer io.Writer) *FileOperationLogger {
	return &FileOperationLogger{
		operations: make([]OperationLog, 0),
		writer:     writer,
	}
}

// LogOperation buffers the operation (does not flush immediately)
func (l *FileOperationLogger) LogOperation(op OperationLog) error {
	l.operations = append(l.operations, op)
	return nil
}

// Flush writes all buffered operations to the writer
func (l *FileOperationLogger) Flush() error {
	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"food_log_session": map[string]any{
			"timestamp":  time.Now(),
			"operations": l.operations,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal operation log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write operation log: %w", err)
	}

	l.operations = l.operations[:0]
	return nil
}

// NoOpOperationLogger discards all log entries
type NoOpOperationLogger struct{}

func NewNoOpOperationLogger() *NoOpOperationLogger {
	return &NoOpOperationLogger{}
}

func (nop *NoOpOperationLogger) LogOperation(op OperationLog) error {
	return nil
}

// StdoutOperationLogger writes each operation as a JSON line (for Lambda/CloudWatch)
type StdoutOperationLogger struct {
	out io.Writer
}

func NewStdoutOperationLogger() *StdoutOperationLogger {
	return &StdoutOperationLogger{out: os.Stdout}
}

func (l *StdoutOperationLogger) LogOperation(op OperationLog) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	fmt.Fprintln(l.out, string(data))
	return nil
}
