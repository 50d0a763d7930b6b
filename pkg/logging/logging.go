package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var defaultLogger *slog.Logger

// InitForCLI initializes the logging system: a structured text handler
// writing to output, filtered at filterLevel, also wired into
// controller-runtime so the k8s configurator's client logs through the
// same handler instead of printing its own "logger not initialized"
// warnings.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: filterLevel.SlogLevel()})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
	initControllerRuntimeLogger(handler)
}

// initControllerRuntimeLogger bridges the configured slog handler into
// controller-runtime's logr interface. Must run before any controller-runtime
// client operation, or it prints its own "log.SetLogger(...) was never
// called" warnings.
func initControllerRuntimeLogger(handler slog.Handler) {
	if handler == nil {
		return
	}
	ctrl.SetLogger(logr.FromSlogHandler(handler))
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	var attrs []slog.Attr
	attrs = append(attrs, slog.String("subsystem", subsystem))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// AuditEvent is a structured record of a job-lifecycle event worth
// surfacing outside the task log: a job starting or aborting, an instance
// being deleted, a protected instance refusing an undeploy. Collected by
// external log aggregation the same way ChangeRecords are collected by the
// persisted document, but for events that never produce a ChangeRecord of
// their own (a job that aborts before any task ran has nothing to write to
// status.topology.instances).
type AuditEvent struct {
	Action  string // e.g. "job_started", "job_aborted", "instance_deleted"
	Outcome string // "success" or "failure"
	// RunID correlates every event from one process invocation, independent
	// of JobID: JobID/ChangeID are operator-supplied ordinals chosen for
	// sortability (task.ChangeID), not uniqueness, so two concurrent runs
	// against different documents can share a job ordinal.
	RunID   string
	JobID   string
	Target  string // instance or resource name the event concerns
	Details string
	Error   string
}

// Audit logs a structured audit event at INFO level with a [AUDIT] prefix
// so log aggregation can filter it out of the regular task-progress stream.
func Audit(event AuditEvent) {
	parts := make([]string, 0, 7)
	parts = append(parts, "action="+event.Action)
	parts = append(parts, "outcome="+event.Outcome)
	if event.RunID != "" {
		parts = append(parts, "run="+event.RunID)
	}
	if event.JobID != "" {
		parts = append(parts, "job="+event.JobID)
	}
	if event.Target != "" {
		parts = append(parts, "target="+event.Target)
	}
	if event.Details != "" {
		parts = append(parts, "details="+event.Details)
	}
	if event.Error != "" {
		parts = append(parts, "error="+event.Error)
	}

	if defaultLogger == nil {
		fmt.Fprintf(os.Stderr, "[AUDIT] %s\n", strings.Join(parts, " "))
		return
	}
	logInternal(LevelInfo, "AUDIT", nil, "[AUDIT] %s", strings.Join(parts, " "))
}
