package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type contextKey string

// Context keys recognised by WithContext
const (
	RequestIDKey contextKey = "request_id"
	TraceIDKey   contextKey = "trace_id"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// NewNop returns a logger that discards everything, for tests and CLI use
func NewNop() *Logger {
	l := New("panic")
	l.SetOutput(io.Discard)
	return l
}

// WithComponent creates a new logger entry with component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithContext creates a logger entry carrying request-scoped fields
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(l.Logger)
	if ctx == nil {
		return entry
	}

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		entry = entry.WithField("request_id", requestID)
	}
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}

	return entry
}

// Audit logs audit events with structured format
func (l *Logger) Audit(ctx context.Context, actor, action, resource string, success bool, details map[string]interface{}) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"audit":    true,
		"actor":    actor,
		"action":   action,
		"resource": resource,
		"success":  success,
		"details":  details,
	})

	if success {
		entry.Info("Audit event")
	} else {
		entry.Warn("Audit event failed")
	}
}

// Security logs security-related events
func (l *Logger) Security(ctx context.Context, event string, details map[string]interface{}) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"security": true,
		"event":    event,
		"details":  details,
	}).Warn("Security event")
}

// LedgerAppend logs a committed block. Only ids and hashes are logged, never record bodies.
func (l *Logger) LedgerAppend(ctx context.Context, index uint64, kind, recordID, hash string, durationMs int64) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"ledger":      true,
		"index":       index,
		"kind":        kind,
		"record_id":   recordID,
		"hash":        hash,
		"duration_ms": durationMs,
	}).Info("Block appended")
}

// IntegrityViolation raises an operator alert for a corrupted chain
func (l *Logger) IntegrityViolation(ctx context.Context, index uint64, reason string, violations int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"ledger":     true,
		"alert":      true,
		"index":      index,
		"reason":     reason,
		"violations": violations,
	}).Error("Ledger integrity violation detected")
}

// TokenEvent logs access token lifecycle events
func (l *Logger) TokenEvent(ctx context.Context, event, tokenID, subjectID string, success bool, details map[string]interface{}) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"access_token": true,
		"event":        event,
		"token_id":     tokenID,
		"subject_id":   subjectID,
		"success":      success,
		"details":      details,
	})

	if success {
		entry.Info("Access token event")
	} else {
		entry.Warn("Access token event rejected")
	}
}

// HTTPRequest logs HTTP request events
func (l *Logger) HTTPRequest(ctx context.Context, method, path, userAgent, clientIP string, statusCode int, duration int64) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"http_request": true,
		"method":       method,
		"path":         path,
		"user_agent":   userAgent,
		"client_ip":    clientIP,
		"status_code":  statusCode,
		"duration_ms":  duration,
	})

	if statusCode >= 400 {
		entry.Warn("HTTP request completed with error")
	} else {
		entry.Info("HTTP request completed")
	}
}

// DatabaseOperation logs database operation events
func (l *Logger) DatabaseOperation(ctx context.Context, operation, table string, duration int64, success bool, details map[string]interface{}) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"database":    true,
		"operation":   operation,
		"table":       table,
		"duration_ms": duration,
		"success":     success,
		"details":     details,
	})

	if success {
		entry.Debug("Database operation completed")
	} else {
		entry.Error("Database operation failed")
	}
}
