// Package interfaces defines core domain contracts.
//
//nolint:revive // Package name 'interfaces' is intentional for domain layer
package interfaces

// Logger is the structured logger every pipeline stage writes to
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key/value pair attached to a log entry
type Field struct {
	Key   string
	Value interface{}
}

// F creates a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates the conventional "error" field
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// NoOpLogger discards everything. Tests and nil loggers use it.
type NoOpLogger struct{}

func (*NoOpLogger) Debug(string, ...Field) {}
func (*NoOpLogger) Info(string, ...Field)  {}
func (*NoOpLogger) Warn(string, ...Field)  {}
func (*NoOpLogger) Error(string, ...Field) {}

// OrNoOp returns l, or a NoOpLogger when l is nil
func OrNoOp(l Logger) Logger {
	if l == nil {
		return &NoOpLogger{}
	}
	return l
}
