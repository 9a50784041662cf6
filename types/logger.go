package types

// Logger defines the structured logging interface used throughout causeway.
//
// Each method takes a message followed by alternating key/value pairs.
// The interface is compatible with zap.SugaredLogger's "w" methods through
// a thin wrapper, and with log/slog via contrib/logging/slogadapter.
//
// Implementations MUST be safe for concurrent use.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at info level.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at error level.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message at fatal level.
	//
	// Implementations may terminate the process.
	Fatal(msg string, keysAndValues ...any)
}
