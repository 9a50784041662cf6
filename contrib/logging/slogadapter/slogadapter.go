// Package slogadapter adapts a log/slog logger to the causeway Logger interface.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	router, _ := causeway.NewRouter(store,
//	    causeway.WithLogger(slogadapter.New(logger)),
//	)
package slogadapter

import (
	"context"
	"log/slog"
	"os"

	"github.com/arloliu/causeway/types"
)

// Adapter implements types.Logger on top of *slog.Logger.
type Adapter struct {
	logger *slog.Logger
	exit   func(code int)
}

var _ types.Logger = (*Adapter)(nil)

// New wraps logger. A nil logger uses slog.Default().
//
// Parameters:
//   - logger: The slog logger to write to
//
// Returns:
//   - *Adapter: A causeway logger
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{logger: logger, exit: os.Exit}
}

// With returns an adapter whose records carry the given attributes.
func (a *Adapter) With(keysAndValues ...any) *Adapter {
	return &Adapter{logger: a.logger.With(keysAndValues...), exit: a.exit}
}

// Debug logs a message at debug level.
func (a *Adapter) Debug(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

// Info logs a message at info level.
func (a *Adapter) Info(msg string, keysAndValues ...any) {
	a.logger.Info(msg, keysAndValues...)
}

// Warn logs a message at warn level.
func (a *Adapter) Warn(msg string, keysAndValues ...any) {
	a.logger.Warn(msg, keysAndValues...)
}

// Error logs a message at error level.
func (a *Adapter) Error(msg string, keysAndValues ...any) {
	a.logger.Error(msg, keysAndValues...)
}

// Fatal logs a message at error level with fatal=true and exits the process.
func (a *Adapter) Fatal(msg string, keysAndValues ...any) {
	a.logger.Log(context.Background(), slog.LevelError, msg, append(keysAndValues, "fatal", true)...)
	a.exit(1)
}
