// Package logging implements orchestrator.Logger over zap, grounded on the
// zap usage in the webinar backend's main.go (zapcore-configured logger
// passed through the whole call graph) and the meeting-bridge use of
// *zap.Logger for device/session logging.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// ZapLogger adapts *zap.SugaredLogger to orchestrator.Logger's
// (msg string, args ...interface{}) key-value shape.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production JSON logger at the given level ("debug", "info",
// "warn", "error"; defaults to "info" on an unrecognized value).
func New(level string) *ZapLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Build only fails on a malformed config, which NewProductionConfig
		// never produces; fall back to a no-sampling logger rather than
		// propagate an error from a constructor nothing can recover from.
		logger = zap.NewExample()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

// NewDevelopment builds a human-readable console logger, for local runs
// outside a container.
func NewDevelopment() *ZapLogger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewExample()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }

// Sync flushes buffered log entries; call it with defer right after New.
// Errors are swallowed: syncing stdout/stderr routinely fails on some
// platforms (ENOTTY on a plain terminal) and is never worth surfacing.
func (l *ZapLogger) Sync() error {
	_ = l.sugar.Sync()
	return nil
}

var _ orchestrator.Logger = (*ZapLogger)(nil)
