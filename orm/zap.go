package orm

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger is a Logger that writes each statement to a zap.Logger at
// debug level.
type ZapLogger struct {
	Logger *zap.Logger
	// Parameterized suppresses bound arguments in the log output.
	Parameterized bool
}

// NewZapLogger returns a ZapLogger writing to l. A nil l logs nothing.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{Logger: l}
}

func (z *ZapLogger) Log(_ context.Context, query string, args ...any) {
	fields := []zap.Field{zap.String("sql", query)}
	if !z.Parameterized {
		fields = append(fields, zap.Any("args", args))
	}
	z.Logger.Debug("SQL executed", fields...)
}

var _ Logger = (*ZapLogger)(nil)
