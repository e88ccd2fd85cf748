package tangguh

import (
	"github.com/rs/zerolog"
)

// Logger accepts structured events from the request lifecycle. The client
// never blocks on logging and treats logging failures as ignorable.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NopLogger discards all events. It is the default sink.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps the given zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

func (z *ZerologLogger) Debug(msg string, keysAndValues ...any) {
	z.emit(z.logger.Debug(), msg, keysAndValues)
}

func (z *ZerologLogger) Info(msg string, keysAndValues ...any) {
	z.emit(z.logger.Info(), msg, keysAndValues)
}

func (z *ZerologLogger) Warn(msg string, keysAndValues ...any) {
	z.emit(z.logger.Warn(), msg, keysAndValues)
}

func (z *ZerologLogger) Error(msg string, keysAndValues ...any) {
	z.emit(z.logger.Error(), msg, keysAndValues)
}

func (z *ZerologLogger) emit(event *zerolog.Event, msg string, keysAndValues []any) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, keysAndValues[i+1])
	}
	event.Msg(msg)
}
