package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

var (
	_ log.Logger     = (*zerologAdapter)(nil)
	_ log.WithLogger = (*zerologAdapter)(nil)
)

// zerologAdapter routes Temporal SDK logs into the service logger. The SDK
// passes fields as alternating key/value pairs.
type zerologAdapter struct {
	logger zerolog.Logger
}

func NewTemporalAdapter(logger zerolog.Logger) log.Logger {
	return &zerologAdapter{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

func (a *zerologAdapter) With(keyvals ...interface{}) log.Logger {
	ctx := a.logger.With()
	for key, val := range pairs(keyvals) {
		ctx = ctx.Interface(key, val)
	}
	return &zerologAdapter{logger: ctx.Logger()}
}

func (a *zerologAdapter) Debug(msg string, keyvals ...interface{}) {
	emit(a.logger.Debug(), msg, keyvals)
}

func (a *zerologAdapter) Info(msg string, keyvals ...interface{}) {
	emit(a.logger.Info(), msg, keyvals)
}

func (a *zerologAdapter) Warn(msg string, keyvals ...interface{}) {
	emit(a.logger.Warn(), msg, keyvals)
}

func (a *zerologAdapter) Error(msg string, keyvals ...interface{}) {
	emit(a.logger.Error(), msg, keyvals)
}

func emit(event *zerolog.Event, msg string, keyvals []interface{}) {
	for key, val := range pairs(keyvals) {
		if err, ok := val.(error); ok {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, val)
	}
	event.Msg(msg)
}

// pairs folds keyvals into a map. A dangling key keeps a nil value.
func pairs(keyvals []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if i+1 < len(keyvals) {
			out[key] = keyvals[i+1]
		} else {
			out[key] = nil
		}
	}
	return out
}
