package bus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/okian/attune/pkg/logger"
)

// wmLogger routes watermill's internal logging into pkg/logger.
type wmLogger struct {
	log    logger.Logger
	fields watermill.LogFields
}

// NewWatermillLogger adapts l to watermill.LoggerAdapter.
func NewWatermillLogger(l logger.Logger) watermill.LoggerAdapter {
	return &wmLogger{log: l}
}

func (w *wmLogger) convert(extra watermill.LogFields) []logger.Field {
	out := make([]logger.Field, 0, len(w.fields)+len(extra))
	for k, v := range w.fields {
		out = append(out, logger.Any(k, v))
	}
	for k, v := range extra {
		out = append(out, logger.Any(k, v))
	}
	return out
}

func (w *wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Error(context.Background(), msg, append(w.convert(fields), logger.Error(err))...)
}

// Info is demoted to debug; watermill reports every unrouted publish at info.
func (w *wmLogger) Info(msg string, fields watermill.LogFields) {
	w.log.Debug(context.Background(), msg, w.convert(fields)...)
}

func (w *wmLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug(context.Background(), msg, w.convert(fields)...)
}

// Trace is folded into debug.
func (w *wmLogger) Trace(msg string, fields watermill.LogFields) {
	w.log.Debug(context.Background(), msg, w.convert(fields)...)
}

func (w *wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &wmLogger{log: w.log, fields: w.fields.Add(fields)}
}
