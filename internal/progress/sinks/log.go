package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/progress"
)

// LogSink writes each event as a structured log line. Source results are
// logged at debug level since they are high volume.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("session_id", evt.SessionID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Phase != "" {
			fields = append(fields, zap.String("phase", evt.Phase))
		}
		if evt.Company != "" {
			fields = append(fields, zap.String("company", evt.Company))
		}
		if evt.Vessel != "" {
			fields = append(fields, zap.String("vessel", evt.Vessel))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageSourceResult:
			fields = append(fields, zap.String("source", evt.Source), zap.Bool("success", evt.Success))
			s.logger.Debug("source result", fields...)
		case progress.StageCompanyError, progress.StageSessionError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
