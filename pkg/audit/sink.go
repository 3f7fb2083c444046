package audit

import (
	"context"

	"go.uber.org/zap"
)

// Sink defines the interface for audit event destinations.
type Sink interface {
	// Write sends an audit event to the sink.
	Write(ctx context.Context, event *Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Write logs the audit event.
func (s *LogSink) Write(_ context.Context, event *Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.AccountID != "" {
		fields = append(fields, zap.String("account", event.AccountID))
	}
	if event.MessageID != "" {
		fields = append(fields, zap.String("message_id", event.MessageID))
	}
	if event.BatchID != "" {
		fields = append(fields, zap.String("batch_id", event.BatchID))
	}
	if len(event.Recipients) > 0 {
		fields = append(fields, zap.Int("recipients", len(event.Recipients)))
	}
	for k, v := range event.Detail {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	s.logger.Info("audit_event", fields...)
	return nil
}

// Close is a no-op for LogSink.
func (s *LogSink) Close() error {
	return nil
}

// Name returns the sink identifier.
func (s *LogSink) Name() string {
	return "log"
}
