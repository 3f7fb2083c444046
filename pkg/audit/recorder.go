package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/config"
)

// Recorder is the facade the dispatch path records events through.
// A nil or disabled recorder is a no-op, so callers never guard.
type Recorder struct {
	sink Sink
	log  *zap.SugaredLogger
}

// NewRecorder builds a recorder from configuration. When the audit trail is
// disabled it returns a recorder that drops everything. With brokers
// configured events go to Kafka behind an async queue; otherwise they go to
// the structured log.
func NewRecorder(cfg config.Audit, logger *zap.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return &Recorder{log: logger.Sugar().Named("audit")}, nil
	}

	var sink Sink
	if len(cfg.Brokers) > 0 {
		ks, err := NewKafkaSink(KafkaSinkConfig{Brokers: cfg.Brokers, Topic: cfg.Topic}, logger)
		if err != nil {
			return nil, err
		}
		sink = ks
	} else {
		sink = NewLogSink(logger)
	}

	return &Recorder{
		sink: NewQueuedSink(sink, cfg.QueueSize, logger),
		log:  logger.Sugar().Named("audit"),
	}, nil
}

// NewRecorderWithSink builds a recorder around an explicit sink, for tests.
func NewRecorderWithSink(sink Sink, logger *zap.Logger) *Recorder {
	return &Recorder{sink: sink, log: logger.Sugar().Named("audit")}
}

// Record submits an event to the trail. Failures are logged, never surfaced:
// the audit trail must not affect dispatch outcomes.
func (r *Recorder) Record(event *Event) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Write(context.Background(), event); err != nil {
		r.log.Warnw("Failed to record audit event", "eventType", event.Type, "error", err)
	}
}

// Stop closes the underlying sink, draining queued events.
func (r *Recorder) Stop() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
