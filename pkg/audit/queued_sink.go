package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/metrics"
)

// QueuedSink wraps a Sink with a buffered queue and a background worker so
// audit writes never block the dispatch path. When the queue is full new
// events are dropped and counted rather than applying backpressure.
type QueuedSink struct {
	sink         Sink
	queue        chan *Event
	writeTimeout time.Duration
	logger       *zap.Logger

	droppedEvents   atomic.Int64
	processedEvents atomic.Int64
	failedEvents    atomic.Int64

	wg     sync.WaitGroup
	closed atomic.Bool
	done   chan struct{}
}

// NewQueuedSink creates a queued wrapper around an existing sink and starts
// its worker.
func NewQueuedSink(sink Sink, queueSize int, logger *zap.Logger) *QueuedSink {
	if queueSize <= 0 {
		queueSize = 1000
	}

	qs := &QueuedSink{
		sink:         sink,
		queue:        make(chan *Event, queueSize),
		writeTimeout: 5 * time.Second,
		logger:       logger.Named("queued-sink").With(zap.String("sink", sink.Name())),
		done:         make(chan struct{}),
	}

	qs.wg.Add(1)
	go qs.worker()

	qs.logger.Info("queued audit sink started", zap.Int("queue_size", queueSize))
	return qs
}

// Write enqueues an event for async processing (non-blocking).
func (qs *QueuedSink) Write(_ context.Context, event *Event) error {
	if qs.closed.Load() {
		return fmt.Errorf("queued sink %s is closed", qs.sink.Name())
	}

	select {
	case qs.queue <- event:
		return nil
	default:
		qs.droppedEvents.Add(1)
		metrics.AuditEventsDropped.Inc()
		qs.logger.Warn("audit queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID))
		return nil
	}
}

func (qs *QueuedSink) worker() {
	defer qs.wg.Done()

	for {
		select {
		case <-qs.done:
			// Drain whatever is still buffered before shutting down.
			for {
				select {
				case event := <-qs.queue:
					qs.writeOne(event)
				default:
					return
				}
			}
		case event := <-qs.queue:
			qs.writeOne(event)
		}
	}
}

func (qs *QueuedSink) writeOne(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), qs.writeTimeout)
	defer cancel()

	if err := qs.sink.Write(ctx, event); err != nil {
		qs.failedEvents.Add(1)
		qs.logger.Warn("failed to write audit event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}
	qs.processedEvents.Add(1)
}

// Close stops the worker, drains the queue, and closes the wrapped sink.
func (qs *QueuedSink) Close() error {
	if !qs.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(qs.done)
	qs.wg.Wait()
	return qs.sink.Close()
}

// Name returns the sink identifier.
func (qs *QueuedSink) Name() string {
	return "queued:" + qs.sink.Name()
}

// Stats reports processed/failed/dropped counts, for tests and health checks.
func (qs *QueuedSink) Stats() (processed, failed, dropped int64) {
	return qs.processedEvents.Load(), qs.failedEvents.Load(), qs.droppedEvents.Load()
}
