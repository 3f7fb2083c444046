package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/config"
)

// captureSink collects written events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
	closed bool
}

func (c *captureSink) Write(_ context.Context, event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventDispatchSent).
		WithAccount("a1").
		WithMessage("<mid@example.com>").
		WithBatch("b1").
		WithRecipients([]string{"x@y.com"}).
		WithDetail("attempt", "2")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventDispatchSent, e.Type)
	assert.WithinDuration(t, time.Now().UTC(), e.Timestamp, time.Minute)
	assert.Equal(t, "a1", e.AccountID)
	assert.Equal(t, "b1", e.BatchID)
	assert.Equal(t, map[string]string{"attempt": "2"}, e.Detail)

	other := NewEvent(EventDispatchSent)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestQueuedSinkDeliversAsync(t *testing.T) {
	capture := &captureSink{}
	qs := NewQueuedSink(capture, 16, zap.NewNop())

	for i := 0; i < 5; i++ {
		require.NoError(t, qs.Write(context.Background(), NewEvent(EventDispatchSent)))
	}

	require.NoError(t, qs.Close())
	assert.Equal(t, 5, capture.count())
	assert.True(t, capture.closed)

	processed, failed, dropped := qs.Stats()
	assert.EqualValues(t, 5, processed)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestQueuedSinkRejectsAfterClose(t *testing.T) {
	qs := NewQueuedSink(&captureSink{}, 16, zap.NewNop())
	require.NoError(t, qs.Close())

	err := qs.Write(context.Background(), NewEvent(EventDispatchSent))
	assert.Error(t, err)
}

func TestQueuedSinkCountsFailures(t *testing.T) {
	capture := &captureSink{err: errors.New("sink unavailable")}
	qs := NewQueuedSink(capture, 16, zap.NewNop())

	require.NoError(t, qs.Write(context.Background(), NewEvent(EventDispatchFailed)))
	require.NoError(t, qs.Close())

	_, failed, _ := qs.Stats()
	assert.EqualValues(t, 1, failed)
}

func TestRecorderDisabledIsNoop(t *testing.T) {
	rec, err := NewRecorder(config.Audit{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	// Must not panic or block.
	rec.Record(NewEvent(EventDispatchSent))
	assert.NoError(t, rec.Stop())
}

func TestRecorderNilIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Record(NewEvent(EventDispatchSent))
	assert.NoError(t, rec.Stop())
}

func TestRecorderWithSink(t *testing.T) {
	capture := &captureSink{}
	rec := NewRecorderWithSink(capture, zap.NewNop())

	rec.Record(NewEvent(EventAccountRateLimited).WithAccount("a1"))
	assert.Equal(t, 1, capture.count())
	require.NoError(t, rec.Stop())
	assert.True(t, capture.closed)
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(KafkaSinkConfig{Topic: "t"}, zap.NewNop())
	assert.Error(t, err, "brokers are required")

	_, err = NewKafkaSink(KafkaSinkConfig{Brokers: []string{"b:9092"}}, zap.NewNop())
	assert.Error(t, err, "topic is required")
}
