package account

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// UsageRecord tracks one account's per-day send state. The rate-limited flag
// is sticky: once set it is only cleared by the daily rollover.
type UsageRecord struct {
	SentToday     int    `json:"sentToday"`
	LastResetDate string `json:"lastResetDate"`
	RateLimited   bool   `json:"rateLimited"`
}

// Tracker owns the mutable usage state for every registered account.
// All access goes through its mutex so concurrent selections observe
// consistent counters. The daily limit remains a soft limit: two requests
// racing past the last slot may overshoot by a bounded amount.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*UsageRecord
	now     func() time.Time
	log     *zap.SugaredLogger
}

// NewTracker creates a tracker with a zeroed record for every account in the registry.
func NewTracker(registry *Registry, log *zap.SugaredLogger) *Tracker {
	t := &Tracker{
		records: make(map[string]*UsageRecord, registry.Len()),
		now:     time.Now,
		log:     log.Named("usage"),
	}
	for _, a := range registry.List() {
		t.Ensure(a.ID)
	}
	return t
}

// WithNow overrides the clock, for tests. Existing records are restamped to
// the injected clock's date so state arranged afterwards is not wiped by the
// next rollover check regardless of the wall-clock date.
func (t *Tracker) WithNow(now func() time.Time) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.now = now
	today := now().Format(dateLayout)
	for _, rec := range t.records {
		rec.LastResetDate = today
	}
	return t
}

// Ensure idempotently creates a zeroed record for the account id.
func (t *Tracker) Ensure(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[id]; ok {
		return
	}
	t.records[id] = &UsageRecord{LastResetDate: t.now().Format(dateLayout)}
}

// RolloverIfNeeded resets counters and rate-limit flags for every record
// whose last reset date is not today. Calling it when the date already
// matches has no effect, so it is safe on every selection attempt.
func (t *Tracker) RolloverIfNeeded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
}

func (t *Tracker) rolloverLocked() {
	today := t.now().Format(dateLayout)
	for id, rec := range t.records {
		if rec.LastResetDate == today {
			continue
		}
		t.log.Infow("Daily usage rollover",
			"account", id,
			"sentYesterday", rec.SentToday,
			"wasRateLimited", rec.RateLimited)
		rec.SentToday = 0
		rec.RateLimited = false
		rec.LastResetDate = today
	}
}

// RecordSent increments the account's sent counter by exactly one.
func (t *Tracker) RecordSent(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[id]; ok {
		rec.SentToday++
	}
}

// MarkRateLimited sets the sticky rate-limit flag for the account.
func (t *Tracker) MarkRateLimited(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[id]; ok && !rec.RateLimited {
		rec.RateLimited = true
		t.log.Warnw("Account marked rate limited until next rollover", "account", id, "sentToday", rec.SentToday)
	}
}

// Usage returns a copy of the account's record.
func (t *Tracker) Usage(id string) (UsageRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return UsageRecord{}, false
	}
	return *rec, true
}

// Snapshot returns a read-only copy of all records for status reporting.
func (t *Tracker) Snapshot() map[string]UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]UsageRecord, len(t.records))
	for id, rec := range t.records {
		out[id] = *rec
	}
	return out
}

// StartRolloverLoop runs rollover on a fixed interval so idle accounts
// self-heal even without traffic. It returns when ctx is cancelled.
func (t *Tracker) StartRolloverLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RolloverIfNeeded()
		}
	}
}
