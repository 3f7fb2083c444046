package dispatch

import (
	"context"
	"errors"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/account"
	"github.com/KadevalArpit/prelax-email-api/pkg/config"
	"github.com/KadevalArpit/prelax-email-api/pkg/mail"
)

// scriptedMailer returns the scripted error for each attempt and succeeds
// once the script is exhausted.
type scriptedMailer struct {
	mu       sync.Mutex
	script   []error
	attempts int
	accounts []string
}

func (m *scriptedMailer) Send(_ context.Context, acct account.Account, env *mail.Envelope) (*mail.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	m.accounts = append(m.accounts, acct.ID)

	if m.attempts <= len(m.script) {
		if err := m.script[m.attempts-1]; err != nil {
			return nil, err
		}
	}
	return &mail.Receipt{
		MessageID: env.MessageID,
		Accepted:  append([]string(nil), env.To...),
		SentAt:    time.Now(),
	}, nil
}

// fakeSleep records requested delays without waiting.
type fakeSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	return nil
}

func throttleErr(code int) error {
	return &mail.SendError{Code: code, Err: &textproto.Error{Code: code, Msg: "rejected"}}
}

func newTestEngine(t *testing.T, mailer mail.Mailer, accounts ...account.Account) (*Engine, *account.Tracker, *fakeSleep) {
	t.Helper()
	if len(accounts) == 0 {
		accounts = []account.Account{
			{ID: "a1", Address: "a1@example.com", DisplayName: "A One", SMTP: account.SMTP{Host: "h"}},
			{ID: "a2", Address: "a2@example.com", SMTP: account.SMTP{Host: "h"}},
		}
	}
	reg, err := account.NewRegistry(accounts)
	require.NoError(t, err)
	tracker := account.NewTracker(reg, zap.NewNop().Sugar())
	selector := account.NewSelector(reg, tracker)

	sleep := &fakeSleep{}
	engine := NewEngine(selector, tracker, mailer, nil,
		config.Dispatch{MaxRetries: 3, BackoffBaseMs: 1000},
		zap.NewNop().Sugar(),
	).WithSleep(sleep.sleep)

	return engine, tracker, sleep
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	mailer := &scriptedMailer{}
	engine, tracker, sleep := newTestEngine(t, mailer)

	res, err := engine.Send(context.Background(), SendRequest{
		To:       []string{"x@y.com"},
		Subject:  "hello",
		TextBody: "body",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.MessageID)
	assert.Equal(t, []string{"x@y.com"}, res.Accepted)
	assert.Empty(t, sleep.delays)

	rec, _ := tracker.Usage(res.AccountID)
	assert.Equal(t, 1, rec.SentToday)
}

func TestSendRetriesWithEscalatingBackoff(t *testing.T) {
	transient := errors.New("dial tcp: connection refused")
	mailer := &scriptedMailer{script: []error{transient, transient, transient}}
	engine, _, sleep := newTestEngine(t, mailer)

	res, err := engine.Send(context.Background(), SendRequest{
		To:       []string{"x@y.com"},
		TextBody: "body",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Attempts, "exactly 4 underlying attempts")
	assert.Equal(t, 4, mailer.attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleep.delays)
}

func TestSendExhaustsRetries(t *testing.T) {
	transient := errors.New("i/o timeout")
	mailer := &scriptedMailer{script: []error{transient, transient, transient, transient}}
	engine, _, _ := newTestEngine(t, mailer)

	_, err := engine.Send(context.Background(), SendRequest{To: []string{"x@y.com"}, TextBody: "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 4, de.Attempts)
	assert.ErrorIs(t, de.Err, transient, "carries the last underlying cause")
}

func TestThrottleMarksAccountAndRotatesAway(t *testing.T) {
	mailer := &scriptedMailer{script: []error{throttleErr(550)}}
	engine, tracker, _ := newTestEngine(t, mailer)

	res, err := engine.Send(context.Background(), SendRequest{To: []string{"x@y.com"}, TextBody: "b"})
	require.NoError(t, err)

	// First attempt went through the throttled account, the retry through the other.
	require.Len(t, mailer.accounts, 2)
	throttled := mailer.accounts[0]
	assert.NotEqual(t, throttled, mailer.accounts[1])
	assert.NotEqual(t, throttled, res.AccountID)

	rec, _ := tracker.Usage(throttled)
	assert.True(t, rec.RateLimited)
	assert.Zero(t, rec.SentToday)
}

func TestPinnedAccountRetriedAgainstItself(t *testing.T) {
	mailer := &scriptedMailer{script: []error{throttleErr(421), throttleErr(421)}}
	engine, tracker, _ := newTestEngine(t, mailer)

	res, err := engine.Send(context.Background(), SendRequest{
		To:        []string{"x@y.com"},
		TextBody:  "b",
		AccountID: "a1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a1", "a1"}, mailer.accounts, "pin keeps retrying the same account")
	assert.Equal(t, "a1", res.AccountID)

	rec, _ := tracker.Usage("a1")
	assert.True(t, rec.RateLimited, "flag set even though the pin bypasses it")
}

func TestPinnedAccountNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t, &scriptedMailer{})

	_, err := engine.Send(context.Background(), SendRequest{
		To:        []string{"x@y.com"},
		TextBody:  "b",
		AccountID: "ghost",
	})
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestSendAllAccountsExhaustedUpfront(t *testing.T) {
	engine, tracker, _ := newTestEngine(t, &scriptedMailer{})
	tracker.MarkRateLimited("a1")
	tracker.MarkRateLimited("a2")

	_, err := engine.Send(context.Background(), SendRequest{To: []string{"x@y.com"}, TextBody: "b"})
	assert.ErrorIs(t, err, account.ErrAllAccountsExhausted)
}

func TestSendPoolDrainsMidRetry(t *testing.T) {
	// Single account; a throttle on attempt one removes the whole pool.
	mailer := &scriptedMailer{script: []error{throttleErr(554)}}
	engine, _, _ := newTestEngine(t, mailer,
		account.Account{ID: "only", Address: "only@example.com", SMTP: account.SMTP{Host: "h"}})

	_, err := engine.Send(context.Background(), SendRequest{To: []string{"x@y.com"}, TextBody: "b"})
	require.Error(t, err)

	var de *DeliveryError
	require.ErrorAs(t, err, &de, "mid-retry exhaustion reports the delivery failure")
	assert.Equal(t, 1, de.Attempts)
	assert.Equal(t, 1, mailer.attempts)
}

func TestSendEmptyRecipients(t *testing.T) {
	engine, _, _ := newTestEngine(t, &scriptedMailer{})
	_, err := engine.Send(context.Background(), SendRequest{TextBody: "b"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestSendHonorsCancellationDuringBackoff(t *testing.T) {
	transient := errors.New("temporary failure")
	mailer := &scriptedMailer{script: []error{transient, transient, transient, transient}}
	engine, _, _ := newTestEngine(t, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	engine.WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := engine.Send(ctx, SendRequest{To: []string{"x@y.com"}, TextBody: "b"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mailer.attempts, "no further attempts after cancellation")
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantThrottled bool
	}{
		{"code 421", throttleErr(421), true},
		{"code 450", throttleErr(450), true},
		{"code 550", throttleErr(550), true},
		{"code 552", throttleErr(552), true},
		{"code 554", throttleErr(554), true},
		{"code 451 is transient", &mail.SendError{Code: 451, Err: errors.New("try later")}, false},
		{"plain network error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := DefaultClassifier(tt.err)
			assert.Equal(t, tt.wantThrottled, cls.Throttled)
			assert.True(t, cls.Retriable)
		})
	}
}
