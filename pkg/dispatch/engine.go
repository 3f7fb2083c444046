package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/account"
	"github.com/KadevalArpit/prelax-email-api/pkg/audit"
	"github.com/KadevalArpit/prelax-email-api/pkg/config"
	"github.com/KadevalArpit/prelax-email-api/pkg/mail"
	"github.com/KadevalArpit/prelax-email-api/pkg/metrics"
)

// ErrDeliveryFailed matches any DeliveryError via errors.Is.
var ErrDeliveryFailed = errors.New("delivery failed")

// ErrNoRecipients is returned for a send request with an empty recipient list.
var ErrNoRecipients = errors.New("send request has no recipients")

// DeliveryError is the terminal failure after all retries are exhausted,
// carrying the last underlying cause.
type DeliveryError struct {
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// SendRequest describes one outbound message. AccountID pins the send to a
// specific account, bypassing rotation and eligibility checks.
type SendRequest struct {
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	ReplyTo     string
	Attachments []mail.Attachment
	Headers     map[string]string
	AccountID   string
}

// Result reports one accepted dispatch.
type Result struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId"`
	AccountID string    `json:"accountId"`
	SentAt    time.Time `json:"sentAt"`
	Accepted  []string  `json:"accepted"`
	Rejected  []string  `json:"rejected"`
	Attempts  int       `json:"attempts"`
}

// SleepFunc waits for the backoff delay; it must honor context cancellation.
// Injectable so tests never wait on the wall clock.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Engine sends one message through a chosen account, classifies provider
// failures, and retries with exponential backoff. Each retry repeats account
// resolution, so a throttled account drops out of subsequent automatic
// attempts while a pinned account keeps being retried against itself.
type Engine struct {
	selector *account.Selector
	tracker  *account.Tracker
	mailer   mail.Mailer
	classify Classifier
	recorder *audit.Recorder
	log      *zap.SugaredLogger

	maxRetries  int
	backoffBase time.Duration
	sleep       SleepFunc
}

func NewEngine(
	selector *account.Selector,
	tracker *account.Tracker,
	mailer mail.Mailer,
	recorder *audit.Recorder,
	cfg config.Dispatch,
	log *zap.SugaredLogger,
) *Engine {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoffBase := cfg.BackoffBase()
	if backoffBase <= 0 {
		backoffBase = time.Second
	}

	return &Engine{
		selector:    selector,
		tracker:     tracker,
		mailer:      mailer,
		classify:    DefaultClassifier,
		recorder:    recorder,
		log:         log.Named("dispatch"),
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		sleep:       sleepContext,
	}
}

// WithClassifier overrides the failure classifier.
func (e *Engine) WithClassifier(c Classifier) *Engine {
	e.classify = c
	return e
}

// WithSleep overrides the backoff sleep, for tests.
func (e *Engine) WithSleep(s SleepFunc) *Engine {
	e.sleep = s
	return e
}

// Send dispatches one message, retrying transient failures up to the
// configured retry budget with doubling backoff delays.
func (e *Engine) Send(ctx context.Context, req SendRequest) (*Result, error) {
	if len(req.To) == 0 {
		return nil, ErrNoRecipients
	}

	maxAttempts := e.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// 1x, 2x, 4x ... of the base delay.
			delay := e.backoffBase << (attempt - 2)
			metrics.DispatchRetries.Inc()
			e.recorder.Record(audit.NewEvent(audit.EventDispatchRetried).
				WithRecipients(req.To).
				WithDetail("attempt", fmt.Sprintf("%d", attempt)).
				WithDetail("delay", delay.String()))
			if err := e.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		acct, err := e.resolveAccount(req.AccountID)
		if err != nil {
			if errors.Is(err, account.ErrAllAccountsExhausted) {
				metrics.SelectorExhausted.Inc()
			}
			if lastErr == nil {
				// Selection failed before any delivery was attempted;
				// surface it as-is, the scheduler does not retry these.
				return nil, err
			}
			// The pool drained mid-retry (e.g. the last eligible account got
			// throttled). Report the delivery failure that got us here.
			return nil, e.fail(req, attempt-1, lastErr)
		}

		receipt, err := e.mailer.Send(ctx, acct, e.buildEnvelope(acct, req))
		if err == nil {
			e.tracker.RecordSent(acct.ID)
			metrics.MailSendSuccess.WithLabelValues(acct.ID).Inc()
			e.recorder.Record(audit.NewEvent(audit.EventDispatchSent).
				WithAccount(acct.ID).
				WithMessage(receipt.MessageID).
				WithRecipients(receipt.Accepted))
			e.log.Infow("Message dispatched",
				"account", acct.ID,
				"messageID", receipt.MessageID,
				"recipients", len(req.To),
				"attempt", attempt)
			return &Result{
				Success:   true,
				MessageID: receipt.MessageID,
				AccountID: acct.ID,
				SentAt:    receipt.SentAt,
				Accepted:  receipt.Accepted,
				Rejected:  receipt.Rejected,
				Attempts:  attempt,
			}, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		metrics.MailSendFailure.WithLabelValues(acct.ID).Inc()

		cls := e.classify(err)
		if cls.Throttled {
			e.tracker.MarkRateLimited(acct.ID)
			metrics.AccountRateLimited.WithLabelValues(acct.ID).Inc()
			e.recorder.Record(audit.NewEvent(audit.EventAccountRateLimited).
				WithAccount(acct.ID).
				WithDetail("cause", err.Error()))
		}

		e.log.Warnw("Send attempt failed",
			"account", acct.ID,
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"throttled", cls.Throttled,
			"error", err)

		if !cls.Retriable {
			return nil, e.fail(req, attempt, lastErr)
		}
	}

	return nil, e.fail(req, maxAttempts, lastErr)
}

func (e *Engine) fail(req SendRequest, attempts int, cause error) error {
	e.recorder.Record(audit.NewEvent(audit.EventDispatchFailed).
		WithRecipients(req.To).
		WithDetail("attempts", fmt.Sprintf("%d", attempts)).
		WithDetail("cause", cause.Error()))
	return &DeliveryError{Attempts: attempts, Err: cause}
}

func (e *Engine) resolveAccount(pinned string) (account.Account, error) {
	if pinned != "" {
		return e.selector.SelectByID(pinned)
	}
	return e.selector.SelectAny()
}

func (e *Engine) buildEnvelope(acct account.Account, req SendRequest) *mail.Envelope {
	return &mail.Envelope{
		From:        acct.Address,
		FromName:    acct.DisplayName,
		To:          req.To,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		TextBody:    req.TextBody,
		HTMLBody:    req.HTMLBody,
		Attachments: req.Attachments,
		Headers:     req.Headers,
		MessageID:   mail.NewMessageID(acct.Address),
	}
}
