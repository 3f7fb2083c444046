package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/audit"
	"github.com/KadevalArpit/prelax-email-api/pkg/metrics"
	"github.com/KadevalArpit/prelax-email-api/pkg/recipients"
)

// ErrNoBody is returned when a batch request carries neither a text nor an
// HTML body template.
var ErrNoBody = errors.New("batch has no body template")

// RecipientStatus is the outcome of one recipient within a batch.
type RecipientStatus string

const (
	StatusSent    RecipientStatus = "sent"
	StatusFailed  RecipientStatus = "failed"
	StatusSkipped RecipientStatus = "skipped"
)

// RecipientOutcome reports one recipient's result.
type RecipientOutcome struct {
	Recipient string          `json:"recipient"`
	Status    RecipientStatus `json:"status"`
	Detail    string          `json:"detail,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	AccountID string          `json:"accountId,omitempty"`
}

// BatchOutcome aggregates a whole batch. Succeeded+Failed always equals Total.
type BatchOutcome struct {
	BatchID   string             `json:"batchId"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []RecipientOutcome `json:"results"`
}

// BatchRequest is a template-driven multi-recipient send.
type BatchRequest struct {
	Recipients      []recipients.Recipient
	SubjectTemplate string
	TextTemplate    string
	HTMLTemplate    string
	ReplyTo         string
	AccountID       string
}

// Coordinator fans a batch out into independent engine calls, substituting
// per-recipient template variables and isolating per-recipient failures.
// Recipients are processed strictly one at a time to preserve per-account
// rate pacing.
type Coordinator struct {
	engine   *Engine
	recorder *audit.Recorder
	log      *zap.SugaredLogger
}

func NewCoordinator(engine *Engine, recorder *audit.Recorder, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		engine:   engine,
		recorder: recorder,
		log:      log.Named("batch"),
	}
}

// SendBatch processes each recipient in order. Only structural problems
// (empty recipient set, missing body template) abort before dispatch; a
// single recipient's failure never stops the rest. Cancellation is checked
// cooperatively between recipients: the remainder is recorded as skipped so
// the outcome still accounts for every recipient.
func (c *Coordinator) SendBatch(ctx context.Context, req BatchRequest) (*BatchOutcome, error) {
	if len(req.Recipients) == 0 {
		return nil, recipients.ErrNoRecipients
	}
	if req.TextTemplate == "" && req.HTMLTemplate == "" {
		return nil, ErrNoBody
	}

	outcome := &BatchOutcome{
		BatchID: uuid.NewString(),
		Total:   len(req.Recipients),
		Results: make([]RecipientOutcome, 0, len(req.Recipients)),
	}

	c.recorder.Record(audit.NewEvent(audit.EventBatchStarted).
		WithBatch(outcome.BatchID).
		WithDetail("total", fmt.Sprintf("%d", outcome.Total)))
	c.log.Infow("Batch started", "batchID", outcome.BatchID, "recipients", outcome.Total)

	cancelled := false
	for _, rec := range req.Recipients {
		if cancelled || ctx.Err() != nil {
			cancelled = true
			c.record(outcome, RecipientOutcome{
				Recipient: rec.Email(),
				Status:    StatusSkipped,
				Detail:    "batch cancelled",
			})
			continue
		}

		email := rec.Email()
		if email == "" {
			c.record(outcome, RecipientOutcome{
				Status: StatusFailed,
				Detail: "recipient record has no email field",
			})
			continue
		}

		result, err := c.engine.Send(ctx, SendRequest{
			To:        []string{email},
			Subject:   recipients.Substitute(req.SubjectTemplate, rec),
			TextBody:  recipients.Substitute(req.TextTemplate, rec),
			HTMLBody:  recipients.Substitute(req.HTMLTemplate, rec),
			ReplyTo:   req.ReplyTo,
			AccountID: req.AccountID,
		})
		if err != nil {
			c.record(outcome, RecipientOutcome{
				Recipient: email,
				Status:    StatusFailed,
				Detail:    err.Error(),
			})
			continue
		}

		c.record(outcome, RecipientOutcome{
			Recipient: email,
			Status:    StatusSent,
			MessageID: result.MessageID,
			AccountID: result.AccountID,
		})
	}

	c.recorder.Record(audit.NewEvent(audit.EventBatchCompleted).
		WithBatch(outcome.BatchID).
		WithDetail("total", fmt.Sprintf("%d", outcome.Total)).
		WithDetail("succeeded", fmt.Sprintf("%d", outcome.Succeeded)).
		WithDetail("failed", fmt.Sprintf("%d", outcome.Failed)))
	c.log.Infow("Batch completed",
		"batchID", outcome.BatchID,
		"total", outcome.Total,
		"succeeded", outcome.Succeeded,
		"failed", outcome.Failed)

	return outcome, nil
}

func (c *Coordinator) record(outcome *BatchOutcome, r RecipientOutcome) {
	outcome.Results = append(outcome.Results, r)
	if r.Status == StatusSent {
		outcome.Succeeded++
	} else {
		outcome.Failed++
	}
	metrics.BatchRecipients.WithLabelValues(string(r.Status)).Inc()
}
