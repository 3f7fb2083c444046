package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/account"
	"github.com/KadevalArpit/prelax-email-api/pkg/apiresponses"
	"github.com/KadevalArpit/prelax-email-api/pkg/dispatch"
	"github.com/KadevalArpit/prelax-email-api/pkg/mail"
	"github.com/KadevalArpit/prelax-email-api/pkg/recipients"
)

// Sender dispatches a single message; Batcher fans a template out to many
// recipients. Both are satisfied by the dispatch package and mocked in tests.
type Sender interface {
	Send(ctx context.Context, req dispatch.SendRequest) (*dispatch.Result, error)
}

type Batcher interface {
	SendBatch(ctx context.Context, req dispatch.BatchRequest) (*dispatch.BatchOutcome, error)
}

type DispatchController struct {
	sender     Sender
	batcher    Batcher
	log        *zap.SugaredLogger
	middleware []gin.HandlerFunc
}

func NewDispatchController(sender Sender, batcher Batcher, log *zap.SugaredLogger) *DispatchController {
	return &DispatchController{
		sender:  sender,
		batcher: batcher,
		log:     log.Named("api.dispatch"),
	}
}

func (DispatchController) BasePath() string {
	return "dispatch/"
}

func (dc *DispatchController) Register(rg *gin.RouterGroup) error {
	rg.POST("/send", dc.handleSend)
	rg.POST("/batch", dc.handleBatch)
	rg.POST("/batch/upload", dc.handleBatchUpload)

	return nil
}

func (dc *DispatchController) Handlers() []gin.HandlerFunc {
	return dc.middleware
}

type sendRequest struct {
	To           []string          `json:"to"`
	Subject      string            `json:"subject"`
	TextBody     string            `json:"textBody"`
	HTMLBody     string            `json:"htmlBody"`
	HTMLTemplate string            `json:"htmlTemplate"`
	TemplateData map[string]any    `json:"templateData"`
	ReplyTo      string            `json:"replyTo"`
	Headers      map[string]string `json:"headers"`
	AccountID    string            `json:"accountId"`
}

func (dc *DispatchController) handleSend(c *gin.Context) {
	var req sendRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		apiresponses.RespondBadRequest(c, "request body is not valid JSON")
		return
	}
	if len(req.To) == 0 {
		apiresponses.RespondBadRequest(c, "at least one recipient is required")
		return
	}

	htmlBody := req.HTMLBody
	if req.HTMLTemplate != "" {
		rendered, err := mail.RenderTemplate("htmlBody", req.HTMLTemplate, req.TemplateData)
		if err != nil {
			apiresponses.RespondBadRequestWithDetails(c, "invalid HTML template", err.Error())
			return
		}
		htmlBody = rendered
	}
	if req.TextBody == "" && htmlBody == "" {
		apiresponses.RespondBadRequest(c, "either textBody or an HTML body is required")
		return
	}

	result, err := dc.sender.Send(c.Request.Context(), dispatch.SendRequest{
		To:        req.To,
		Subject:   req.Subject,
		TextBody:  req.TextBody,
		HTMLBody:  htmlBody,
		ReplyTo:   req.ReplyTo,
		Headers:   req.Headers,
		AccountID: req.AccountID,
	})
	if err != nil {
		dc.respondDispatchError(c, req.AccountID, err)
		return
	}

	apiresponses.RespondOK(c, result)
}

type batchRequest struct {
	Recipients      []recipients.Recipient `json:"recipients"`
	SubjectTemplate string                 `json:"subjectTemplate"`
	TextTemplate    string                 `json:"textTemplate"`
	HTMLTemplate    string                 `json:"htmlTemplate"`
	ReplyTo         string                 `json:"replyTo"`
	AccountID       string                 `json:"accountId"`
}

func (dc *DispatchController) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		apiresponses.RespondBadRequest(c, "request body is not valid JSON")
		return
	}

	dc.runBatch(c, dispatch.BatchRequest{
		Recipients:      req.Recipients,
		SubjectTemplate: req.SubjectTemplate,
		TextTemplate:    req.TextTemplate,
		HTMLTemplate:    req.HTMLTemplate,
		ReplyTo:         req.ReplyTo,
		AccountID:       req.AccountID,
	})
}

// handleBatchUpload accepts a multipart form with a "recipients" CSV file
// whose header row names the substitution variables; the remaining template
// fields arrive as ordinary form values.
func (dc *DispatchController) handleBatchUpload(c *gin.Context) {
	file, _, err := c.Request.FormFile("recipients")
	if err != nil {
		apiresponses.RespondBadRequest(c, "multipart field 'recipients' with a CSV file is required")
		return
	}
	defer file.Close()

	recs, fields, err := recipients.ParseCSV(file)
	if err != nil {
		if errors.Is(err, recipients.ErrNoRecipients) {
			apiresponses.RespondBadRequest(c, "recipient CSV contains no records")
			return
		}
		apiresponses.RespondBadRequestWithDetails(c, "malformed recipient CSV", err.Error())
		return
	}
	dc.log.Debugw("Recipient CSV parsed", "records", len(recs), "fields", fields)

	req := dispatch.BatchRequest{
		Recipients:      recs,
		SubjectTemplate: c.PostForm("subjectTemplate"),
		TextTemplate:    c.PostForm("textTemplate"),
		HTMLTemplate:    c.PostForm("htmlTemplate"),
		ReplyTo:         c.PostForm("replyTo"),
		AccountID:       c.PostForm("accountId"),
	}

	outcome, err := dc.batcher.SendBatch(c.Request.Context(), req)
	if err != nil {
		dc.respondDispatchError(c, req.AccountID, err)
		return
	}

	apiresponses.RespondAccepted(c, batchUploadResponse{
		BatchOutcome: outcome,
		Variables:    fields,
	})
}

// batchUploadResponse echoes the substitution variables detected in the CSV
// header alongside the dispatch outcome.
type batchUploadResponse struct {
	*dispatch.BatchOutcome
	Variables []string `json:"variables"`
}

func (dc *DispatchController) runBatch(c *gin.Context, req dispatch.BatchRequest) {
	outcome, err := dc.batcher.SendBatch(c.Request.Context(), req)
	if err != nil {
		dc.respondDispatchError(c, req.AccountID, err)
		return
	}

	// Per-recipient outcomes are in the body; 202 signals partial results.
	apiresponses.RespondAccepted(c, outcome)
}

func (dc *DispatchController) respondDispatchError(c *gin.Context, accountID string, err error) {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		apiresponses.RespondNotFound(c, "account", accountID)
	case errors.Is(err, account.ErrNoAccounts):
		apiresponses.RespondServiceUnavailable(c, "no sender accounts registered")
	case errors.Is(err, account.ErrAllAccountsExhausted):
		apiresponses.RespondTooManyRequests(c, "all sender accounts are rate limited or at their daily limit")
	case errors.Is(err, dispatch.ErrNoRecipients), errors.Is(err, recipients.ErrNoRecipients):
		apiresponses.RespondBadRequest(c, "at least one recipient is required")
	case errors.Is(err, dispatch.ErrNoBody):
		apiresponses.RespondBadRequest(c, "either a text or an HTML template is required")
	case errors.Is(err, dispatch.ErrDeliveryFailed):
		apiresponses.RespondBadGateway(c, err.Error())
	default:
		apiresponses.RespondInternalError(c, "dispatch message", err, dc.log)
	}
}
