package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/KadevalArpit/prelax-email-api/pkg/account"
)

// Mailer delivers an envelope through the given sender account.
type Mailer interface {
	Send(ctx context.Context, acct account.Account, env *Envelope) (*Receipt, error)
}

// SendError carries the provider response code extracted from a failed
// delivery, so callers can classify throttling without string matching.
type SendError struct {
	Code int
	Err  error
}

func (e *SendError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("provider responded %d: %v", e.Code, e.Err)
	}
	return e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

var responseCodeRe = regexp.MustCompile(`\b([45]\d{2})\b`)

// wrapSendError attaches the provider response code where one can be found,
// either as a textproto error from the SMTP conversation or as a leading
// status code in the message text.
func wrapSendError(err error) *SendError {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return &SendError{Code: tpErr.Code, Err: err}
	}
	if m := responseCodeRe.FindStringSubmatch(err.Error()); m != nil {
		code := 0
		_, _ = fmt.Sscanf(m[1], "%d", &code)
		return &SendError{Code: code, Err: err}
	}
	return &SendError{Err: err}
}

// SMTPMailer sends envelopes over SMTP with per-account credentials.
// Dialers are cached per account id; accounts are immutable so a cached
// dialer never goes stale.
type SMTPMailer struct {
	mu      sync.Mutex
	dialers map[string]*gomail.Dialer
	log     *zap.SugaredLogger
}

func NewSMTPMailer(log *zap.SugaredLogger) *SMTPMailer {
	return &SMTPMailer{
		dialers: make(map[string]*gomail.Dialer),
		log:     log.Named("smtp"),
	}
}

func (m *SMTPMailer) dialer(acct account.Account) *gomail.Dialer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.dialers[acct.ID]; ok {
		return d
	}

	d := gomail.NewDialer(acct.SMTP.Host, acct.SMTP.Port, acct.SMTP.Username, acct.SMTP.Password)
	if acct.SMTP.InsecureSkipVerify {
		m.log.Warnw("InsecureSkipVerify is enabled for mail TLS connection", "account", acct.ID)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	m.dialers[acct.ID] = d
	return d
}

// Send builds the wire message and performs one delivery attempt. Retry
// policy lives with the caller.
func (m *SMTPMailer) Send(ctx context.Context, acct account.Account, env *Envelope) (*Receipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", env.From, env.FromName)
	msg.SetHeader("To", env.To...)
	if env.ReplyTo != "" {
		msg.SetHeader("Reply-To", env.ReplyTo)
	}
	msg.SetHeader("Subject", env.Subject)
	if env.MessageID != "" {
		msg.SetHeader("Message-ID", env.MessageID)
	}
	// DSN hints; honored only where the provider supports delivery status
	// notifications for failures and delays.
	msg.SetHeader("X-DSN-Notify", "FAILURE,DELAY")
	for k, v := range env.Headers {
		msg.SetHeader(k, v)
	}

	if env.TextBody != "" {
		msg.SetBody("text/plain", env.TextBody)
		if env.HTMLBody != "" {
			msg.AddAlternative("text/html", env.HTMLBody)
		}
	} else {
		msg.SetBody("text/html", env.HTMLBody)
	}

	for _, att := range env.Attachments {
		content := att.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}))
		}
		msg.Attach(att.Filename, settings...)
	}

	if err := m.dialer(acct).DialAndSend(msg); err != nil {
		m.log.Warnw("SMTP delivery failed",
			"account", acct.ID,
			"host", acct.SMTP.Host,
			"recipients", len(env.To),
			"error", err)
		return nil, wrapSendError(err)
	}

	m.log.Debugw("SMTP delivery accepted",
		"account", acct.ID,
		"messageID", env.MessageID,
		"recipients", len(env.To))

	return &Receipt{
		MessageID: env.MessageID,
		Accepted:  append([]string(nil), env.To...),
		SentAt:    time.Now(),
	}, nil
}
