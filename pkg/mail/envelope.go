package mail

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment is an in-memory file attached to an outgoing message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

// Envelope is the fully assembled, transport-agnostic message handed to a
// Mailer. All template substitution is complete by the time an envelope is
// built.
type Envelope struct {
	From        string
	FromName    string
	To          []string
	ReplyTo     string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
	MessageID   string
	Headers     map[string]string
}

// Receipt is the provider's acknowledgment of a delivery attempt.
type Receipt struct {
	MessageID string    `json:"messageId"`
	Accepted  []string  `json:"accepted"`
	Rejected  []string  `json:"rejected"`
	SentAt    time.Time `json:"sentAt"`
}

// NewMessageID builds a unique message identifier from the sender address,
// a nanosecond timestamp, and random entropy. Collisions are negligible,
// not cryptographically excluded.
func NewMessageID(fromAddr string) string {
	domain := "localhost"
	if at := strings.LastIndex(fromAddr, "@"); at >= 0 && at < len(fromAddr)-1 {
		domain = fromAddr[at+1:]
	}
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixNano(), uuid.NewString(), domain)
}
