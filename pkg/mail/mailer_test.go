package mail

import (
	"errors"
	"net/textproto"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("sender@example.com")
	assert.Regexp(t, regexp.MustCompile(`^<\d+\.[0-9a-f-]+@example\.com>$`), id)

	other := NewMessageID("sender@example.com")
	assert.NotEqual(t, id, other, "ids must be unique")
}

func TestNewMessageIDFallbackDomain(t *testing.T) {
	assert.Contains(t, NewMessageID("not-an-address"), "@localhost>")
	assert.Contains(t, NewMessageID("trailing@"), "@localhost>")
}

func TestWrapSendError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "textproto error carries its code",
			err:      &textproto.Error{Code: 550, Msg: "mailbox unavailable"},
			wantCode: 550,
		},
		{
			name:     "code embedded in message text",
			err:      errors.New("gomail: could not send email 1: 421 too many connections"),
			wantCode: 421,
		},
		{
			name:     "no code at all",
			err:      errors.New("dial tcp: connection refused"),
			wantCode: 0,
		},
		{
			name:     "2xx codes are not provider failures",
			err:      errors.New("weird 250 response"),
			wantCode: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := wrapSendError(tt.err)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.ErrorIs(t, se, tt.err)
		})
	}
}

func TestSendErrorMessage(t *testing.T) {
	se := &SendError{Code: 550, Err: errors.New("rejected")}
	assert.Contains(t, se.Error(), "550")

	plain := &SendError{Err: errors.New("rejected")}
	assert.Equal(t, "rejected", plain.Error())
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("welcome", "Hello {{ .Name | upper }}!", map[string]string{"Name": "sam"})
	require.NoError(t, err)
	assert.Equal(t, "Hello SAM!", out)
}

func TestRenderTemplateParseError(t *testing.T) {
	_, err := RenderTemplate("broken", "Hello {{ .Name", nil)
	assert.Error(t, err)
}
