package recipients

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	input := strings.NewReader("email,name,plan\na@x.com,Alice,pro\nb@x.com, Bob ,free\n")

	records, fields, err := ParseCSV(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"email", "name", "plan"}, fields)
	require.Len(t, records, 2)
	assert.Equal(t, "a@x.com", records[0].Email())
	assert.Equal(t, "Alice", records[0]["name"])
	assert.Equal(t, "Bob", records[1]["name"], "cell whitespace is trimmed")
}

func TestParseCSVEmptyInput(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestParseCSVHeaderOnly(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("email,name\n"))
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestParseCSVRaggedRow(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("email,name\na@x.com,Alice,extra\n"))
	assert.Error(t, err)
}

func TestRecipientEmailMissing(t *testing.T) {
	rec := Recipient{"name": "Alice"}
	assert.Empty(t, rec.Email())
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		rec  Recipient
		want string
	}{
		{
			name: "single brace",
			tmpl: "Hi {name}",
			rec:  Recipient{"name": "Sam"},
			want: "Hi Sam",
		},
		{
			name: "double brace",
			tmpl: "Hi {{name}}, your plan is {{plan}}",
			rec:  Recipient{"name": "Sam", "plan": "pro"},
			want: "Hi Sam, your plan is pro",
		},
		{
			name: "mixed syntaxes in one template",
			tmpl: "{{name}} / {name}",
			rec:  Recipient{"name": "Sam"},
			want: "Sam / Sam",
		},
		{
			name: "unmatched placeholder left verbatim",
			tmpl: "Hi {name}, code {missing}",
			rec:  Recipient{"name": "Sam"},
			want: "Hi Sam, code {missing}",
		},
		{
			name: "no placeholders",
			tmpl: "plain text",
			rec:  Recipient{"name": "Sam"},
			want: "plain text",
		},
		{
			name: "empty field value substitutes empty",
			tmpl: "Hi {name}!",
			rec:  Recipient{"name": ""},
			want: "Hi !",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.tmpl, tt.rec))
		})
	}
}
