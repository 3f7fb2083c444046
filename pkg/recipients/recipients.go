// Package recipients turns uploaded CSV files into recipient records and
// substitutes per-recipient template variables into subject and body text.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EmailField is the record key holding the recipient's address.
const EmailField = "email"

// Recipient is one row of arbitrary key/value fields; keys come from the
// CSV header and are used only as substitution sources.
type Recipient map[string]string

// Email returns the recipient's address field, empty when absent.
func (r Recipient) Email() string {
	return strings.TrimSpace(r[EmailField])
}

// ErrNoRecipients is returned for an empty or header-only CSV file.
var ErrNoRecipients = errors.New("recipient set is empty")

// ParseCSV reads a CSV file whose header row names the template variables.
// It returns the recipient records plus the set of field names encountered.
func ParseCSV(r io.Reader) ([]Recipient, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrNoRecipients
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}

	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = strings.TrimSpace(h)
	}

	var records []Recipient
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}

		rec := make(Recipient, len(fields))
		for i, field := range fields {
			if i < len(row) {
				rec[field] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, nil, ErrNoRecipients
	}
	return records, fields, nil
}

// Substitute replaces every {{key}} and {key} placeholder with the matching
// recipient field. Placeholders without a matching field are left verbatim:
// the variable set is author-supplied and may legitimately omit optional
// fields.
func Substitute(tmpl string, rec Recipient) string {
	out := tmpl
	for key, value := range rec {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}
