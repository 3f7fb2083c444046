package mail

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// RenderTemplate renders an operator-authored Go template with sprig helper
// functions available. Used for rich transactional bodies supplied with a
// send request; per-recipient placeholder substitution is handled separately
// by the recipients package.
func RenderTemplate(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", name, err)
	}
	return buf.String(), nil
}
