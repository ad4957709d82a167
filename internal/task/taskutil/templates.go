package taskutil

import (
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// NewTemplates parses the files matching patterns in fsys. Templates get the
// sprig text functions and fail on missing keys.
func NewTemplates(name string, fsys fs.FS, patterns ...string) *template.Template {
	return template.Must(template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").ParseFS(fsys, patterns...))
}

// Render executes the named template into a string.
func Render(t *template.Template, name string, data any) (string, error) {
	var buf strings.Builder
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
