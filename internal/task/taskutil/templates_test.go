package taskutil

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestRender(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/greeting.tmpl": {Data: []byte(`{{ define "greeting" }}hello {{ .Name | upper }} {{ .Arg | quote }}{{ end }}`)},
	}
	tmpl := NewTemplates("test", fsys, "templates/*.tmpl")

	out, err := Render(tmpl, "greeting", map[string]string{"Name": "alice", "Arg": "it's"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != `hello ALICE "it's"` {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := Render(tmpl, "greeting", map[string]string{"Name": "alice"}); err == nil || !strings.Contains(err.Error(), "greeting") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
