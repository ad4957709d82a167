package packages

import (
	"embed"

	"github.com/tpodg/hostprep/internal/task/taskutil"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var configTemplates = taskutil.NewTemplates("packages", templatesFS, "templates/*.tmpl")
