package sshrestrict

import (
	"embed"

	"github.com/tpodg/hostprep/internal/task/taskutil"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var sshdTemplates = taskutil.NewTemplates("sshrestrict", templatesFS, "templates/*.tmpl")

type sshdConfigData struct {
	Port          int
	UseDNS        bool
	X11Forwarding bool
	MaxAuthTries  int
	AllowUsers    []string
}

func renderSSHDConfig(data sshdConfigData) (string, error) {
	return taskutil.Render(sshdTemplates, "sshd_config.tmpl", data)
}
