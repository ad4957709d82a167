package catalog

import (
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/firewall"
	"github.com/tpodg/hostprep/internal/task/packages"
	"github.com/tpodg/hostprep/internal/task/rootaccess"
	"github.com/tpodg/hostprep/internal/task/sources"
	"github.com/tpodg/hostprep/internal/task/sshkey"
	"github.com/tpodg/hostprep/internal/task/sshport"
	"github.com/tpodg/hostprep/internal/task/sshrestrict"
	"github.com/tpodg/hostprep/internal/task/timezone"
	"github.com/tpodg/hostprep/internal/task/upgrade"
)

// Builtins returns the built-in task specifications in execution order.
// The ssh port moves first while root can still log in on the default port,
// and ssh is only restricted once a key has been uploaded.
func Builtins() []task.Spec {
	return []task.Spec{
		sshport.Spec(),
		rootaccess.Spec(),
		sshkey.Spec(),
		sshrestrict.Spec(),
		sources.Spec(),
		upgrade.Spec(),
		firewall.Spec(),
		packages.Spec(),
		timezone.Spec(),
	}
}
