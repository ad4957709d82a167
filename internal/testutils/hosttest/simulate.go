package hosttest

import (
	"fmt"
	"strings"
)

const (
	aptInstall = "DEBIAN_FRONTEND=noninteractive apt-get install -qqy "
	aptPurge   = "DEBIAN_FRONTEND=noninteractive apt-get purge -qqy "
	dpkgList   = "dpkg -l | awk '/^ii/ {print $2}'"
	tzdata     = "dpkg-reconfigure --frontend noninteractive tzdata"
	zoneinfo   = "/usr/share/zoneinfo/"
)

// simulate covers the commands whose effects tasks read back later. Anything
// else succeeds with empty output.
func (w *World) simulate(c Command) (string, error) {
	cmd := strings.TrimSpace(c.Cmd)
	fields := strings.Fields(cmd)

	switch {
	case strings.HasPrefix(cmd, aptInstall):
		for _, pkg := range strings.Fields(strings.TrimPrefix(cmd, aptInstall)) {
			w.Packages[pkg] = true
		}
	case strings.HasPrefix(cmd, aptPurge):
		for _, pkg := range strings.Fields(strings.TrimPrefix(cmd, aptPurge)) {
			delete(w.Packages, pkg)
		}
	case cmd == dpkgList:
		return strings.Join(w.installed(), "\n") + "\n", nil
	case len(fields) == 4 && fields[0] == "ln" && fields[1] == "-sf":
		w.Links[strings.Trim(fields[3], "'")] = strings.Trim(fields[2], "'")
	case cmd == tzdata:
		// tzdata trusts the /etc/localtime link and rewrites /etc/timezone from it.
		if zone, ok := strings.CutPrefix(w.Links["/etc/localtime"], zoneinfo); ok {
			f, exists := w.Files["/etc/timezone"]
			if !exists {
				f.Mode = 0o644
			}
			f.Content = zone + "\n"
			w.Files["/etc/timezone"] = f
		}
	case cmd == "id -un":
		return c.User + "\n", nil
	case len(fields) == 3 && fields[0] == "getent" && fields[1] == "passwd":
		name := strings.Trim(fields[2], "'")
		home, ok := w.Users[name]
		if !ok {
			return "", fmt.Errorf("command %q failed: exit status 2", cmd)
		}
		return fmt.Sprintf("%s:x:1000:1000::%s:/bin/bash\n", name, home), nil
	case len(fields) > 0 && fields[0] == "useradd":
		name := strings.Trim(fields[len(fields)-1], "'")
		if _, ok := w.Users[name]; ok {
			return fmt.Sprintf("useradd: user '%s' already exists\n", name), fmt.Errorf("command %q failed: exit status 9", cmd)
		}
		w.AddUser(name, "/home/"+name)
		for i, f := range fields {
			if f == "-G" && i+1 < len(fields) {
				group := strings.Trim(fields[i+1], "'")
				w.Members[group] = append(w.Members[group], name)
			}
		}
	case len(fields) == 3 && fields[0] == "chpasswd" && fields[1] == "<":
		f, ok := w.Files[strings.Trim(fields[2], "'")]
		if !ok {
			return "", fmt.Errorf("command %q failed: exit status 1", cmd)
		}
		for _, line := range splitLines(f.Content) {
			if user, pass, ok := strings.Cut(line, ":"); ok {
				w.Passwords[user] = pass
				delete(w.Locked, user)
			}
		}
	case len(fields) == 3 && fields[0] == "usermod" && fields[1] == "-L":
		w.Locked[strings.Trim(fields[2], "'")] = true
	case len(fields) == 2 && fields[0] == "groupadd":
		f := w.Files["/etc/group"]
		f.Content += strings.Trim(fields[1], "'") + ":x:27:\n"
		w.Files["/etc/group"] = f
	case len(fields) == 2 && fields[0] == "groupdel":
		group := strings.Trim(fields[1], "'")
		f := w.Files["/etc/group"]
		var kept []string
		for _, line := range splitLines(f.Content) {
			if !strings.HasPrefix(line, group+":") {
				kept = append(kept, line)
			}
		}
		f.Content = ""
		if len(kept) > 0 {
			f.Content = strings.Join(kept, "\n") + "\n"
		}
		w.Files["/etc/group"] = f
		delete(w.Members, group)
	case len(fields) == 3 && fields[0] == "adduser":
		group := strings.Trim(fields[2], "'")
		w.Members[group] = append(w.Members[group], strings.Trim(fields[1], "'"))
	case len(fields) == 3 && fields[0] == "deluser" && fields[1] == "--remove-home":
		name := strings.Trim(fields[2], "'")
		if home, ok := w.Users[name]; ok {
			w.remove(home)
			delete(w.Users, name)
		}
	}
	return "", nil
}
