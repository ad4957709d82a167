// Package hosttest provides an in-memory host.Host for task tests. Hosts
// created through With share one World, so a connection override sees the
// same files and packages as the original login.
package hosttest

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/server"
)

type File struct {
	Content string
	Mode    fs.FileMode
}

// Command is one Run or Sudo call seen by the fake.
type Command struct {
	Address string
	User    string
	Sudo    bool
	PTY     bool
	Cmd     string
}

// Handler may answer a command before the built-in simulation does.
type Handler func(cmd Command) (output string, handled bool, err error)

type World struct {
	Files     map[string]File
	Dirs      map[string]bool
	Packages  map[string]bool
	Users     map[string]string
	Passwords map[string]string
	Locked    map[string]bool
	Members   map[string][]string
	// Links maps symlink paths to their targets.
	Links       map[string]string
	Unreachable map[int]bool
	// Refused lists users whose logins fail authentication.
	Refused  map[string]bool
	Commands []Command
	Edits    []string
	Handlers []Handler

	temps int
}

func NewWorld() *World {
	return &World{
		Files:       make(map[string]File),
		Dirs:        map[string]bool{"/": true},
		Packages:    make(map[string]bool),
		Users:       map[string]string{"root": "/root"},
		Passwords:   make(map[string]string),
		Locked:      make(map[string]bool),
		Members:     make(map[string][]string),
		Links:       make(map[string]string),
		Unreachable: make(map[int]bool),
		Refused:     make(map[string]bool),
	}
}

// SetFile stores a file and its parent directories.
func (w *World) SetFile(p, content string) {
	w.Files[p] = File{Content: content, Mode: 0o644}
	w.mkdirAll(path.Dir(p))
}

func (w *World) File(p string) (string, bool) {
	f, ok := w.Files[p]
	return f.Content, ok
}

func (w *World) Install(pkgs ...string) {
	for _, pkg := range pkgs {
		w.Packages[pkg] = true
	}
}

func (w *World) AddUser(name, home string) {
	w.Users[name] = home
	w.mkdirAll(home)
}

// Ran returns the commands containing substr.
func (w *World) Ran(substr string) []Command {
	var out []Command
	for _, c := range w.Commands {
		if strings.Contains(c.Cmd, substr) {
			out = append(out, c)
		}
	}
	return out
}

// EditsOf returns the recorded mutations of p.
func (w *World) EditsOf(p string) []string {
	var out []string
	for _, e := range w.Edits {
		if strings.HasSuffix(e, " "+p) {
			out = append(out, e)
		}
	}
	return out
}

func (w *World) OnCommand(h Handler) {
	w.Handlers = append(w.Handlers, h)
}

func (w *World) mkdirAll(p string) {
	for p != "/" && p != "." && p != "" {
		w.Dirs[p] = true
		p = path.Dir(p)
	}
}

func (w *World) edit(op, p string) {
	w.Edits = append(w.Edits, op+" "+p)
}

type Host struct {
	world    *World
	address  string
	user     string
	password string
}

var _ host.Host = (*Host)(nil)

// New returns a host with a fresh World.
func New(address, user string) *Host {
	return &Host{world: NewWorld(), address: address, user: user}
}

func (h *Host) World() *World    { return h.world }
func (h *Host) ID() string       { return "fake" }
func (h *Host) Address() string  { return h.address }
func (h *Host) User() string     { return h.user }
func (h *Host) Password() string { return h.password }

func (h *Host) With(o server.Override) (host.Host, error) {
	cp := *h
	if o.User != "" {
		cp.user = o.User
		cp.password = ""
	}
	if o.Password != "" {
		cp.password = o.Password
	}
	if o.Port > 0 {
		cp.address = server.WithPort(h.address, o.Port)
	}
	return &cp, nil
}

func (h *Host) reachable() error {
	if h.world.Unreachable[server.Port(h.address)] {
		return fmt.Errorf("failed to dial %s: %w", h.address, server.ErrUnreachable)
	}
	if h.world.Refused[h.user] {
		return fmt.Errorf("failed to establish ssh connection to %s: %w", h.address, server.ErrUnreachable)
	}
	return nil
}

func (h *Host) Run(_ context.Context, cmd string) (string, error) {
	return h.exec(Command{Address: h.address, User: h.user, Cmd: cmd})
}

func (h *Host) Sudo(_ context.Context, cmd string) (string, error) {
	return h.exec(Command{Address: h.address, User: h.user, Sudo: true, Cmd: cmd})
}

func (h *Host) SudoPTY(_ context.Context, cmd string) (string, error) {
	return h.exec(Command{Address: h.address, User: h.user, Sudo: true, PTY: true, Cmd: cmd})
}

func (h *Host) exec(c Command) (string, error) {
	if err := h.reachable(); err != nil {
		return "", err
	}
	h.world.Commands = append(h.world.Commands, c)
	for _, handler := range h.world.Handlers {
		if out, handled, err := handler(c); handled {
			return out, err
		}
	}
	return h.world.simulate(c)
}

func (h *Host) Exists(_ context.Context, p string) (bool, error) {
	if err := h.reachable(); err != nil {
		return false, err
	}
	_, file := h.world.Files[p]
	return file || h.world.Dirs[p], nil
}

func (h *Host) Contains(_ context.Context, p, pattern string) (bool, error) {
	if err := h.reachable(); err != nil {
		return false, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	f, ok := h.world.Files[p]
	if !ok {
		return false, nil
	}
	for _, line := range splitLines(f.Content) {
		if re.MatchString(line) {
			return true, nil
		}
	}
	return false, nil
}

func (h *Host) ReadFile(_ context.Context, p string) (string, error) {
	if err := h.reachable(); err != nil {
		return "", err
	}
	f, ok := h.world.Files[p]
	if !ok {
		return "", fmt.Errorf("read file %q: %w", p, fs.ErrNotExist)
	}
	return f.Content, nil
}

func (h *Host) WriteFile(_ context.Context, p, content string, mode fs.FileMode) error {
	if err := h.reachable(); err != nil {
		return err
	}
	h.world.Files[p] = File{Content: content, Mode: mode}
	h.world.edit("write", p)
	return nil
}

func (h *Host) WriteTemp(_ context.Context, content string) (string, error) {
	if err := h.reachable(); err != nil {
		return "", err
	}
	h.world.temps++
	p := fmt.Sprintf("/tmp/hostprep.%d", h.world.temps)
	h.world.Files[p] = File{Content: content, Mode: 0o600}
	h.world.edit("write", p)
	return p, nil
}

func (h *Host) CopyFile(_ context.Context, src, dst string) error {
	if err := h.reachable(); err != nil {
		return err
	}
	f, ok := h.world.Files[src]
	if !ok {
		return fmt.Errorf("copy %q to %q: %w", src, dst, fs.ErrNotExist)
	}
	h.world.Files[dst] = f
	h.world.edit("copy", dst)
	return nil
}

func (h *Host) Remove(_ context.Context, p string) error {
	if err := h.reachable(); err != nil {
		return err
	}
	h.world.remove(p)
	h.world.edit("remove", p)
	return nil
}

func (h *Host) Mkdir(_ context.Context, p string, _ fs.FileMode) error {
	if err := h.reachable(); err != nil {
		return err
	}
	h.world.mkdirAll(p)
	h.world.edit("mkdir", p)
	return nil
}

func (h *Host) Sed(_ context.Context, p, before, after string) error {
	if err := h.reachable(); err != nil {
		return err
	}
	re, err := regexp.Compile(before)
	if err != nil {
		return err
	}
	return h.world.rewrite(p, "sed", func(line string) string {
		return re.ReplaceAllLiteralString(line, after)
	})
}

var commentPrefix = regexp.MustCompile(`^([[:space:]]*)#[[:space:]]?`)

func (h *Host) Uncomment(_ context.Context, p, pattern string) error {
	if err := h.reachable(); err != nil {
		return err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	return h.world.rewrite(p, "uncomment", func(line string) string {
		if !re.MatchString(line) {
			return line
		}
		return commentPrefix.ReplaceAllString(line, "${1}")
	})
}

func (h *Host) Append(_ context.Context, p string, lines ...string) error {
	if err := h.reachable(); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	f, ok := h.world.Files[p]
	if !ok {
		f = File{Mode: 0o644}
	}
	for _, line := range lines {
		present := false
		for _, existing := range splitLines(f.Content) {
			if existing == line {
				present = true
				break
			}
		}
		if present {
			continue
		}
		if f.Content != "" && !strings.HasSuffix(f.Content, "\n") {
			f.Content += "\n"
		}
		f.Content += line + "\n"
	}
	h.world.Files[p] = f
	h.world.edit("append", p)
	return nil
}

func (w *World) rewrite(p, op string, fn func(string) string) error {
	f, ok := w.Files[p]
	if !ok {
		return fmt.Errorf("%s %q: %w", op, p, fs.ErrNotExist)
	}
	trailing := strings.HasSuffix(f.Content, "\n")
	lines := splitLines(f.Content)
	for i, line := range lines {
		lines[i] = fn(line)
	}
	f.Content = strings.Join(lines, "\n")
	if trailing {
		f.Content += "\n"
	}
	w.Files[p] = f
	w.edit(op, p)
	return nil
}

func (w *World) remove(p string) {
	delete(w.Files, p)
	delete(w.Dirs, p)
	prefix := strings.TrimSuffix(p, "/") + "/"
	for name := range w.Files {
		if strings.HasPrefix(name, prefix) {
			delete(w.Files, name)
		}
	}
	for name := range w.Dirs {
		if strings.HasPrefix(name, prefix) {
			delete(w.Dirs, name)
		}
	}
}

func (w *World) installed() []string {
	out := make([]string, 0, len(w.Packages))
	for pkg, ok := range w.Packages {
		if ok {
			out = append(out, pkg)
		}
	}
	sort.Strings(out)
	return out
}

func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
