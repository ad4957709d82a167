package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/tpodg/hostprep/internal/config"
	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/prompt"
	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/task"
)

// Options are the process-wide switches from the command line.
type Options struct {
	Verbose        bool
	JSON           bool
	NonInteractive bool
	// Out receives log output; stdout when nil.
	Out io.Writer
}

type App struct {
	Logger zerolog.Logger
	Config *config.Config
	Prompt prompt.Prompter
	opts   Options
}

func New(cfg *config.Config, opts Options) *App {
	return &App{
		Logger: NewLogger(opts),
		Config: cfg,
		Prompt: prompt.NewTerminal(),
		opts:   opts,
	}
}

var levelStyles = map[string]lipgloss.Style{
	zerolog.LevelWarnValue:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
	zerolog.LevelErrorValue: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
}

// NewLogger returns a console logger, or a JSON one when requested. Verbose
// selects debug level.
func NewLogger(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var logger zerolog.Logger
	if opts.JSON {
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			s, ok := i.(string)
			if !ok {
				return ""
			}
			if style, ok := levelStyles[s]; ok {
				return style.Render(strings.ToUpper(s))
			}
			return strings.ToUpper(s)
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	}

	if opts.Verbose {
		return logger.Level(zerolog.DebugLevel)
	}
	return logger.Level(zerolog.InfoLevel)
}

// Interactive reports whether operations on s may prompt the operator.
func (a *App) Interactive(s config.ServerConfig) bool {
	return !a.opts.NonInteractive && s.IsInteractive() && prompt.IsTerminal()
}

// NewServer builds the SSH connection for s as the login user on the
// target ssh port. Aliases from the ssh client config fill in missing
// connection details.
func (a *App) NewServer(s config.ServerConfig) (*server.SSHServer, task.Settings, error) {
	sshCfg, err := server.LoadSSHConfig(s.SSHConfigPath)
	if err != nil {
		return nil, task.Settings{}, err
	}
	ep, err := server.ResolveAlias(sshCfg, s.Address, server.Endpoint{
		Address: s.Address,
		User:    s.User.Name,
		SSHKey:  s.User.SSHKey,
	})
	if err != nil {
		return nil, task.Settings{}, fmt.Errorf("server %s: %w", s.Name, err)
	}
	if ep.User == "" {
		return nil, task.Settings{}, fmt.Errorf("server %s: user.name is required", s.Name)
	}

	defaultPort, targetPort := s.Ports()
	if s.SSHPort <= 0 {
		targetPort = server.Port(ep.Address)
	}

	sudoPassword := s.User.SudoPassword
	if sudoPassword == "" {
		sudoPassword = s.User.Password
	}
	srv := server.NewSSHServer(s.Name, server.WithPort(ep.Address, targetPort), server.User{
		Name:         ep.User,
		SSHKey:       ep.SSHKey,
		Password:     s.User.Password,
		SudoPassword: sudoPassword,
	}, s.KnownHostsPath, server.SSHOptions{
		UseAgent:         s.UseAgent,
		HandshakeTimeout: s.HandshakeTimeout,
	})

	settings := task.Settings{
		LoginUser:      ep.User,
		LoginPassword:  s.User.Password,
		DefaultSSHPort: defaultPort,
		SSHPort:        targetPort,
		RootPassword:   s.RootPassword,
		Interactive:    a.Interactive(s),
	}
	return srv, settings, nil
}

// Environment returns the task environment for s.
func (a *App) Environment(s config.ServerConfig) (*task.Env, error) {
	srv, settings, err := a.NewServer(s)
	if err != nil {
		return nil, err
	}
	logger := a.Logger.With().Str("server", s.Name).Logger()
	h := host.NewRemote(srv, settings.LoginUser, logger)
	return &task.Env{
		Host:     h,
		State:    state.NewStore(h, s.StateDir),
		Prompt:   a.Prompt,
		Settings: settings,
		Logger:   logger,
	}, nil
}
