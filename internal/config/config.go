package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	goconfig "github.com/tpodg/go-config"
)

const (
	DefaultConfigFileName = ".hostprep.yaml"
	// EnvPrefix prefixes environment overrides, e.g.
	// HOSTPREP_SERVERS_0_ROOT_PASSWORD.
	EnvPrefix      = "HOSTPREP"
	DefaultSSHPort = 22
	dotEnvFileName = ".env"
)

type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

type UserConfig struct {
	Name         string `yaml:"name"`
	SSHKey       string `yaml:"ssh_key"`
	Password     string `yaml:"password"`
	SudoPassword string `yaml:"sudo_password"`
}

type ServerConfig struct {
	Name             string         `yaml:"name"`
	Address          string         `yaml:"address"`
	User             UserConfig     `yaml:"user"`
	KnownHostsPath   string         `yaml:"known_hosts"`
	SSHConfigPath    string         `yaml:"ssh_config"`
	UseAgent         *bool          `yaml:"use_agent"`
	HandshakeTimeout time.Duration  `yaml:"handshake_timeout"`
	DefaultSSHPort   int            `yaml:"default_ssh_port"`
	SSHPort          int            `yaml:"ssh_port"`
	RootPassword     string         `yaml:"root_password"`
	Interactive      *bool          `yaml:"interactive"`
	StateDir         string         `yaml:"state_dir"`
	Tasks            map[string]any `yaml:"tasks"`
}

// Ports returns the port sshd listens on after a fresh install and the
// port it is moved to. Unset values fall back to 22 and to the default
// port respectively.
func (s ServerConfig) Ports() (int, int) {
	def := s.DefaultSSHPort
	if def <= 0 {
		def = DefaultSSHPort
	}
	target := s.SSHPort
	if target <= 0 {
		target = def
	}
	return def, target
}

func (s ServerConfig) IsInteractive() bool {
	return s.Interactive == nil || *s.Interactive
}

// Validate checks that every server has a unique name and an address.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	var errs []error
	for i, s := range c.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("servers[%d]: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Address == "" {
			errs = append(errs, fmt.Errorf("servers[%d]: address is required", i))
		}
		if s.SSHPort < 0 || s.SSHPort > 65535 || s.DefaultSSHPort < 0 || s.DefaultSSHPort > 65535 {
			errs = append(errs, fmt.Errorf("servers[%d]: ssh ports must be between 1 and 65535", i))
		}
	}
	return errors.Join(errs...)
}

// Load the configuration from the given file or default locations. A .env
// file next to the config file, or in the working directory, is loaded into
// the environment first so secrets can stay out of the YAML.
func Load(cfgFile string) (*Config, error) {
	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	c := goconfig.New()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
		}
		c.WithProviders(&goconfig.Yaml{Path: absPath})
	}

	c.WithProviders(&goconfig.Env{Prefix: EnvPrefix})

	cfg := &Config{}
	if err := c.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(cfgPath string) error {
	candidates := []string{dotEnvFileName}
	if cfgPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(cfgPath), dotEnvFileName)}, candidates...)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("failed to load %s: %w", candidate, err)
		}
		return nil
	}
	return nil
}

func findConfigFile(cfgFile string) (string, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return cfgFile, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, DefaultConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if _, err := os.Stat(DefaultConfigFileName); err == nil {
		return DefaultConfigFileName, nil
	}

	return "", nil
}
