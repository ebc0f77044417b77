// Package config loads the credential/configuration file shared by the
// poller and the admin CLI, and performs the advisory permission posture
// check on it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file lives unless HEALTHWATCH_CONFIG
// points elsewhere. The file holds SMTP credentials and must be readable
// only by its owner; see PermissionWarning.
const DefaultPath = "/etc/healthwatch/config.yaml"

const envOverride = "HEALTHWATCH_CONFIG"

type Config struct {
	API      API      `yaml:"api"`
	Registry Registry `yaml:"registry"`
	SMTP     SMTP     `yaml:"smtp"`
	Settings Settings `yaml:"settings"`
}

// API locates the remote queue service.
type API struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// Registry locates the remote monitor registry database.
type Registry struct {
	DatabaseURL string `yaml:"database_url"`
}

// SMTP holds mail submission settings. UseSSL selects implicit TLS;
// otherwise the session upgrades with STARTTLS.
type SMTP struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
	UseSSL bool   `yaml:"use_ssl"`
}

type Settings struct {
	// Squelch archives alerts without emailing them; the outbox is still
	// cleared as if every send succeeded.
	Squelch bool `yaml:"squelch"`
	// Timezone is "utc" or "local" (default) and controls every displayed
	// timestamp.
	Timezone string `yaml:"timezone"`
	// SweepMinute is the minute field of the remote sweep schedule, used
	// only for the next-sweep estimate in status output.
	SweepMinute string `yaml:"sweep_minute"`
	// ArchivePath overrides the default logs/email_log next to the
	// config file.
	ArchivePath string `yaml:"archive_path"`
	// DeployCommand is executed verbatim by the deploy subcommand.
	DeployCommand string `yaml:"deploy_command"`
}

// Path returns the active config file location.
func Path() string {
	if p := os.Getenv(envOverride); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads and validates the config file. A missing or unreadable file
// is a configuration error; callers treat it as fatal before any network
// activity.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Settings.SweepMinute == "" {
		cfg.Settings.SweepMinute = "*/5"
	}
	if cfg.Settings.ArchivePath == "" {
		cfg.Settings.ArchivePath = filepath.Join(filepath.Dir(path), "logs", "email_log")
	}
	if cfg.Settings.DeployCommand == "" {
		cfg.Settings.DeployCommand = "npx wrangler deploy"
	}
	return cfg, nil
}

// RequireAPI validates the fields the poller needs before it goes near the
// network.
func (c *Config) RequireAPI() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	if c.API.Token == "" {
		return fmt.Errorf("config: api.token is required")
	}
	return nil
}

// RequireSMTP validates mail submission settings; skipped when squelched.
func (c *Config) RequireSMTP() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("config: smtp.host is required")
	}
	if c.SMTP.User == "" {
		return fmt.Errorf("config: smtp.user is required")
	}
	if c.SMTP.Pass == "" {
		return fmt.Errorf("config: smtp.pass is required")
	}
	return nil
}

// RequireRegistry validates the registry connection string the admin CLI
// needs.
func (c *Config) RequireRegistry() error {
	if c.Registry.DatabaseURL == "" {
		return fmt.Errorf("config: registry.database_url is required")
	}
	return nil
}

// PermissionWarning inspects the config file's access bits. Any group or
// other permission yields a warning for the console and for every outgoing
// email of the run, since the file carries SMTP credentials. Advisory only:
// delivery proceeds regardless, and errors inspecting the file are ignored.
func PermissionWarning(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Sprintf(
			"SECURITY WARNING: %s is accessible to other users (mode %04o); restrict it with chmod 600",
			path, perm)
	}
	return ""
}
