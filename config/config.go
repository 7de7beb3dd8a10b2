package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultConnectTimeout        = 30 * time.Second
	DefaultUploadFolderTimeout   = 5 * time.Minute
	DefaultSyncFolderTimeout     = 5 * time.Minute
	DefaultDownloadFolderTimeout = 10 * time.Minute
)

type Config struct {
	Logging  Logging   `toml:"logging"`
	Timeouts Timeouts  `toml:"timeouts"`
	Profiles []Profile `toml:"profiles"`
	Jobs     []Job     `toml:"jobs"`
}

type Logging struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, console
	Output string `toml:"output"`
}

// Timeouts bounds connect and folder-level transfers. File operations are not
// bounded here and rely on the transport's own defaults.
type Timeouts struct {
	Connect        Duration `toml:"connect"`
	UploadFolder   Duration `toml:"upload_folder"`
	SyncFolder     Duration `toml:"sync_folder"`
	DownloadFolder Duration `toml:"download_folder"`
}

// Profile describes one remote server. Name is the identity key.
type Profile struct {
	Name     string `toml:"name"`
	Protocol string `toml:"protocol"` // ftp, sftp, local
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Path     string `toml:"path"` // remote root
	Secure   bool   `toml:"secure"`
}

// Job is a folder sync run on a cron schedule against a named profile.
type Job struct {
	Name       string `toml:"name"`
	Cron       string `toml:"cron"`
	Profile    string `toml:"profile"`
	LocalPath  string `toml:"local_path"`
	RemotePath string `toml:"remote_path"`
}

// Duration is a time.Duration written as "90s" or "5m" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// WithDefaults returns a copy of the profile with default values applied.
func (p Profile) WithDefaults() Profile {
	if p.Protocol == "" {
		p.Protocol = "ftp"
	}
	if p.Port == 0 {
		switch p.Protocol {
		case "sftp":
			p.Port = 22
		case "ftp":
			p.Port = 21
		}
	}
	if p.Path == "" {
		p.Path = "/"
	}
	return p
}

// Addr returns host:port.
func (p Profile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// WithDefaults returns a copy of the timeouts with zero values replaced.
func (t Timeouts) WithDefaults() Timeouts {
	if t.Connect == 0 {
		t.Connect = Duration(DefaultConnectTimeout)
	}
	if t.UploadFolder == 0 {
		t.UploadFolder = Duration(DefaultUploadFolderTimeout)
	}
	if t.SyncFolder == 0 {
		t.SyncFolder = Duration(DefaultSyncFolderTimeout)
	}
	if t.DownloadFolder == 0 {
		t.DownloadFolder = Duration(DefaultDownloadFolderTimeout)
	}
	return t
}

func (c Config) WithDefaults() Config {
	c.Timeouts = c.Timeouts.WithDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	profiles := make([]Profile, len(c.Profiles))
	for i, p := range c.Profiles {
		profiles[i] = p.WithDefaults()
	}
	c.Profiles = profiles
	return c
}

// Validate checks profile names are set and unique and that jobs reference
// known profiles.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profile with host %q has no name", p.Host)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile %q", p.Name)
		}
		switch p.Protocol {
		case "", "ftp", "sftp", "local":
		default:
			return fmt.Errorf("profile %q: unknown protocol %q", p.Name, p.Protocol)
		}
		seen[p.Name] = true
	}
	for _, j := range c.Jobs {
		if !seen[j.Profile] {
			return fmt.Errorf("job %q references unknown profile %q", j.Name, j.Profile)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
