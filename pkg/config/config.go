// Package config loads memoreez settings. Sources are applied in order:
// built-in defaults, an optional YAML file, an optional .env file, then
// MEMOREEZ_* environment variables. Binaries apply their flags last.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TransportHTTP      = "http"
	TransportWebsocket = "ws"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	Addr     string   `yaml:"addr"`
	Database string   `yaml:"database"`
	Colors   []string `yaml:"colors"`
	DumpDir  string   `yaml:"dump_dir"`
}

type ClientConfig struct {
	Addr           string        `yaml:"addr"`
	Transport      string        `yaml:"transport"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HideDelay      time.Duration `yaml:"hide_delay"`
	Columns        int           `yaml:"columns"`
	LogFile        string        `yaml:"log_file"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:     "localhost:8080",
			Database: "memoreez.sqlite3",
			Colors:   []string{"black", "blue", "brown", "green", "navy", "purple", "red", "yellow"},
			DumpDir:  os.TempDir(),
		},
		Client: ClientConfig{
			Addr:           "127.0.0.1:8080",
			Transport:      TransportHTTP,
			RequestTimeout: 10 * time.Second,
			HideDelay:      500 * time.Millisecond,
			Columns:        4,
			LogFile:        filepath.Join(os.TempDir(), "memoreez-client.log"),
		},
	}
}

// Load builds a Config. An empty path skips the YAML file; envFile is loaded
// if it exists and never overrides variables already set in the environment.
// The result is not validated, callers validate the section they use once
// their flags are applied.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MEMOREEZ_SERVER_ADDR", &c.Server.Addr)
	str("MEMOREEZ_DATABASE", &c.Server.Database)
	str("MEMOREEZ_DUMP_DIR", &c.Server.DumpDir)
	str("MEMOREEZ_CLIENT_ADDR", &c.Client.Addr)
	str("MEMOREEZ_TRANSPORT", &c.Client.Transport)
	str("MEMOREEZ_LOG_FILE", &c.Client.LogFile)

	if v, ok := lookup("MEMOREEZ_COLORS"); ok && v != "" {
		c.Server.Colors = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if v, ok := lookup("MEMOREEZ_COLUMNS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEMOREEZ_COLUMNS: %w", err)
		}
		c.Client.Columns = n
	}
	for key, dst := range map[string]*time.Duration{
		"MEMOREEZ_REQUEST_TIMEOUT": &c.Client.RequestTimeout,
		"MEMOREEZ_HIDE_DELAY":      &c.Client.HideDelay,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c Config) Validate() error {
	return errors.Join(c.Server.Validate(), c.Client.Validate())
}

func (c ServerConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("server.database is empty"))
	}
	if len(c.Colors) == 0 {
		errs = append(errs, errors.New("server.colors needs at least one color"))
	}
	seen := make(map[string]bool, len(c.Colors))
	for _, color := range c.Colors {
		if seen[color] {
			errs = append(errs, fmt.Errorf("server.colors lists %q twice", color))
		}
		seen[color] = true
	}
	return errors.Join(errs...)
}

func (c ClientConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("client.addr is empty"))
	}
	if c.Transport != TransportHTTP && c.Transport != TransportWebsocket {
		errs = append(errs, fmt.Errorf("client.transport must be %q or %q, got %q", TransportHTTP, TransportWebsocket, c.Transport))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("client.request_timeout is negative"))
	}
	if c.HideDelay < 0 {
		errs = append(errs, errors.New("client.hide_delay is negative"))
	}
	if c.Columns <= 0 {
		errs = append(errs, errors.New("client.columns must be positive"))
	}
	return errors.Join(errs...)
}
