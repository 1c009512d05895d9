package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultPort          = 32180
	DefaultHost          = "127.0.0.1"
	DefaultUserCSVPath   = "data/users.csv"
	DefaultLogDir        = "logs"
	DefaultLogLevel      = "info"
	DefaultBufferSize    = 100
	DefaultAdminPassword = "change_me_in_production"
	DefaultPollTimeout   = 500 * time.Millisecond
)

// Config holds the application configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Device is an optional substring match against PC/SC reader names.
	// Empty selects the first known contactless reader.
	Device string `yaml:"device"`

	UserCSVPath   string `yaml:"user_csv_path"`
	MaxBufferSize int    `yaml:"max_scan_buffer_size"`

	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`

	AdminPassword string `yaml:"admin_password"`

	// DebugMode swaps the hardware transport for the synthetic one.
	DebugMode bool `yaml:"debug_mode"`

	// PollTimeout bounds a single poll attempt in continuous mode.
	PollTimeout Duration `yaml:"poll_timeout"`
}

// Duration parses human-readable values like "250ms" from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads configuration with the following precedence: defaults, then
// an optional YAML file (path from NFC_BACKEND_CONFIG), then individual
// environment variable overrides.
func Load() *Config {
	cfg := &Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		UserCSVPath:   DefaultUserCSVPath,
		MaxBufferSize: DefaultBufferSize,
		LogDir:        DefaultLogDir,
		LogLevel:      DefaultLogLevel,
		AdminPassword: DefaultAdminPassword,
		PollTimeout:   Duration(DefaultPollTimeout),
	}

	if path := os.Getenv("NFC_BACKEND_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			// Config file problems should be visible immediately, but the
			// defaults still give a usable agent.
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
	}

	cfg.loadEnv()
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	if host := os.Getenv("NFC_BACKEND_HOST"); host != "" {
		c.Host = host
	}
	if portStr := os.Getenv("NFC_BACKEND_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port < 65536 {
			c.Port = port
		}
	}
	if device := os.Getenv("NFC_BACKEND_DEVICE"); device != "" {
		c.Device = device
	}
	if path := os.Getenv("NFC_BACKEND_USER_CSV"); path != "" {
		c.UserCSVPath = path
	}
	if sizeStr := os.Getenv("NFC_BACKEND_BUFFER_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			c.MaxBufferSize = size
		}
	}
	if dir := os.Getenv("NFC_BACKEND_LOG_DIR"); dir != "" {
		c.LogDir = dir
	}
	if level := os.Getenv("NFC_BACKEND_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if pw := os.Getenv("NFC_BACKEND_ADMIN_PASSWORD"); pw != "" {
		c.AdminPassword = pw
	}
	if raw := os.Getenv("NFC_BACKEND_POLL_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			c.PollTimeout = Duration(d)
		}
	}
	if debug := os.Getenv("NFC_BACKEND_DEBUG"); debug == "1" || debug == "true" {
		c.DebugMode = true
	}
}

// Address returns the formatted host:port address string.
func (c *Config) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
