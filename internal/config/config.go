package config

import (
	"fmt"
	"os"
	"time"

	"github.com/machine-hub/server/internal/dashboard"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	Static    StaticConfig    `yaml:"static"`
	Log       LogConfig       `yaml:"log"`
	Mock      MockConfig      `yaml:"mock"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type CategoryConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

type DashboardConfig struct {
	Categories []CategoryConfig `yaml:"categories"`
}

type WebSocketConfig struct {
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxConnections int           `yaml:"max_connections"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	// DSN selects PostgreSQL when set; otherwise entities live in memory.
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type StaticConfig struct {
	Dir          string `yaml:"dir"`
	MaxImageSize int    `yaml:"max_image_size"`
	JPEGQuality  int    `yaml:"jpeg_quality"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MockConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

func defaultConfig() *Config {
	categories := make([]CategoryConfig, 0, len(dashboard.DefaultCategories))
	for _, c := range dashboard.DefaultCategories {
		categories = append(categories, CategoryConfig{Name: c.Name, Kind: string(c.Kind)})
	}

	return &Config{
		Server: ServerConfig{
			Port:           9000,
			Host:           "0.0.0.0",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 16,
			MaxBodyBytes:   8 << 20,
		},
		Dashboard: DashboardConfig{
			Categories: categories,
		},
		WebSocket: WebSocketConfig{
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Static: StaticConfig{
			Dir:          "static",
			MaxImageSize: 800,
			JPEGQuality:  75,
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mock: MockConfig{
			Interval: 2 * time.Second,
		},
	}
}

// Load reads the yaml file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.WebSocket.MaxConnections < 0 {
		return fmt.Errorf("websocket.max_connections must not be negative")
	}
	if c.WebSocket.WriteTimeout < 0 || c.WebSocket.PingInterval < 0 {
		return fmt.Errorf("websocket.write_timeout and websocket.ping_interval must not be negative")
	}
	if c.Static.JPEGQuality < 1 || c.Static.JPEGQuality > 100 {
		return fmt.Errorf("static.jpeg_quality %d must be within 1..100", c.Static.JPEGQuality)
	}
	if c.Static.MaxImageSize <= 0 {
		return fmt.Errorf("static.max_image_size must be positive")
	}
	seen := make(map[string]bool, len(c.Dashboard.Categories))
	for _, cat := range c.Dashboard.Categories {
		if cat.Name == "" {
			return fmt.Errorf("dashboard category with empty name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("dashboard category %q listed twice", cat.Name)
		}
		seen[cat.Name] = true
	}
	return nil
}

// Categories converts the configured categories for the dashboard service.
func (c *Config) Categories() []dashboard.Category {
	result := make([]dashboard.Category, 0, len(c.Dashboard.Categories))
	for _, cat := range c.Dashboard.Categories {
		result = append(result, dashboard.Category{Name: cat.Name, Kind: dashboard.Kind(cat.Kind)})
	}
	return result
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
