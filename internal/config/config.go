package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents server configuration
type Config struct {
	ListenAddr     string   `json:"listen_addr" yaml:"listen_addr" env:"HUDDLE_LISTEN_ADDR"`
	DatabasePath   string   `json:"database_path" yaml:"database_path" env:"HUDDLE_DATABASE_PATH"`
	LogLevel       string   `json:"log_level" yaml:"log_level" env:"HUDDLE_LOG_LEVEL"` // debug, info, warn, error, none
	LogPath        string   `json:"log_path" yaml:"log_path" env:"HUDDLE_LOG_PATH"`    // "-" for stderr
	TokenSecret    string   `json:"token_secret,omitempty" yaml:"token_secret,omitempty" env:"HUDDLE_TOKEN_SECRET"`
	TokenTTL       int      `json:"token_ttl_seconds" yaml:"token_ttl_seconds" env:"HUDDLE_TOKEN_TTL_SECONDS"`
	AdminToken     string   `json:"admin_token,omitempty" yaml:"admin_token,omitempty" env:"HUDDLE_ADMIN_TOKEN"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty" env:"HUDDLE_ALLOWED_ORIGINS" envSeparator:","`
	SendQueueSize  int      `json:"send_queue_size" yaml:"send_queue_size" env:"HUDDLE_SEND_QUEUE_SIZE"`
	MaxMessageSize int64    `json:"max_message_size" yaml:"max_message_size" env:"HUDDLE_MAX_MESSAGE_SIZE"`
	FabricShards   int      `json:"fabric_shards" yaml:"fabric_shards" env:"HUDDLE_FABRIC_SHARDS"`
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "huddle")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "huddle")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "huddle")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "huddle")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "huddle")
	}
}

func defaultConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "huddle")
		}
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "huddle")
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		ListenAddr:     "localhost:8937",
		DatabasePath:   filepath.Join(stateDir, "huddle.db"),
		LogLevel:       "info",
		LogPath:        "-",
		TokenTTL:       24 * 60 * 60,
		SendQueueSize:  256,
		MaxMessageSize: 8192,
		FabricShards:   16,
	}
}

// GetConfigPath returns the config path, honoring HUDDLE_CONFIG.
func GetConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("HUDDLE_CONFIG")); p != "" {
		return p
	}
	return filepath.Join(defaultConfigDir(), "config.json")
}

// Load loads configuration from file, then applies HUDDLE_* environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate reports configuration values the server cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl_seconds must be positive, got %d", c.TokenTTL)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("send_queue_size must be positive, got %d", c.SendQueueSize)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	if c.FabricShards <= 0 {
		return fmt.Errorf("fabric_shards must be positive, got %d", c.FabricShards)
	}
	return nil
}
