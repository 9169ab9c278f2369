package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the protocanvas server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	History   HistoryConfig   `yaml:"history"`
	Providers ProvidersConfig `yaml:"providers"`
	Publish   PublishConfig   `yaml:"publish"`
	RunMode   RunModeConfig   `yaml:"runmode"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	Version string `yaml:"version"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

type StoreConfig struct {
	Driver  string `yaml:"driver"` // memory | sqlite | postgres
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

type HistoryConfig struct {
	// Persist keeps transcripts in the store. Off, every run session starts
	// a fresh conversation.
	Persist bool `yaml:"persist"`
}

type VendorConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type ProvidersConfig struct {
	Default   string       `yaml:"default"`
	Claude    string       `yaml:"claude"`
	OpenAI    VendorConfig `yaml:"openai"`
	DeepSeek  VendorConfig `yaml:"deepseek"`
	Anthropic VendorConfig `yaml:"anthropic"`
	Gemini    VendorConfig `yaml:"gemini"`
}

type PublishConfig struct {
	Capacity int `yaml:"capacity"`
}

type RunModeConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, Version: "0.1.0"},
		Log:     LogConfig{Level: "info", Format: "console"},
		Store:   StoreConfig{Driver: "memory", DataDir: defaultDataDir()},
		Publish: PublishConfig{Capacity: 1024},
		RunMode: RunModeConfig{SessionTTL: 30 * time.Minute},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "protocanvas",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".protocanvas"
	}
	return home + "/.protocanvas"
}

// Load reads configuration in order: defaults, the YAML file named by
// PROTOCANVAS_CONFIG (or path, when non-empty), a .env file in the working
// directory, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("PROTOCANVAS_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = envInt("PROTOCANVAS_PORT", cfg.Server.Port)
	cfg.Server.Version = envStr("PROTOCANVAS_VERSION", cfg.Server.Version)
	cfg.Log.Level = envStr("PROTOCANVAS_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envStr("PROTOCANVAS_LOG_FORMAT", cfg.Log.Format)

	cfg.Store.Driver = envStr("PROTOCANVAS_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DSN = envStr("PROTOCANVAS_STORE_DSN", cfg.Store.DSN)
	cfg.Store.DataDir = envStr("PROTOCANVAS_DATA_DIR", cfg.Store.DataDir)
	cfg.History.Persist = envBool("PROTOCANVAS_PERSIST_HISTORY", cfg.History.Persist)

	p := &cfg.Providers
	p.Default = envStr("PROTOCANVAS_PROVIDER", p.Default)
	p.Claude = envStr("PROTOCANVAS_CLAUDE_PROVIDER", p.Claude)
	p.OpenAI.APIKey = envStr("OPENAI_API_KEY", p.OpenAI.APIKey)
	p.OpenAI.BaseURL = envStr("OPENAI_BASE_URL", p.OpenAI.BaseURL)
	p.OpenAI.Model = envStr("OPENAI_MODEL", p.OpenAI.Model)
	p.DeepSeek.APIKey = envStr("DEEPSEEK_API_KEY", p.DeepSeek.APIKey)
	p.DeepSeek.Model = envStr("DEEPSEEK_MODEL", p.DeepSeek.Model)
	p.Anthropic.APIKey = envStr("ANTHROPIC_API_KEY", p.Anthropic.APIKey)
	p.Anthropic.Model = envStr("ANTHROPIC_MODEL", p.Anthropic.Model)
	p.Gemini.APIKey = envStr("GEMINI_API_KEY", p.Gemini.APIKey)
	p.Gemini.Model = envStr("GEMINI_MODEL", p.Gemini.Model)

	cfg.Publish.Capacity = envInt("PROTOCANVAS_PUBLISH_CAPACITY", cfg.Publish.Capacity)
	cfg.RunMode.SessionTTL = envDuration("PROTOCANVAS_SESSION_TTL", cfg.RunMode.SessionTTL)

	if keys := os.Getenv("PROTOCANVAS_API_KEYS"); keys != "" {
		cfg.Auth.APIKeys = splitList(keys)
	}

	cfg.Telemetry.Enabled = envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
