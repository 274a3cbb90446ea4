package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the coordinator process.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Game   GameConfig   `yaml:"game"`
	NATS   NATSConfig   `yaml:"nats"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Console switches to human readable output
	Console bool `yaml:"console"`
}

type GameConfig struct {
	DefaultTimeLimitSec int `yaml:"default_time_limit_sec"`
	DefaultCountdownSec int `yaml:"default_countdown_sec"`
	SweepIntervalMs     int `yaml:"sweep_interval_ms"`
}

// NATSConfig configures the optional event mirror. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Game: GameConfig{
			DefaultTimeLimitSec: 30,
			DefaultCountdownSec: 3,
			SweepIntervalMs:     1000,
		},
		NATS: NATSConfig{
			StreamName:    "BUZZER_EVENTS",
			SubjectPrefix: "buzzer.sessions",
		},
	}
}

// NewConfigFromEnv loads the YAML file named by BUZZER_CONFIG, if any, and
// applies environment overrides on top.
func NewConfigFromEnv() (Config, error) {
	return Load(os.Getenv("BUZZER_CONFIG"))
}

// Load reads an optional YAML file over the defaults, then applies
// environment overrides and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	var err error
	if c.Game.DefaultTimeLimitSec, err = getEnvAsInt("GAME_DEFAULT_TIME_LIMIT_SEC", c.Game.DefaultTimeLimitSec); err != nil {
		return err
	}
	if c.Game.DefaultCountdownSec, err = getEnvAsInt("GAME_DEFAULT_COUNTDOWN_SEC", c.Game.DefaultCountdownSec); err != nil {
		return err
	}
	if c.Game.SweepIntervalMs, err = getEnvAsInt("GAME_SWEEP_INTERVAL_MS", c.Game.SweepIntervalMs); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Game.DefaultTimeLimitSec <= 0 {
		errs = append(errs, errors.New("default time limit must be positive"))
	}
	if c.Game.DefaultCountdownSec < 0 {
		errs = append(errs, errors.New("default countdown must not be negative"))
	}
	if c.Game.SweepIntervalMs <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		errs = append(errs, errors.New("nats subject prefix is required when nats is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SweepInterval returns the backup sweep period
func (g GameConfig) SweepInterval() time.Duration {
	return time.Duration(g.SweepIntervalMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
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
