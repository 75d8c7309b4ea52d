package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

/*
CONFIGURATION LAYERS (lowest to highest precedence)

1. Built-in defaults   :   a bare binary relays to the local backend on :5000
2. YAML file           :   optional, path given with -config
3. .env file           :   optional, loaded into the process environment
4. Environment         :   RELAY_* variables

Validation runs once, after all layers are applied.
A config that fails validation is never returned.
*/

const (
	DefaultUpstreamURL  = "http://127.0.0.1:5000/regbutton"
	DefaultListenAddr   = ":8080"
	DefaultLogPath      = "debug_log.txt"
	DefaultMaxBodyBytes = 1 << 20 // 1 MiB
)

// Environment variable names.
const (
	EnvUpstreamURL = "RELAY_UPSTREAM_URL"
	EnvListenAddr  = "RELAY_LISTEN_ADDR"
	EnvLogPath     = "RELAY_LOG_PATH"
	EnvLogLevel    = "RELAY_LOG_LEVEL"
	EnvCORSOrigins = "RELAY_CORS_ORIGINS"

	EnvAuthPublicKeyFile = "RELAY_AUTH_PUBLIC_KEY_FILE"
	EnvAuthIssuer        = "RELAY_AUTH_ISSUER"
	EnvAuthAudience      = "RELAY_AUTH_AUDIENCE"
)

type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	UpstreamURL  string        `yaml:"upstream_url"`
	LogPath      string        `yaml:"log_path"`
	LogLevel     string        `yaml:"log_level"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	Timeouts     TimeoutConfig `yaml:"timeouts"`
	RateLimit    RateConfig    `yaml:"rate_limit"`
	Auth         AuthConfig    `yaml:"auth"`
}

// TimeoutConfig durations use Go syntax in YAML ("10s", "2m").
// Zero disables a timeout. Write also bounds the whole relay, so it stays
// zero unless Upstream is set below it.
type TimeoutConfig struct {
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Idle     time.Duration `yaml:"idle"`
	Upstream time.Duration `yaml:"upstream"`
}

// RateConfig of zero disables per-client limiting.
type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// AuthConfig enables the bearer guard when PublicKeyFile is set.
type AuthConfig struct {
	PublicKeyFile string `yaml:"public_key_file"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

func (a AuthConfig) Enabled() bool {
	return strings.TrimSpace(a.PublicKeyFile) != ""
}

func (r RateConfig) Enabled() bool {
	return r.PerSecond > 0
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr:   DefaultListenAddr,
		UpstreamURL:  DefaultUpstreamURL,
		LogPath:      DefaultLogPath,
		LogLevel:     "info",
		MaxBodyBytes: DefaultMaxBodyBytes,
		CORSOrigins:  []string{"*"},
		Timeouts: TimeoutConfig{
			Read: 10 * time.Second,
			Idle: 60 * time.Second,
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path,
// the optional .env file at envFile and the environment.
// Empty path or envFile skips that layer.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvUpstreamURL)); v != "" {
		cfg.UpstreamURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvListenAddr)); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogPath)); v != "" {
		cfg.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCORSOrigins)); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthPublicKeyFile)); v != "" {
		cfg.Auth.PublicKeyFile = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthIssuer)); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthAudience)); v != "" {
		cfg.Auth.Audience = v
	}
}
