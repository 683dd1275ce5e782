package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the speaker-split server.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Store   StoreConfig
	Minio   MinioConfig
	Plans   PlansConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type BackendConfig struct {
	URL    string
	APIKey string
	// Mode is "live" or "simulation". Simulation never contacts the backend.
	Mode string
	// FallbackSimulation serves scripted streams when a live backend open
	// fails, limited to FallbackCapabilities (comma-separated, empty = all).
	FallbackSimulation   bool
	FallbackCapabilities []string
	SimulationInterval   time.Duration
	// Timeout overrides every capability's stream bound when positive.
	Timeout time.Duration
	// StreamTimeouts overrides the bound per capability
	// ("speakerSplit=20m,document=3m"); entries win over Timeout.
	StreamTimeouts map[string]time.Duration
}

type StoreConfig struct {
	// Driver selects the durable tier: "memory", "sqlite" or "postgres".
	Driver      string
	SQLitePath  string
	PostgresURL string
	// RedisURL enables the job snapshot mirror when set.
	RedisURL     string
	SnapshotTTL  time.Duration
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type PlansConfig struct {
	// File optionally overrides the built-in tier ceilings.
	File string
	// ProUsers lists user ids on the pro tier until the billing
	// collaborator is wired in (comma-separated).
	ProUsers []string
}

// LoadEnv loads environment variables from a .env file if one exists.
// Missing files are fine; system-wide environment may already be set.
func LoadEnv() error {
	envPaths := []string{".env", ".env.local", "../.env"}
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return fmt.Errorf("error loading %s file: %w", envPath, err)
			}
			break
		}
	}
	return nil
}

// Load reads configuration from environment variables and returns a
// validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         envString("SERVER_HOST", "0.0.0.0"),
			Port:         envString("SERVER_PORT", "8080"),
			Environment:  envString("SERVER_ENV", "development"),
			ReadTimeout:  envDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: envDuration("SERVER_WRITE_TIMEOUT", 0),
			IdleTimeout:  envDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Backend: BackendConfig{
			URL:                  envString("BACKEND_URL", "http://localhost:8000"),
			APIKey:               os.Getenv("BACKEND_API_KEY"),
			Mode:                 envString("BACKEND_MODE", "live"),
			FallbackSimulation:   envBool("BACKEND_FALLBACK_SIMULATION", false),
			FallbackCapabilities: envList("BACKEND_FALLBACK_CAPABILITIES"),
			SimulationInterval:   envDuration("BACKEND_SIMULATION_INTERVAL", 400*time.Millisecond),
			Timeout:              envDuration("BACKEND_TIMEOUT", 0),
			StreamTimeouts:       envDurationMap("BACKEND_STREAM_TIMEOUTS"),
		},
		Store: StoreConfig{
			Driver:      envString("STORE_DRIVER", "sqlite"),
			SQLitePath:  envString("SQLITE_PATH", "data/speaker-split.db"),
			PostgresURL: os.Getenv("DATABASE_URL"),
			RedisURL:    os.Getenv("REDIS_URL"),
			SnapshotTTL: envDuration("JOB_SNAPSHOT_TTL", 24*time.Hour),
		},
		Minio: MinioConfig{
			Endpoint:  envString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: envString("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: envString("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    envString("MINIO_BUCKET", "speaker-split-audio"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Plans: PlansConfig{
			File:     os.Getenv("PLANS_FILE"),
			ProUsers: envList("PRO_USERS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend.Mode {
	case "live", "simulation":
	default:
		return fmt.Errorf("BACKEND_MODE must be live or simulation, got %q", c.Backend.Mode)
	}

	if c.Backend.Mode == "live" {
		if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
			return fmt.Errorf("BACKEND_URL must start with http:// or https://, got %q", c.Backend.URL)
		}
	}

	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be memory, sqlite or postgres, got %q", c.Store.Driver)
	}

	if c.Server.Environment == "production" && c.Backend.Mode == "simulation" {
		return fmt.Errorf("BACKEND_MODE=simulation is not allowed in production")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationMap(key string) map[string]time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := make(map[string]time.Duration)
	for _, pair := range strings.Split(v, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(kv[1]))
		if err != nil || d <= 0 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = d
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
