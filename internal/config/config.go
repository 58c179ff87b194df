package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"hubspot-deals-connector/pkg/utils"
)

// Config is the process configuration, sourced from the environment with
// an optional .env file for local runs.
type Config struct {
	ListenAddr         string
	DBPath             string
	HubSpotBaseURL     string
	MaxConcurrentScans int
	CheckpointEvery    int64
	MaxPages           int64
	HTTPClientTimeout  string
	LogLevel           string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "connector.db"),
		HubSpotBaseURL:     getEnv("HUBSPOT_BASE_URL", ""),
		MaxConcurrentScans: getEnvInt("MAX_CONCURRENT_SCANS", 5),
		CheckpointEvery:    int64(getEnvInt("CHECKPOINT_EVERY_PAGES", 5)),
		MaxPages:           int64(getEnvInt("MAX_PAGES_PER_SCAN", 1000)),
		HTTPClientTimeout:  getEnv("HTTP_CLIENT_TIMEOUT", "30s"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

// ClientTimeout parses HTTPClientTimeout with a safe fallback.
func (c *Config) ClientTimeout() time.Duration {
	return utils.ParseDuration(c.HTTPClientTimeout, 30*time.Second)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
