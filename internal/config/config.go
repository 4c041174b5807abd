// Package config reads daemon settings from the environment and an
// optional .env file.
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
)

// DefaultPort is the WebSocket port the extension connects to.
const DefaultPort = 19192

// Config holds all runtime configuration.
type Config struct {
	Port         int
	DBPath       string
	LogDir       string
	SkipURLs     []string // extra glob patterns for pages never grouped
	PollInterval time.Duration
	Seed         uint64 // palette seed; 0 picks one at startup
	Profile      string // Firefox profile for offline planning
}

// Load reads configuration from environment variables, after loading any
// of the given .env files (default ".env") that exist.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	dataDir, err := defaultDataDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnvIntOrDefault("TABGENIUS_PORT", DefaultPort),
		DBPath:       getEnvOrDefault("TABGENIUS_DB", filepath.Join(dataDir, "tabgenius.db")),
		LogDir:       getEnvOrDefault("TABGENIUS_LOG_DIR", filepath.Join(dataDir, "logs")),
		SkipURLs:     splitList(os.Getenv("TABGENIUS_SKIP_URLS")),
		PollInterval: getEnvDurationOrDefault("TABGENIUS_POLL_INTERVAL", 100*time.Millisecond),
		Seed:         uint64(getEnvIntOrDefault("TABGENIUS_SEED", 0)),
		Profile:      os.Getenv("TABGENIUS_PROFILE"),
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("TABGENIUS_PORT out of range: %d", cfg.Port)
	}
	return cfg, nil
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabgenius"), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
