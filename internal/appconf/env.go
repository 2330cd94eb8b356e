package appconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env style files into the process environment. Missing files
// are skipped; variables already set win over the files.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays MINIBUS_* environment variables on c.
func ApplyEnv(c *Config) error {
	c.BackendURL = getenvDefault("MINIBUS_BACKEND_URL", c.BackendURL)
	c.NATSURL = getenvDefault("MINIBUS_NATS_URL", c.NATSURL)
	c.NATSSubjectPrefix = getenvDefault("MINIBUS_NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)

	if v := os.Getenv("MINIBUS_API_KEYS"); v != "" {
		keys := strings.Split(v, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		c.ApiKeys = keys
	}
	if v := os.Getenv("MINIBUS_BACKEND_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid MINIBUS_BACKEND_RPS: %q", v)
		}
		c.BackendRPS = f
	}
	if v := os.Getenv("MINIBUS_SPEED_KMH"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid MINIBUS_SPEED_KMH: %q", v)
		}
		c.SpeedKmh = f
	}
	if v := os.Getenv("MINIBUS_REFRESH_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid MINIBUS_REFRESH_INTERVAL_MS: %q", v)
		}
		c.RefreshInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MINIBUS_TICK_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid MINIBUS_TICK_INTERVAL_MS: %q", v)
		}
		c.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MINIBUS_DEMO_LOOP"); v != "" {
		c.DemoLoop = truthy(v)
	}
	if v := os.Getenv("MINIBUS_LOG_JSON"); v != "" {
		c.LogJSON = truthy(v)
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
