package appconf

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JSONConfig is the on-disk configuration file. Absent keys keep their
// defaults.
type JSONConfig struct {
	Port      *int     `json:"port"`
	Env       string   `json:"env"`
	ApiKeys   []string `json:"api-keys"`
	Verbose   bool     `json:"verbose"`
	RateLimit *int     `json:"rate-limit"`
	LogJSON   bool     `json:"log-json"`

	BackendURL       string   `json:"backend-url"`
	BackendTimeoutMs int      `json:"backend-timeout-ms"`
	BackendRPS       *float64 `json:"backend-rps"`
	CacheTTLSeconds  int      `json:"cache-ttl-seconds"`

	NATSURL           string `json:"nats-url"`
	NATSSubjectPrefix string `json:"nats-subject-prefix"`

	RefreshIntervalMs int      `json:"refresh-interval-ms"`
	TickIntervalMs    int      `json:"tick-interval-ms"`
	SpeedKmh          *float64 `json:"speed-kmh"`
	DemoLoop          bool     `json:"demo-loop"`
	MorningCutoffHour *int     `json:"morning-cutoff-hour"`
}

// LoadFromFile reads, parses and validates a JSON config file.
func LoadFromFile(path string) (*JSONConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg JSONConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}
	if err := cfg.ToAppConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ToAppConfig overlays the file's settings on Defaults.
func (j *JSONConfig) ToAppConfig() Config {
	c := Defaults()
	if j.Port != nil {
		c.Port = *j.Port
	}
	if j.Env != "" {
		c.Env = EnvFlagToEnvironment(j.Env)
	}
	if j.ApiKeys != nil {
		c.ApiKeys = j.ApiKeys
	}
	c.Verbose = j.Verbose
	if j.RateLimit != nil {
		c.RateLimit = *j.RateLimit
	}
	c.LogJSON = j.LogJSON

	if j.BackendURL != "" {
		c.BackendURL = j.BackendURL
	}
	if j.BackendTimeoutMs > 0 {
		c.BackendTimeout = time.Duration(j.BackendTimeoutMs) * time.Millisecond
	}
	if j.BackendRPS != nil {
		c.BackendRPS = *j.BackendRPS
	}
	if j.CacheTTLSeconds > 0 {
		c.CacheTTL = time.Duration(j.CacheTTLSeconds) * time.Second
	}

	c.NATSURL = j.NATSURL
	if j.NATSSubjectPrefix != "" {
		c.NATSSubjectPrefix = j.NATSSubjectPrefix
	}

	if j.RefreshIntervalMs > 0 {
		c.RefreshInterval = time.Duration(j.RefreshIntervalMs) * time.Millisecond
	}
	if j.TickIntervalMs > 0 {
		c.TickInterval = time.Duration(j.TickIntervalMs) * time.Millisecond
	}
	if j.SpeedKmh != nil {
		c.SpeedKmh = *j.SpeedKmh
	}
	c.DemoLoop = j.DemoLoop
	if j.MorningCutoffHour != nil {
		c.MorningCutoffHour = *j.MorningCutoffHour
	}
	return c
}
