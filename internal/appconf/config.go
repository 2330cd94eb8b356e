package appconf

import (
	"fmt"
	"strings"
	"time"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFlagToEnvironment maps the -env flag to an Environment. Unknown values
// fall back to Development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

// Config is the process configuration after flags, config file and
// environment have been merged.
type Config struct {
	Port      int
	Env       Environment
	ApiKeys   []string
	Verbose   bool
	RateLimit int
	LogJSON   bool

	BackendURL     string
	BackendTimeout time.Duration
	// BackendRPS paces calls to the backend; zero disables pacing.
	BackendRPS float64
	CacheTTL   time.Duration

	// NATSURL enables the event bridge when set.
	NATSURL           string
	NATSSubjectPrefix string

	RefreshInterval   time.Duration
	TickInterval      time.Duration
	SpeedKmh          float64
	DemoLoop          bool
	MorningCutoffHour int
}

// Defaults returns a development configuration pointing at a local backend.
func Defaults() Config {
	return Config{
		Port:              4000,
		Env:               Development,
		RateLimit:         100,
		BackendURL:        "http://localhost:5000",
		BackendTimeout:    10 * time.Second,
		CacheTTL:          5 * time.Minute,
		NATSSubjectPrefix: "minibus",
		RefreshInterval:   10 * time.Second,
		TickInterval:      2 * time.Second,
		SpeedKmh:          30,
		MorningCutoffHour: 12,
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative, got %d", c.RateLimit)
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		return fmt.Errorf("backend-url is required")
	}
	if c.BackendRPS < 0 {
		return fmt.Errorf("backend-rps must not be negative, got %g", c.BackendRPS)
	}
	if c.SpeedKmh < 0 {
		return fmt.Errorf("speed-kmh must not be negative, got %g", c.SpeedKmh)
	}
	if c.MorningCutoffHour < 0 || c.MorningCutoffHour > 23 {
		return fmt.Errorf("morning-cutoff-hour must be between 0 and 23, got %d", c.MorningCutoffHour)
	}
	return nil
}
