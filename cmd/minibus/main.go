package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minibus.schoolride.org/internal/appconf"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	coreApp, err := BuildApplication(ctx, cfg)
	if err != nil {
		return err
	}
	srv, api := CreateServer(coreApp, cfg)
	return Run(ctx, srv, coreApp, api)
}

// loadConfig merges, lowest precedence first: defaults, the -config file,
// .env files with MINIBUS_* variables, then explicit flags.
func loadConfig(args []string) (appconf.Config, error) {
	fs := flag.NewFlagSet("minibus", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a JSON config file")
	envFile := fs.String("env-file", ".env", "dotenv file to load")
	port := fs.Int("port", 0, "API server port")
	env := fs.String("env", "", "environment (development|test|production)")
	apiKeys := fs.String("api-keys", "", "comma-separated API keys for the facade")
	rateLimit := fs.Int("rate-limit", -1, "requests per second per caller, 0 disables")
	backendURL := fs.String("backend-url", "", "base URL of the school transport backend")
	backendTimeout := fs.Duration("backend-timeout", 0, "timeout for backend calls")
	natsURL := fs.String("nats-url", "", "NATS server URL for the event bridge")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	logJSON := fs.Bool("log-json", false, "log as JSON")
	demoLoop := fs.Bool("demo-loop", false, "loop the tracked path for demonstrations")
	if err := fs.Parse(args); err != nil {
		return appconf.Config{}, err
	}

	cfg := appconf.Defaults()
	if *configPath != "" {
		jsonCfg, err := appconf.LoadFromFile(*configPath)
		if err != nil {
			return appconf.Config{}, err
		}
		cfg = jsonCfg.ToAppConfig()
	}

	if err := appconf.LoadEnv(*envFile); err != nil {
		return appconf.Config{}, err
	}
	if err := appconf.ApplyEnv(&cfg); err != nil {
		return appconf.Config{}, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["port"] {
		cfg.Port = *port
	}
	if set["env"] {
		cfg.Env = appconf.EnvFlagToEnvironment(*env)
	}
	if set["api-keys"] {
		cfg.ApiKeys = ParseAPIKeys(*apiKeys)
	}
	if set["rate-limit"] {
		cfg.RateLimit = *rateLimit
	}
	if set["backend-url"] {
		cfg.BackendURL = *backendURL
	}
	if set["backend-timeout"] {
		cfg.BackendTimeout = *backendTimeout
	}
	if set["nats-url"] {
		cfg.NATSURL = *natsURL
	}
	if set["verbose"] {
		cfg.Verbose = *verbose
	}
	if set["log-json"] {
		cfg.LogJSON = *logJSON
	}
	if set["demo-loop"] {
		cfg.DemoLoop = *demoLoop
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 10 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return appconf.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
