package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"minibus.schoolride.org/internal/app"
	"minibus.schoolride.org/internal/appconf"
	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/logging"
	"minibus.schoolride.org/internal/restapi"
	"minibus.schoolride.org/internal/webui"
)

// ParseAPIKeys splits a comma-separated key list. Blank entries are kept so
// that a stray comma is visible to validation rather than silently dropped.
func ParseAPIKeys(apiKeysFlag string) []string {
	if apiKeysFlag == "" {
		return []string{}
	}
	keys := strings.Split(apiKeysFlag, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

// BuildApplication wires the application for cfg. ctx bounds the background
// tasks started on behalf of requests.
func BuildApplication(ctx context.Context, cfg appconf.Config) (*app.Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.NewLogger(os.Stdout, cfg.Verbose, cfg.LogJSON)

	coreApp, err := app.New(ctx, cfg, logger, clock.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	return coreApp, nil
}

// CreateServer mounts the JSON facade and the debug pages on one server.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)
	webUI := &webui.WebUI{Application: coreApp}

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	webUI.SetWebUIRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// stops the application's background work.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger
	errCh := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "starting_server",
			slog.String("addr", srv.Addr),
			slog.String("env", coreApp.Config.Env.String()),
			slog.String("backend", coreApp.Config.BackendURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			api.Shutdown()
			coreApp.Shutdown()
			return err
		}
	case <-ctx.Done():
	}

	logging.LogOperation(logger, "shutting_down_server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	api.Shutdown()
	coreApp.Shutdown()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logging.LogOperation(logger, "server_stopped")
	return nil
}
