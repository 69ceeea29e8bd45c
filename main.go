package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neon/backend/api"
	"neon/backend/config"
	"neon/backend/database"
	"neon/backend/handlers"
	"neon/backend/logger"
	"neon/backend/middleware"
	"neon/backend/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := command().Execute(); err != nil {
		os.Exit(1)
	}
}

func command() *cobra.Command {
	var (
		configFile string
		resetDB    bool
		noExit     bool
	)

	cmd := &cobra.Command{
		Use:   "neon",
		Short: "HTTP API in front of the Neon query service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, resetDB, noExit)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a config file")
	cmd.Flags().BoolVar(&resetDB, "reset-db", false, "delete the database before starting")
	cmd.Flags().BoolVar(&noExit, "no-exit", false, "keep serving after --reset-db")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, resetDB, noExit bool) error {
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	log.Info("starting",
		zap.String("env", cfg.Env),
		zap.String("server_base_url", cfg.ServerBaseURL),
		zap.String("database", cfg.Database.Path))

	if resetDB {
		log.Info("resetting database", zap.String("path", cfg.Database.Path))
		if err := database.Reset(cfg.Database.Path); err != nil {
			return err
		}
	}

	if err := database.InitDB(cfg.Database.Path, log); err != nil {
		return err
	}
	defer database.Close()

	if resetDB && !noExit {
		log.Info("database reset completed successfully, exiting")
		return nil
	}

	if err := initAuth(ctx, cfg, log); err != nil {
		return err
	}

	qs := services.NewQueryServiceFromConfig(cfg, log)
	h := &handlers.Handlers{
		Query:     qs,
		Filters:   services.NewFilterServiceFromConfig(cfg, log),
		Timelines: services.NewTimelineService(qs, cfg.Timeline.DateField, log),
		Tables:    services.NewFilterTableService(qs, log),
		Logger:    log,
	}
	server := api.NewServer(h, api.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins(),
		DevMode:        cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Handler:      server,
		Addr:         cfg.HTTP.Address,
		WriteTimeout: cfg.Request.Timeout + 15*time.Second,
		ReadTimeout:  15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("address", cfg.HTTP.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initAuth sets up token verification. Without credentials the server runs
// with auth checks disabled; configured credentials that fail to load stop
// startup.
func initAuth(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if err := middleware.InitializeFirebase(ctx, cfg.Firebase, log); err != nil {
		return fmt.Errorf("failed to initialize Firebase: %w", err)
	}
	return nil
}
