package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-media/pkg/simplemedia/api"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
	"github.com/tendant/simple-media/pkg/simplemedia/reconcile"
)

func main() {
	// Configuration may come from a .env file; real environment wins
	_ = godotenv.Load()

	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := cfg.Build(ctx, logger)
	if err != nil {
		logger.Error("Failed to build media service", "err", err)
		os.Exit(1)
	}
	defer res.Close()

	var adminMiddleware []func(next http.Handler) http.Handler
	if cfg.AdminAPIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"admin": cfg.AdminAPIKeySHA256,
			},
		})
		if err != nil {
			logger.Error("Failed initialize API Key middleware", "err", err)
			return
		}
		adminMiddleware = append(adminMiddleware, apiKeyMiddleware)
	} else {
		logger.Warn("ADMIN_API_KEY_SHA256 not set, manual sweep endpoint is unprotected")
	}

	if cfg.SweepEnabled {
		scheduler := reconcile.NewScheduler(res.Reconciler, cfg.SweepCron, logger)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Failed to start sweep scheduler", "err", err)
			return
		}
		defer scheduler.Stop()
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	server.R.Handle("/metrics", promhttp.Handler())

	mediaHandler := api.NewMediaHandler(res.Service, res.Reconciler,
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithHandlerLogger(logger),
	)
	server.R.Route("/api", func(r chi.Router) {
		r.Mount("/image", mediaHandler.Routes(adminMiddleware...))
	})

	logger.Info("Media server starting",
		"database", cfg.DatabaseType(),
		"storage", cfg.StorageType,
		"sweep_enabled", cfg.SweepEnabled,
		"sweep_cron", cfg.SweepCron)

	server.Run()
}
