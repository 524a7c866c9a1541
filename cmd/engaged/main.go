// Package main provides the entry point for the engaged server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/engagekit/engagekit/internal/api/handlers"
	"github.com/engagekit/engagekit/internal/browser"
	"github.com/engagekit/engagekit/internal/config"
	"github.com/engagekit/engagekit/internal/executor"
	"github.com/engagekit/engagekit/internal/history"
	"github.com/engagekit/engagekit/internal/http/mw"
	"github.com/engagekit/engagekit/internal/logging"
	"github.com/engagekit/engagekit/internal/models"
	"github.com/engagekit/engagekit/internal/notifier"
	"github.com/engagekit/engagekit/internal/platform"
	"github.com/engagekit/engagekit/internal/quota"
	"github.com/engagekit/engagekit/internal/session"
	"github.com/engagekit/engagekit/internal/shutdown"
	"github.com/engagekit/engagekit/internal/version"
)

func main() {
	cfg := config.Load()

	// slog-logfilter respects LOG_LEVEL and LOG_FORMAT env vars.
	logger := logging.SetDefault()

	logger.Info("starting engaged server",
		"version", version.Get().Version,
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"headless", cfg.Headless,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Platform adapters
	registry := platform.NewRegistry()
	if cfg.PlatformConfigPath != "" {
		if err := registry.LoadOverrides(cfg.PlatformConfigPath); err != nil {
			logger.Error("failed to load platform overrides", "path", cfg.PlatformConfigPath, "error", err)
			os.Exit(1)
		}
		logger.Info("platform overrides loaded", "path", cfg.PlatformConfigPath, "platforms", registry.Names())
	}

	// Persistence
	sessions, err := session.NewStore(cfg.SessionDir(), cfg.SessionRetention, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	quotaStore, err := quota.NewStore(cfg.QuotaPath(), quota.Ceilings{
		PerFamily: map[models.Family]int{
			models.FamilyLike:    cfg.LikeCeiling,
			models.FamilyComment: cfg.CommentCeiling,
			models.FamilyFollow:  cfg.FollowCeiling,
			models.FamilyMessage: cfg.MessageCeiling,
		},
		Default: cfg.DefaultCeiling,
	}, logger)
	if err != nil {
		logger.Error("failed to open quota store", "error", err)
		os.Exit(1)
	}
	gate := quota.NewGate(quotaStore)

	hist, err := history.NewSQLiteStore(cfg.HistoryPath(), logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer hist.Close()

	// History retention sweep
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := hist.CleanupOlderThan(ctx, time.Now().Add(-90*24*time.Hour)); err != nil {
					logger.Warn("history cleanup failed", "error", err)
				}
			}
		}
	}()

	// Notifications
	var channel notifier.Notifier
	if cfg.WebhookURL != "" {
		channel = notifier.NewWebhook(cfg.WebhookURL, cfg.NotifyTimeout)
		logger.Info("webhook notifier enabled")
	}
	dispatcher := notifier.NewDispatcher(channel, 64, cfg.NotifyTimeout, cfg.Silent, logger)
	defer dispatcher.Close()

	// Browser starts in the background; the first action waits on a warm
	// context, everything before that gets ErrNotStarted mapped to 503.
	manager := browser.NewManager(cfg, registry, sessions, logger)
	go func() {
		if err := manager.Start(ctx); err != nil {
			logger.Error("browser startup failed", "error", err)
		}
	}()

	exec := executor.New(manager, registry, gate, dispatcher, cfg, logger)

	// Handlers
	healthHandler := handlers.NewHealthHandler(manager, dispatcher, registry.Names())
	actionHandler := handlers.NewActionHandler(exec, hist, logger)
	quotaHandler := handlers.NewQuotaHandler(quotaStore, registry)
	sessionsHandler := handlers.NewSessionsHandler(sessions)

	// Idle monitor for scale-to-zero deployments
	idle := shutdown.NewIdleMonitor(cfg.IdleTimeout, logger)
	idle.Start()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.NavigateTimeout + 2*time.Minute))
	r.Use(idle.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Engaged-Signature", "X-Engaged-Timestamp"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(httprate.LimitByIP(60, time.Minute))

	humaConfig := huma.DefaultConfig("Engaged", version.Get().Version)
	humaConfig.Info.Description = "Session-aware social platform automation service"
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*handlers.HealthOutput, error) {
		return &handlers.HealthOutput{Body: *healthHandler.Handle(ctx)}, nil
	})

	// Protected routes
	protected := chi.NewRouter()
	protected.Use(mw.Auth(mw.AuthConfig{
		Secret:               cfg.APISecret,
		AllowUnauthenticated: cfg.AllowUnauthenticated,
		Logger:               logger,
	}))
	protectedAPI := humachi.New(protected, humaConfig)

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "executeAction",
		Method:      http.MethodPost,
		Path:        "/v1/actions",
		Summary:     "Execute an action",
		Description: "Runs one quota-gated, human-paced action against a platform",
		Tags:        []string{"Actions"},
	}, func(ctx context.Context, input *handlers.ActionInput) (*handlers.ActionOutput, error) {
		result, err := actionHandler.Handle(ctx, &input.Body)
		if err != nil {
			return nil, err
		}
		return &handlers.ActionOutput{Body: *result}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "recentActions",
		Method:      http.MethodGet,
		Path:        "/v1/actions/recent",
		Summary:     "Recent action history",
		Tags:        []string{"Actions"},
	}, func(ctx context.Context, input *handlers.RecentInput) (*handlers.RecentOutput, error) {
		resp, err := actionHandler.HandleRecent(ctx, input.Limit)
		if err != nil {
			return nil, err
		}
		return &handlers.RecentOutput{Body: *resp}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "quotaStatus",
		Method:      http.MethodGet,
		Path:        "/v1/quota/{platform}",
		Summary:     "Quota window status",
		Tags:        []string{"Quota"},
	}, func(ctx context.Context, input *handlers.QuotaInput) (*handlers.QuotaOutput, error) {
		resp, err := quotaHandler.Handle(ctx, input.Platform)
		if err != nil {
			return nil, err
		}
		return &handlers.QuotaOutput{Body: *resp}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/v1/sessions",
		Summary:     "List persisted sessions",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *struct{}) (*handlers.SessionsOutput, error) {
		resp, err := sessionsHandler.HandleList(ctx)
		if err != nil {
			return nil, err
		}
		return &handlers.SessionsOutput{Body: *resp}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "deleteSession",
		Method:      http.MethodDelete,
		Path:        "/v1/sessions/{platform}",
		Summary:     "Delete a persisted session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *handlers.SessionDeleteInput) (*struct{}, error) {
		if err := sessionsHandler.HandleDelete(ctx, input.Platform); err != nil {
			return nil, err
		}
		return &struct{}{}, nil
	})

	r.Mount("/", protected)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.NavigateTimeout + 3*time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case <-idle.ShutdownChan():
		logger.Info("idle shutdown triggered")
	}

	cancel()
	idle.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Sessions are saved best-effort before the browser goes down.
	manager.Close(shutdownCtx)

	logger.Info("server stopped")
}
