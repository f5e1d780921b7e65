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

	"gator-press/internal/config"
	"gator-press/internal/database"
	"gator-press/internal/engine"
	"gator-press/internal/handlers"
	"gator-press/internal/logger"
	"gator-press/internal/middleware"
	"gator-press/internal/utils"
	"gator-press/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
)

// app holds everything main starts and must stop again.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	db      database.DBAdapter
	hub     *websocket.Hub
	engine  *engine.Engine
	server  *handlers.Server
	handler http.Handler
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	metrics := utils.NewMetricsCollector()

	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	hub := websocket.NewHub(log)
	go hub.Run()

	tokens := middleware.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)

	eng := engine.NewEngine(actor.NewActorSystem(), engine.Options{
		DB:             db,
		Metrics:        metrics,
		Events:         hub,
		Tokens:         tokens,
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	if cfg.Auth.AdminEmail != "" {
		admin, err := eng.SeedAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			eng.Shutdown()
			hub.Stop()
			db.Close(context.Background())
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		log.Info().Str("user_id", admin.ID.String()).Str("username", admin.Username).Msg("Admin account ready")
	}

	server := handlers.NewServer(eng, metrics, hub, tokens, middleware.DefaultCORSConfig(cfg.AllowedOrigins), log)
	server.RequestTimeout = cfg.Server.RequestTimeout
	server.ExposeMetrics = cfg.Server.MetricsEnabled

	return &app{
		cfg:     cfg,
		logger:  log,
		db:      db,
		hub:     hub,
		engine:  eng,
		server:  server,
		handler: server.Router(),
	}, nil
}

// close stops the actors before the store so in-flight messages can finish.
func (a *app) close(ctx context.Context) {
	a.engine.Shutdown()
	a.hub.Stop()
	if err := a.db.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Error closing database")
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New().
		Console(cfg.Debug).
		Level(cfg.LogLevel).
		Service("gator-press").
		Make()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start")
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", serverAddr).
			Str("database", cfg.Database.Type).
			Msg("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	a.close(shutdownCtx)
	log.Info().Msg("Server stopped")
}
