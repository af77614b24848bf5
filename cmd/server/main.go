package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chui/internal/auth"
	"chui/internal/config"
	"chui/internal/database"
	"chui/internal/engine"
	"chui/internal/handlers"
	"chui/internal/logging"
	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// App holds everything the server owns and must close.
type App struct {
	Echo   *echo.Echo
	Store  database.Store
	System *actor.ActorSystem
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := database.Open(ctx, cfg.Database.Type, cfg.Database.URI, cfg.Database.Name)
	if err != nil {
		return nil, err
	}

	metrics := utils.NewMetricsCollector()
	messenger := messaging.NewMessenger(store, messaging.Options{
		AllowUnderscore: cfg.Messaging.AllowUnderscore,
	})
	authService := auth.NewService(store, messenger.Registry,
		auth.NewTokenIssuer(cfg.TokenSecret(), cfg.Auth.TokenTTL))

	system := actor.NewActorSystem()
	chuiEngine := engine.NewEngine(system, messenger, authService, metrics, cfg.Actors.PoolSize, cfg.Actors.Timeout)

	server := handlers.NewServer(chuiEngine, metrics, cfg.Server.AllowedOrigins, cfg.Server.MetricsEnabled)
	return &App{Echo: server.Router(), Store: store, System: system}, nil
}

func (a *App) Close(ctx context.Context) {
	a.System.Shutdown()
	if err := a.Store.Close(ctx); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("database", cfg.Database.Type).Msg("failed to start")
	}

	go func() {
		log.Info().
			Str("addr", cfg.Address()).
			Str("database", cfg.Database.Type).
			Int("pool_size", cfg.Actors.PoolSize).
			Msg("starting chui server")
		if err := app.Echo.Start(cfg.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	app.Close(shutdownCtx)
}
