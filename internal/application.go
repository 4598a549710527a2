package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/scythianladder/scythian-ladder-backend/internal/auth"
	"github.com/scythianladder/scythian-ladder-backend/internal/config"
	"github.com/scythianladder/scythian-ladder-backend/internal/liveness"
	"github.com/scythianladder/scythian-ladder-backend/internal/registry"
	"github.com/scythianladder/scythian-ladder-backend/internal/repository"
	"github.com/scythianladder/scythian-ladder-backend/internal/repository/storage"
	"github.com/scythianladder/scythian-ladder-backend/internal/usecase"
	"github.com/scythianladder/scythian-ladder-backend/transport/rest"
	"github.com/scythianladder/scythian-ladder-backend/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	pgStorage, err := storage.NewPostgresStorage(conf.Postgres.GetDSN())
	if err != nil {
		return fmt.Errorf("could not connect to postgres storage: %w", err)
	}

	defer func() {
		if err = pgStorage.Close(); err != nil {
			log.Error("could not close postgres storage", "error", err)
		}
	}()

	if err = pgStorage.Init(ctx); err != nil {
		return fmt.Errorf("could not init postgres schema: %w", err)
	}

	userRepo := repository.NewUserRepository(pgStorage.Connection)
	sessionRepo := repository.NewSessionRepository(pgStorage.Connection)
	sessionRegistry := registry.New()

	sessionManager := usecase.NewSessionManager(logger, sessionRepo, userRepo, sessionRegistry)
	userManager := usecase.NewUserManager(logger, userRepo, auth.NewPasswordHasher())

	wsServer := websocket.New(logger, sessionManager, userManager)
	restServer := rest.New(logger, sessionManager, userManager, wsServer)

	monitor, err := liveness.New(logger, sessionManager, wsServer,
		conf.Liveness.IdleWaitingThreshold, conf.Liveness.HeartbeatTimeout)
	if err != nil {
		return fmt.Errorf("could not create liveness monitor: %w", err)
	}

	if err = monitor.Start(ctx); err != nil {
		return fmt.Errorf("could not start liveness monitor: %w", err)
	}

	defer func() {
		if err = monitor.Stop(); err != nil {
			log.Error("could not stop liveness monitor", "error", err)
		}
	}()

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := restServer.Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run WebSocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
