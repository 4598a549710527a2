package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
	"github.com/scythianladder/scythian-ladder-backend/internal/ladder"
)

type sessionManager interface {
	Create(ctx context.Context, ownerID string) (*entity.SessionState, error)
	Join(ctx context.Context, code, userID string) (*entity.SessionState, error)
	SubmitMove(ctx context.Context, code, userID string, stones int) (*entity.SessionState, *ladder.Result, error)
	Observe(ctx context.Context, code string) (*entity.SessionState, error)
	ListOpen(ctx context.Context) ([]entity.SessionState, error)
}

type userManager interface {
	Register(ctx context.Context, name, fullName, password string) (*entity.User, error)
	Authenticate(ctx context.Context, name, password string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Leaderboard(ctx context.Context) ([]entity.User, error)
}

// announcer fans mutations made over HTTP out to realtime observers, so the
// two surfaces never diverge.
type announcer interface {
	AnnounceStarted(state *entity.SessionState)
	AnnounceMove(state *entity.SessionState, moverID string, result *ladder.Result)
}

type Server struct {
	logger *slog.Logger
	game   sessionManager
	users  userManager
	events announcer
}

func New(logger *slog.Logger, game sessionManager, users userManager, events announcer) *Server {
	return &Server{
		logger: logger.With("component", "rest"),
		game:   game,
		users:  users,
		events: events,
	}
}

// Start - starts the HTTP server.
func (that *Server) Start(ctx context.Context, port string) error {
	router := chi.NewRouter()

	router.Get("/ping", that.handlePing)

	router.Route("/api", func(r chi.Router) {
		r.Post("/register", that.handleRegister)
		r.Post("/login", that.handleLogin)

		r.Post("/game", that.handleCreateGame)
		r.Get("/game/available", that.handleListOpen)
		r.Get("/game/{code}", that.handleGetGame)
		r.Post("/game/{code}/join", that.handleJoinGame)
		r.Post("/game/{code}/move", that.handleMakeMove)

		r.Get("/leaderboard", that.handleLeaderboard)
		r.Get("/users/{id}", that.handleProfile)
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
