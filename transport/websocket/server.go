package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
	"github.com/scythianladder/scythian-ladder-backend/internal/ladder"
)

type sessionManager interface {
	Create(ctx context.Context, ownerID string) (*entity.SessionState, error)
	Join(ctx context.Context, code, userID string) (*entity.SessionState, error)
	SubmitMove(ctx context.Context, code, userID string, stones int) (*entity.SessionState, *ladder.Result, error)
	Observe(ctx context.Context, code string) (*entity.SessionState, error)
	CleanupWaitingByOwner(ctx context.Context, ownerID string) ([]string, error)
}

type userManager interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// connection is one client socket: its authenticated identity, the rooms it
// watches and its heartbeat clock. Writes are serialized per connection.
type connection struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu            sync.Mutex
	userID        string
	rooms         map[string]struct{}
	lastHeartbeat time.Time
}

func (that *connection) authenticatedUser() string {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.userID
}

func (that *connection) bind(userID string) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.userID = userID
}

func (that *connection) touch() {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.lastHeartbeat = time.Now()
}

func (that *connection) heartbeatAge(now time.Time) time.Duration {
	that.mu.Lock()
	defer that.mu.Unlock()
	return now.Sub(that.lastHeartbeat)
}

// Server is the realtime gateway: per-connection authentication, room
// membership and fan-out of state-change events.
type Server struct {
	logger *slog.Logger
	game   sessionManager
	users  userManager

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[*connection]struct{}
	rooms       map[string]map[*connection]struct{}

	handlers map[string]func(ctx context.Context, conn *connection, payload json.RawMessage) error
}

func New(logger *slog.Logger, game sessionManager, users userManager) *Server {
	server := &Server{
		logger: logger.With("component", "ws-gateway"),
		game:   game,
		users:  users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		connections: make(map[*connection]struct{}),
		rooms:       make(map[string]map[*connection]struct{}),
		handlers:    make(map[string]func(context.Context, *connection, json.RawMessage) error),
	}

	server.handlers[actionAuthenticate] = server.handleAuthenticate
	server.handlers[actionCreateGame] = server.handleCreateGame
	server.handlers[actionJoinGame] = server.handleJoinGame
	server.handlers[actionJoinRoom] = server.handleJoinRoom
	server.handlers[actionLeaveRoom] = server.handleLeaveRoom
	server.handlers[actionMakeMove] = server.handleMakeMove
	server.handlers[actionHeartbeat] = server.handleHeartbeat

	return server
}

// Start - starts the websocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 0, // long-lived sockets; liveness is heartbeat-driven
		IdleTimeout: 0,
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

func (that *Server) serveConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveConnection")

	ws, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := &connection{
		ws:            ws,
		rooms:         make(map[string]struct{}),
		lastHeartbeat: time.Now(),
	}

	that.mu.Lock()
	that.connections[conn] = struct{}{}
	that.mu.Unlock()

	log.Info("connection established", "remote", ws.RemoteAddr().String())

	defer that.disconnect(ctx, conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Info("connection closed", "error", err)
			return
		}

		conn.touch()

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			that.sendError(conn, "malformed message")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			that.sendError(conn, fmt.Sprintf("unknown action %q", message.Action))
			continue
		}

		if err = handler(ctx, conn, message.Payload); err != nil {
			log.Error("failed to process message", "action", message.Action, "error", err)
		}
	}
}

// disconnect tears one connection down: membership, identity bindings, and
// any WAITING lobby the user owned. In-progress sessions are left alone.
func (that *Server) disconnect(ctx context.Context, conn *connection) {
	log := that.logger.With("method", "disconnect")

	that.mu.Lock()
	delete(that.connections, conn)
	for code := range conn.rooms {
		if members, ok := that.rooms[code]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(that.rooms, code)
			}
		}
	}
	that.mu.Unlock()

	_ = conn.ws.Close()

	userID := conn.authenticatedUser()
	if userID == "" {
		return
	}

	codes, err := that.game.CleanupWaitingByOwner(ctx, userID)
	if err != nil {
		log.Error("failed to cleanup waiting sessions", "userID", userID, "error", err)
		return
	}

	if len(codes) > 0 {
		log.Info("cleaned up waiting sessions", "userID", userID, "codes", codes)
	}
}

// DisconnectStale force-closes connections whose heartbeat is older than
// timeout. The read loop then unwinds into the regular disconnect cleanup.
func (that *Server) DisconnectStale(timeout time.Duration) int {
	log := that.logger.With("method", "DisconnectStale")

	that.mu.RLock()
	stale := make([]*connection, 0)
	now := time.Now()
	for conn := range that.connections {
		if conn.heartbeatAge(now) > timeout {
			stale = append(stale, conn)
		}
	}
	that.mu.RUnlock()

	for _, conn := range stale {
		log.Info("closing stale connection", "userID", conn.authenticatedUser())
		_ = conn.ws.Close()
	}

	return len(stale)
}

func (that *Server) joinRoom(conn *connection, code string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	members, ok := that.rooms[code]
	if !ok {
		members = make(map[*connection]struct{})
		that.rooms[code] = members
	}
	members[conn] = struct{}{}
	conn.rooms[code] = struct{}{}
}

func (that *Server) leaveRoom(conn *connection, code string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if members, ok := that.rooms[code]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(that.rooms, code)
		}
	}
	delete(conn.rooms, code)
}

// broadcast fans an event out to every connection watching the code's room.
func (that *Server) broadcast(code, event string, payload any) {
	that.mu.RLock()
	members := make([]*connection, 0, len(that.rooms[code]))
	for conn := range that.rooms[code] {
		members = append(members, conn)
	}
	that.mu.RUnlock()

	for _, conn := range members {
		if err := that.send(conn, event, payload); err != nil {
			that.logger.Error("failed to broadcast", "event", event, "code", code, "error", err)
		}
	}
}

func (that *Server) send(conn *connection, action string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	if err = conn.ws.WriteJSON(Message{Action: action, Payload: body}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *Server) sendError(conn *connection, message string) {
	if err := that.send(conn, eventError, errorEvent{Message: message}); err != nil {
		that.logger.Error("failed to send error response", "error", err)
	}
}
