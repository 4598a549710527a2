package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
)

func (that *Server) handleAuthenticate(ctx context.Context, conn *connection, payload json.RawMessage) error {
	log := that.logger.With("method", "handleAuthenticate")

	var req authenticateRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.UserID == "" {
		that.sendError(conn, "user id is required")
		return nil
	}

	user, err := that.users.GetByID(ctx, req.UserID)
	if errors.Is(err, apperror.ErrUserNotFound) {
		that.sendError(conn, "user not found")
		return nil
	}
	if err != nil {
		that.sendError(conn, "authentication failed")
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	conn.bind(user.ID)

	log.Info("user authenticated", "userID", user.ID, "name", user.Name)

	return that.send(conn, eventAuthenticated, authenticatedEvent{User: user.Public()})
}

func (that *Server) handleCreateGame(ctx context.Context, conn *connection, _ json.RawMessage) error {
	log := that.logger.With("method", "handleCreateGame")

	userID := conn.authenticatedUser()
	if userID == "" {
		that.sendError(conn, "not authenticated")
		return nil
	}

	state, err := that.game.Create(ctx, userID)
	if err != nil {
		that.sendError(conn, "failed to create game")
		return fmt.Errorf("failed to create game: %w", err)
	}

	code := state.Session.Code
	that.joinRoom(conn, code)

	log.Info("game created", "code", code, "userID", userID)

	return that.send(conn, eventGameCreated, gameCreatedEvent{Code: code, Session: state.View()})
}

func (that *Server) handleJoinGame(ctx context.Context, conn *connection, payload json.RawMessage) error {
	log := that.logger.With("method", "handleJoinGame")

	userID := conn.authenticatedUser()
	if userID == "" {
		that.sendError(conn, "not authenticated")
		return nil
	}

	var req joinGameRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Code == "" {
		that.sendError(conn, "code is required")
		return nil
	}

	state, err := that.game.Observe(ctx, req.Code)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		that.sendError(conn, "game not found")
		return nil
	}
	if err != nil {
		that.sendError(conn, "failed to join game")
		return fmt.Errorf("failed to observe game: %w", err)
	}

	// A participant coming back only rejoins the room; the game itself is
	// untouched.
	if state.Session.IsParticipant(userID) {
		that.joinRoom(conn, req.Code)
		log.Info("participant reconnected", "code", req.Code, "userID", userID)
		return that.send(conn, eventGameUpdated, state.View())
	}

	state, err = that.game.Join(ctx, req.Code, userID)
	if err != nil {
		if message, ok := userFacing(err); ok {
			that.sendError(conn, message)
			return nil
		}
		that.sendError(conn, "failed to join game")
		return fmt.Errorf("failed to join game: %w", err)
	}

	that.joinRoom(conn, req.Code)
	that.AnnounceStarted(state)

	log.Info("player joined game", "code", req.Code, "userID", userID)

	return nil
}

func (that *Server) handleJoinRoom(ctx context.Context, conn *connection, payload json.RawMessage) error {
	var req roomRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Code == "" {
		that.sendError(conn, "code is required")
		return nil
	}

	// Watching a room is open to spectators; it never implies joining
	// the game.
	state, err := that.game.Observe(ctx, req.Code)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		that.sendError(conn, "game not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to observe game: %w", err)
	}

	that.joinRoom(conn, req.Code)

	return that.send(conn, eventGameUpdated, state.View())
}

func (that *Server) handleLeaveRoom(_ context.Context, conn *connection, payload json.RawMessage) error {
	var req roomRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Code == "" {
		that.sendError(conn, "code is required")
		return nil
	}

	that.leaveRoom(conn, req.Code)

	return nil
}

func (that *Server) handleMakeMove(ctx context.Context, conn *connection, payload json.RawMessage) error {
	log := that.logger.With("method", "handleMakeMove")

	userID := conn.authenticatedUser()
	if userID == "" {
		that.sendError(conn, "not authenticated")
		return nil
	}

	var req makeMoveRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Code == "" {
		that.sendError(conn, "code and stones are required")
		return nil
	}

	state, result, err := that.game.SubmitMove(ctx, req.Code, userID, req.Stones)
	if err != nil {
		if message, ok := userFacing(err); ok {
			that.sendError(conn, message)
			return nil
		}
		that.sendError(conn, "failed to make move")
		return fmt.Errorf("failed to make move: %w", err)
	}

	that.AnnounceMove(state, userID, result)

	if state.Session.IsFinished() {
		log.Info("game finished", "code", req.Code)
	} else {
		log.Info("move accepted", "code", req.Code)
	}

	return nil
}

func (that *Server) handleHeartbeat(_ context.Context, conn *connection, _ json.RawMessage) error {
	conn.touch()
	return that.send(conn, eventHeartbeatAck, struct{}{})
}

// userFacing maps business-rule violations to their terse client messages.
// Anything else is internal and stays internal.
func userFacing(err error) (string, bool) {
	for _, sentinel := range []error{
		apperror.ErrSessionNotFound,
		apperror.ErrAlreadyFinished,
		apperror.ErrNotInProgress,
		apperror.ErrSelfJoin,
		apperror.ErrSessionFull,
		apperror.ErrNotAParticipant,
		apperror.ErrDuplicateMove,
		apperror.ErrBidOutOfRange,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}

	return "", false
}
