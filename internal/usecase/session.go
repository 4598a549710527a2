package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
	"github.com/scythianladder/scythian-ladder-backend/internal/ladder"
	"github.com/scythianladder/scythian-ladder-backend/internal/pkg"
	"github.com/scythianladder/scythian-ladder-backend/internal/repository"
)

// maxCodeAttempts bounds retry-on-collision for session codes. With a
// 36^6 code space, hitting it means the store is effectively full.
const maxCodeAttempts = 10

type sessionRepo interface {
	Create(ctx context.Context, session *entity.GameSession) error
	FindByCode(ctx context.Context, code string) (*entity.GameSession, error)
	Update(ctx context.Context, session *entity.GameSession) error
	DeleteStaleWaiting(ctx context.Context, olderThan time.Time) ([]string, error)
	DeleteWaitingByOwner(ctx context.Context, ownerID string) ([]string, error)
	ListOpen(ctx context.Context) ([]entity.GameSession, error)
}

type userRepo interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
	IncrementWins(ctx context.Context, id string) error
	IncrementLosses(ctx context.Context, id string) error
}

type sessionRegistry interface {
	Lock(code string) func()
	Get(code string) (*entity.GameSession, bool)
	Put(session *entity.GameSession)
	Delete(code string)
}

// SessionManager is the authoritative state machine for game sessions. All
// mutations of one session are serialized through the registry's per-code
// lock; the store write always precedes the registry update, so a failed
// write never advances the cache.
type SessionManager struct {
	logger   *slog.Logger
	sessions sessionRepo
	users    userRepo
	registry sessionRegistry
}

func NewSessionManager(logger *slog.Logger, sessions sessionRepo, users userRepo, registry sessionRegistry) *SessionManager {
	return &SessionManager{
		logger:   logger.With("component", "session-manager"),
		sessions: sessions,
		users:    users,
		registry: registry,
	}
}

// Create opens a new WAITING session owned by ownerID, retrying code
// generation on store collisions.
func (that *SessionManager) Create(ctx context.Context, ownerID string) (*entity.SessionState, error) {
	if _, err := that.users.FindByID(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}

	now := time.Now().UTC()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		session := &entity.GameSession{
			ID:            uuid.NewString(),
			Code:          pkg.GenerateSessionCode(),
			Status:        entity.StatusWaiting,
			Player1ID:     ownerID,
			StonePosition: ladder.StartPosition,
			Balance1:      ladder.StartingBalance,
			Balance2:      ladder.StartingBalance,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err := that.sessions.Create(ctx, session)
		if errors.Is(err, repository.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}

		that.registry.Put(session)

		return that.composeState(ctx, session)
	}

	return nil, fmt.Errorf("failed to generate a unique session code after %d attempts", maxCodeAttempts)
}

// Join adds userID as the second player and starts the match. A re-join by
// the current second player is an idempotent success, not an error.
func (that *SessionManager) Join(ctx context.Context, code, userID string) (*entity.SessionState, error) {
	unlock := that.registry.Lock(code)
	defer unlock()

	session, err := that.load(ctx, code)
	if err != nil {
		return nil, err
	}

	switch {
	case session.IsFinished():
		return nil, apperror.ErrAlreadyFinished
	case session.Player1ID == userID:
		return nil, apperror.ErrSelfJoin
	case session.Player2ID != nil && *session.Player2ID == userID:
		return that.composeState(ctx, session)
	case session.Player2ID != nil:
		return nil, apperror.ErrSessionFull
	case !session.IsWaiting():
		return nil, apperror.ErrSessionFull
	}

	if _, err = that.users.FindByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to find joining user: %w", err)
	}

	session.Player2ID = &userID
	session.Status = entity.StatusInProgress
	session.UpdatedAt = time.Now().UTC()

	if err = that.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	that.registry.Put(session)

	return that.composeState(ctx, session)
}

// SubmitMove records one player's hidden bid. When it completes the round,
// resolution, persistence and counter bookkeeping happen inline and the
// returned Result carries the revealed bids.
func (that *SessionManager) SubmitMove(ctx context.Context, code, userID string, stones int) (*entity.SessionState, *ladder.Result, error) {
	unlock := that.registry.Lock(code)
	defer unlock()

	session, err := that.load(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	if !session.IsInProgress() {
		if session.IsFinished() {
			return nil, nil, apperror.ErrAlreadyFinished
		}
		return nil, nil, apperror.ErrNotInProgress
	}

	if !session.IsParticipant(userID) {
		return nil, nil, apperror.ErrNotAParticipant
	}

	if !ladder.ValidBid(stones) {
		return nil, nil, apperror.ErrBidOutOfRange
	}

	if session.IsPlayer1(userID) {
		if session.PendingMove1 != nil {
			return nil, nil, apperror.ErrDuplicateMove
		}
		session.PendingMove1 = &stones
	} else {
		if session.PendingMove2 != nil {
			return nil, nil, apperror.ErrDuplicateMove
		}
		session.PendingMove2 = &stones
	}

	session.UpdatedAt = time.Now().UTC()

	if !session.BothMovesPending() {
		if err = that.sessions.Update(ctx, session); err != nil {
			return nil, nil, fmt.Errorf("failed to update session: %w", err)
		}

		that.registry.Put(session)

		state, err := that.composeState(ctx, session)
		return state, nil, err
	}

	result := ladder.Resolve(
		session.StonePosition,
		session.Balance1, session.Balance2,
		*session.PendingMove1, *session.PendingMove2,
	)

	that.applyResult(session, result)

	if err = that.sessions.Update(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", err)
	}

	that.registry.Put(session)

	if session.IsFinished() {
		that.recordOutcome(ctx, session)
	}

	state, err := that.composeState(ctx, session)
	return state, &result, err
}

// Observe is the read-only fetch used for reconnection and spectating.
func (that *SessionManager) Observe(ctx context.Context, code string) (*entity.SessionState, error) {
	session, ok := that.registry.Get(code)
	if !ok {
		var err error
		session, err = that.sessions.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
	}

	return that.composeState(ctx, session)
}

// ListOpen returns joinable WAITING sessions with their owners resolved.
func (that *SessionManager) ListOpen(ctx context.Context) ([]entity.SessionState, error) {
	sessions, err := that.sessions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}

	states := make([]entity.SessionState, 0, len(sessions))
	for i := range sessions {
		state, err := that.composeState(ctx, &sessions[i])
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}

	return states, nil
}

// CleanupWaitingByOwner drops every WAITING lobby a disconnected user owns.
// Sessions already in progress are untouched; a disconnected participant
// may reconnect, there is no auto-forfeit.
func (that *SessionManager) CleanupWaitingByOwner(ctx context.Context, ownerID string) ([]string, error) {
	codes, err := that.sessions.DeleteWaitingByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to cleanup waiting sessions: %w", err)
	}

	for _, code := range codes {
		that.registry.Delete(code)
	}

	return codes, nil
}

// SweepStaleWaiting garbage-collects lobbies idle past the threshold. No
// winner is assigned; they simply never happened.
func (that *SessionManager) SweepStaleWaiting(ctx context.Context, olderThan time.Time) ([]string, error) {
	codes, err := that.sessions.DeleteStaleWaiting(ctx, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep stale sessions: %w", err)
	}

	for _, code := range codes {
		that.registry.Delete(code)
	}

	return codes, nil
}

func (that *SessionManager) applyResult(session *entity.GameSession, result ladder.Result) {
	session.StonePosition = result.Position
	session.Balance1 = result.Balance1
	session.Balance2 = result.Balance2
	session.PendingMove1 = nil
	session.PendingMove2 = nil

	if !result.Finished {
		return
	}

	session.Status = entity.StatusFinished

	switch result.Winner {
	case ladder.SidePlayer1:
		winnerID := session.Player1ID
		session.WinnerID = &winnerID
	case ladder.SidePlayer2:
		session.WinnerID = session.Player2ID
	case ladder.NoSide:
		// draw, no winner
	}
}

// recordOutcome increments win/loss counters exactly once per participant.
// A draw counts as a loss for both sides. Counter failures are logged, not
// fatal; the session itself is already durable.
func (that *SessionManager) recordOutcome(ctx context.Context, session *entity.GameSession) {
	log := that.logger.With("method", "recordOutcome", "code", session.Code)

	if session.WinnerID == nil {
		if err := that.users.IncrementLosses(ctx, session.Player1ID); err != nil {
			log.Error("failed to record loss", "userID", session.Player1ID, "error", err)
		}
		if session.Player2ID != nil {
			if err := that.users.IncrementLosses(ctx, *session.Player2ID); err != nil {
				log.Error("failed to record loss", "userID", *session.Player2ID, "error", err)
			}
		}
		return
	}

	loserID := session.Player1ID
	if *session.WinnerID == session.Player1ID && session.Player2ID != nil {
		loserID = *session.Player2ID
	}

	if err := that.users.IncrementWins(ctx, *session.WinnerID); err != nil {
		log.Error("failed to record win", "userID", *session.WinnerID, "error", err)
	}
	if err := that.users.IncrementLosses(ctx, loserID); err != nil {
		log.Error("failed to record loss", "userID", loserID, "error", err)
	}
}

// load returns a private copy of the session, lazily repopulating the
// registry from the store after a restart.
func (that *SessionManager) load(ctx context.Context, code string) (*entity.GameSession, error) {
	if session, ok := that.registry.Get(code); ok {
		return session, nil
	}

	session, err := that.sessions.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	that.registry.Put(session)

	return session, nil
}

func (that *SessionManager) composeState(ctx context.Context, session *entity.GameSession) (*entity.SessionState, error) {
	state := &entity.SessionState{Session: session}

	player1, err := that.users.FindByID(ctx, session.Player1ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find player 1: %w", err)
	}
	state.Player1 = player1

	if session.Player2ID != nil {
		player2, err := that.users.FindByID(ctx, *session.Player2ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find player 2: %w", err)
		}
		state.Player2 = player2
	}

	if session.WinnerID != nil {
		switch {
		case state.Player1.ID == *session.WinnerID:
			state.Winner = state.Player1
		case state.Player2 != nil && state.Player2.ID == *session.WinnerID:
			state.Winner = state.Player2
		}
	}

	return state, nil
}
