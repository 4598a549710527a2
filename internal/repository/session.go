package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eskrenkovic/tql"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
)

// ErrCodeTaken signals a session-code collision; callers generate a new code
// and retry.
var ErrCodeTaken = errors.New("session code already exists")

type SessionRepository interface {
	Create(ctx context.Context, session *entity.GameSession) error
	FindByCode(ctx context.Context, code string) (*entity.GameSession, error)
	Update(ctx context.Context, session *entity.GameSession) error
	DeleteByID(ctx context.Context, id string) error
	DeleteStaleWaiting(ctx context.Context, olderThan time.Time) ([]string, error)
	DeleteWaitingByOwner(ctx context.Context, ownerID string) ([]string, error)
	ListOpen(ctx context.Context) ([]entity.GameSession, error)
}

type sessionRepository struct {
	conn *sql.DB
}

func NewSessionRepository(conn *sql.DB) SessionRepository {
	return &sessionRepository{
		conn: conn,
	}
}

func (that *sessionRepository) Create(ctx context.Context, session *entity.GameSession) error {
	const stmt = `
		INSERT INTO game_sessions
			(id, code, status, player1_id, stone_position, balance1, balance2, version, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tql.Exec(ctx, that.conn, stmt,
		session.ID, session.Code, session.Status, session.Player1ID,
		session.StonePosition, session.Balance1, session.Balance2,
		session.Version, session.CreatedAt, session.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("can't save session: %w", err)
	}

	return nil
}

func (that *sessionRepository) FindByCode(ctx context.Context, code string) (*entity.GameSession, error) {
	const query = `SELECT * FROM game_sessions WHERE code = $1`

	session, err := tql.QueryFirst[entity.GameSession](ctx, that.conn, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't find session: %w", err)
	}

	return &session, nil
}

// Update writes every mutable field in one statement, guarded by an
// optimistic version check. The in-process lock serializes writers within
// one instance; the version check protects against a second instance.
func (that *sessionRepository) Update(ctx context.Context, session *entity.GameSession) error {
	const stmt = `
		UPDATE game_sessions SET
			status = $1,
			player2_id = $2,
			stone_position = $3,
			balance1 = $4,
			balance2 = $5,
			pending_move1 = $6,
			pending_move2 = $7,
			winner_id = $8,
			version = version + 1,
			updated_at = $9
		WHERE id = $10 AND version = $11`

	result, err := tql.Exec(ctx, that.conn, stmt,
		session.Status, session.Player2ID, session.StonePosition,
		session.Balance1, session.Balance2, session.PendingMove1, session.PendingMove2,
		session.WinnerID, session.UpdatedAt, session.ID, session.Version)
	if err != nil {
		return fmt.Errorf("can't update session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't read update result: %w", err)
	}

	if affected == 0 {
		if _, err = that.FindByCode(ctx, session.Code); errors.Is(err, apperror.ErrSessionNotFound) {
			return apperror.ErrSessionNotFound
		}
		return apperror.ErrVersionConflict
	}

	session.Version++

	return nil
}

func (that *sessionRepository) DeleteByID(ctx context.Context, id string) error {
	const stmt = `DELETE FROM game_sessions WHERE id = $1`

	if _, err := tql.Exec(ctx, that.conn, stmt, id); err != nil {
		return fmt.Errorf("can't delete session: %w", err)
	}

	return nil
}

// DeleteStaleWaiting removes abandoned lobbies and returns their codes so
// the registry can be pruned as well.
func (that *sessionRepository) DeleteStaleWaiting(ctx context.Context, olderThan time.Time) ([]string, error) {
	const stmt = `
		DELETE FROM game_sessions
		WHERE status = $1 AND created_at < $2
		RETURNING code`

	codes, err := tql.Query[string](ctx, that.conn, stmt, entity.StatusWaiting, olderThan)
	if err != nil {
		return nil, fmt.Errorf("can't delete stale sessions: %w", err)
	}

	return codes, nil
}

func (that *sessionRepository) DeleteWaitingByOwner(ctx context.Context, ownerID string) ([]string, error) {
	const stmt = `
		DELETE FROM game_sessions
		WHERE status = $1 AND player1_id = $2
		RETURNING code`

	codes, err := tql.Query[string](ctx, that.conn, stmt, entity.StatusWaiting, ownerID)
	if err != nil {
		return nil, fmt.Errorf("can't delete owner's waiting sessions: %w", err)
	}

	return codes, nil
}

func (that *sessionRepository) ListOpen(ctx context.Context) ([]entity.GameSession, error) {
	const query = `
		SELECT * FROM game_sessions
		WHERE status = $1 AND player2_id IS NULL
		ORDER BY created_at DESC`

	sessions, err := tql.Query[entity.GameSession](ctx, that.conn, query, entity.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("can't list open sessions: %w", err)
	}

	return sessions, nil
}
