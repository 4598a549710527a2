package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eskrenkovic/tql"
	"github.com/lib/pq"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByName(ctx context.Context, name string) (*entity.User, error)
	IncrementWins(ctx context.Context, id string) error
	IncrementLosses(ctx context.Context, id string) error
	Leaderboard(ctx context.Context) ([]entity.User, error)
}

type userRepository struct {
	conn *sql.DB
}

func NewUserRepository(conn *sql.DB) UserRepository {
	return &userRepository{
		conn: conn,
	}
}

func (that *userRepository) Create(ctx context.Context, user *entity.User) error {
	const stmt = `
		INSERT INTO users (id, name, full_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tql.Exec(ctx, that.conn, stmt, user.ID, user.Name, user.FullName, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return apperror.ErrNameTaken
	}
	if err != nil {
		return fmt.Errorf("can't save user: %w", err)
	}

	return nil
}

func (that *userRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	const query = `SELECT * FROM users WHERE id = $1`

	user, err := tql.QueryFirst[entity.User](ctx, that.conn, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't find user: %w", err)
	}

	return &user, nil
}

func (that *userRepository) FindByName(ctx context.Context, name string) (*entity.User, error) {
	const query = `SELECT * FROM users WHERE name = $1`

	user, err := tql.QueryFirst[entity.User](ctx, that.conn, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't find user: %w", err)
	}

	return &user, nil
}

func (that *userRepository) IncrementWins(ctx context.Context, id string) error {
	const stmt = `UPDATE users SET wins = wins + 1 WHERE id = $1`

	if _, err := tql.Exec(ctx, that.conn, stmt, id); err != nil {
		return fmt.Errorf("can't increment wins: %w", err)
	}

	return nil
}

func (that *userRepository) IncrementLosses(ctx context.Context, id string) error {
	const stmt = `UPDATE users SET losses = losses + 1 WHERE id = $1`

	if _, err := tql.Exec(ctx, that.conn, stmt, id); err != nil {
		return fmt.Errorf("can't increment losses: %w", err)
	}

	return nil
}

func (that *userRepository) Leaderboard(ctx context.Context) ([]entity.User, error) {
	const query = `SELECT * FROM users ORDER BY wins DESC, losses ASC, name ASC`

	users, err := tql.Query[entity.User](ctx, that.conn, query)
	if err != nil {
		return nil, fmt.Errorf("can't load leaderboard: %w", err)
	}

	return users, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
