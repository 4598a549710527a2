package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
)

type userStore interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByName(ctx context.Context, name string) (*entity.User, error)
	Leaderboard(ctx context.Context) ([]entity.User, error)
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(digest, plaintext string) error
}

type UserManager struct {
	logger *slog.Logger
	users  userStore
	hasher passwordHasher
}

func NewUserManager(logger *slog.Logger, users userStore, hasher passwordHasher) *UserManager {
	return &UserManager{
		logger: logger.With("component", "user-manager"),
		users:  users,
		hasher: hasher,
	}
}

func (that *UserManager) Register(ctx context.Context, name, fullName, password string) (*entity.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, apperror.ErrInvalidCredentials
	}

	digest, err := that.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{
		ID:           uuid.NewString(),
		Name:         name,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: digest,
		CreatedAt:    time.Now().UTC(),
	}

	if err = that.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (that *UserManager) Authenticate(ctx context.Context, name, password string) (*entity.User, error) {
	user, err := that.users.FindByName(ctx, name)
	if err != nil {
		// same answer for unknown name and wrong password
		return nil, apperror.ErrInvalidCredentials
	}

	if err = that.hasher.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	return user, nil
}

func (that *UserManager) GetByID(ctx context.Context, id string) (*entity.User, error) {
	user, err := that.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (that *UserManager) Leaderboard(ctx context.Context) ([]entity.User, error) {
	users, err := that.users.Leaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	return users, nil
}
