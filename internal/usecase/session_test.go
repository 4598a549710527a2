package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
	"github.com/scythianladder/scythian-ladder-backend/internal/registry"
	"github.com/scythianladder/scythian-ladder-backend/internal/repository"
)

var errStoreDown = errors.New("store down")

type fakeSessionRepo struct {
	mu             sync.Mutex
	byCode         map[string]*entity.GameSession
	rejectCreates  int
	failUpdateWith error
	createCalls    int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byCode: make(map[string]*entity.GameSession)}
}

func (that *fakeSessionRepo) Create(_ context.Context, session *entity.GameSession) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.createCalls++
	if that.rejectCreates > 0 {
		that.rejectCreates--
		return repository.ErrCodeTaken
	}
	if _, ok := that.byCode[session.Code]; ok {
		return repository.ErrCodeTaken
	}

	that.byCode[session.Code] = session.Clone()
	return nil
}

func (that *fakeSessionRepo) FindByCode(_ context.Context, code string) (*entity.GameSession, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.byCode[code]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (that *fakeSessionRepo) Update(_ context.Context, session *entity.GameSession) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.failUpdateWith != nil {
		return that.failUpdateWith
	}

	stored, ok := that.byCode[session.Code]
	if !ok {
		return apperror.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return apperror.ErrVersionConflict
	}

	session.Version++
	that.byCode[session.Code] = session.Clone()
	return nil
}

func (that *fakeSessionRepo) DeleteStaleWaiting(_ context.Context, olderThan time.Time) ([]string, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var codes []string
	for code, session := range that.byCode {
		if session.IsWaiting() && session.CreatedAt.Before(olderThan) {
			delete(that.byCode, code)
			codes = append(codes, code)
		}
	}

	return codes, nil
}

func (that *fakeSessionRepo) DeleteWaitingByOwner(_ context.Context, ownerID string) ([]string, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var codes []string
	for code, session := range that.byCode {
		if session.IsWaiting() && session.Player1ID == ownerID {
			delete(that.byCode, code)
			codes = append(codes, code)
		}
	}

	return codes, nil
}

func (that *fakeSessionRepo) ListOpen(_ context.Context) ([]entity.GameSession, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var sessions []entity.GameSession
	for _, session := range that.byCode {
		if session.IsWaiting() && session.Player2ID == nil {
			sessions = append(sessions, *session.Clone())
		}
	}

	return sessions, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newFakeUserRepo(users ...*entity.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*entity.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (that *fakeUserRepo) FindByID(_ context.Context, id string) (*entity.User, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	user, ok := that.users[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}

	copied := *user
	return &copied, nil
}

func (that *fakeUserRepo) IncrementWins(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.users[id].Wins++
	return nil
}

func (that *fakeUserRepo) IncrementLosses(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.users[id].Losses++
	return nil
}

func newTestManager(t *testing.T) (*SessionManager, *fakeSessionRepo, *fakeUserRepo, *registry.SessionRegistry) {
	t.Helper()

	sessions := newFakeSessionRepo()
	users := newFakeUserRepo(
		&entity.User{ID: "user-1", Name: "hippolyta"},
		&entity.User{ID: "user-2", Name: "toxaris"},
		&entity.User{ID: "user-3", Name: "anacharsis"},
	)
	reg := registry.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewSessionManager(logger, sessions, users, reg), sessions, users, reg
}

func TestSessionManager_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates a fresh waiting session", func(t *testing.T) {
		// Given: a manager with a known owner
		manager, _, _, _ := newTestManager(t)

		// When: the owner creates a session
		state, err := manager.Create(ctx, "user-1")

		// Then: it starts WAITING with full balances and a centered stone
		require.NoError(t, err)
		session := state.Session
		assert.Len(t, session.Code, 6)
		assert.Equal(t, entity.StatusWaiting, session.Status)
		assert.Equal(t, "user-1", session.Player1ID)
		assert.Nil(t, session.Player2ID)
		assert.Equal(t, 0, session.StonePosition)
		assert.Equal(t, 50, session.Balance1)
		assert.Equal(t, 50, session.Balance2)
	})

	t.Run("Retries code generation on collision", func(t *testing.T) {
		// Given: a store that rejects the first three codes as taken
		manager, sessions, _, _ := newTestManager(t)
		sessions.rejectCreates = 3

		// When: creating a session
		state, err := manager.Create(ctx, "user-1")

		// Then: creation succeeds after retries
		require.NoError(t, err)
		assert.NotEmpty(t, state.Session.Code)
		assert.Equal(t, 4, sessions.createCalls)
	})

	t.Run("Fails for an unknown owner", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)

		_, err := manager.Create(ctx, "nobody")

		require.ErrorIs(t, err, apperror.ErrUserNotFound)
	})
}

func TestSessionManager_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("Second player starts the match", func(t *testing.T) {
		// Given: a waiting session owned by user-1
		manager, _, _, _ := newTestManager(t)
		created, err := manager.Create(ctx, "user-1")
		require.NoError(t, err)

		// When: a distinct user joins
		state, err := manager.Join(ctx, created.Session.Code, "user-2")

		// Then: the session is IN_PROGRESS with both players set
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, state.Session.Status)
		require.NotNil(t, state.Session.Player2ID)
		assert.Equal(t, "user-2", *state.Session.Player2ID)
		require.NotNil(t, state.Player2)
		assert.Equal(t, "toxaris", state.Player2.Name)
	})

	t.Run("Unknown code", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)

		_, err := manager.Join(ctx, "ZZZZZZ", "user-2")

		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Owner cannot join their own session", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)
		created, _ := manager.Create(ctx, "user-1")

		_, err := manager.Join(ctx, created.Session.Code, "user-1")

		require.ErrorIs(t, err, apperror.ErrSelfJoin)
	})

	t.Run("Re-join by the second player is idempotent", func(t *testing.T) {
		// Given: an in-progress session
		manager, _, _, _ := newTestManager(t)
		created, _ := manager.Create(ctx, "user-1")
		first, err := manager.Join(ctx, created.Session.Code, "user-2")
		require.NoError(t, err)

		// When: the same player joins again
		second, err := manager.Join(ctx, created.Session.Code, "user-2")

		// Then: the identical state comes back, unchanged
		require.NoError(t, err)
		assert.Equal(t, first.Session.Status, second.Session.Status)
		assert.Equal(t, first.Session.Version, second.Session.Version)
	})

	t.Run("A third player is rejected", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)
		created, _ := manager.Create(ctx, "user-1")
		_, err := manager.Join(ctx, created.Session.Code, "user-2")
		require.NoError(t, err)

		_, err = manager.Join(ctx, created.Session.Code, "user-3")

		require.ErrorIs(t, err, apperror.ErrSessionFull)
	})
}

func TestSessionManager_SubmitMove(t *testing.T) {
	ctx := context.Background()

	startMatch := func(t *testing.T, manager *SessionManager) string {
		t.Helper()
		created, err := manager.Create(ctx, "user-1")
		require.NoError(t, err)
		_, err = manager.Join(ctx, created.Session.Code, "user-2")
		require.NoError(t, err)
		return created.Session.Code
	}

	t.Run("First bid only sets the pending slot", func(t *testing.T) {
		// Given: a running match
		manager, _, _, _ := newTestManager(t)
		code := startMatch(t, manager)

		// When: player 1 bids
		state, result, err := manager.SubmitMove(ctx, code, "user-1", 10)

		// Then: nothing resolves yet and the sanitized view hides the value
		require.NoError(t, err)
		assert.Nil(t, result)
		view := state.View()
		assert.True(t, view.HasPendingMove1)
		assert.False(t, view.HasPendingMove2)
		assert.Equal(t, 50, view.Balance1)
	})

	t.Run("Second bid resolves the round", func(t *testing.T) {
		// Given: player 1 already bid 10
		manager, _, _, _ := newTestManager(t)
		code := startMatch(t, manager)
		_, _, err := manager.SubmitMove(ctx, code, "user-1", 10)
		require.NoError(t, err)

		// When: player 2 bids 5
		state, result, err := manager.SubmitMove(ctx, code, "user-2", 5)

		// Then: the stone moved toward player 1, balances dropped, pendings reset
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 10, result.Move1)
		assert.Equal(t, 5, result.Move2)

		session := state.Session
		assert.Equal(t, -1, session.StonePosition)
		assert.Equal(t, 40, session.Balance1)
		assert.Equal(t, 45, session.Balance2)
		assert.Nil(t, session.PendingMove1)
		assert.Nil(t, session.PendingMove2)
		assert.Equal(t, entity.StatusInProgress, session.Status)
	})

	t.Run("Duplicate bid in one round is rejected", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)
		code := startMatch(t, manager)
		_, _, err := manager.SubmitMove(ctx, code, "user-1", 10)
		require.NoError(t, err)

		_, _, err = manager.SubmitMove(ctx, code, "user-1", 12)

		require.ErrorIs(t, err, apperror.ErrDuplicateMove)
	})

	t.Run("Bid outside the range is rejected before touching state", func(t *testing.T) {
		manager, _, _, reg := newTestManager(t)
		code := startMatch(t, manager)

		_, _, err := manager.SubmitMove(ctx, code, "user-1", 49)
		require.ErrorIs(t, err, apperror.ErrBidOutOfRange)
		_, _, err = manager.SubmitMove(ctx, code, "user-1", 0)
		require.ErrorIs(t, err, apperror.ErrBidOutOfRange)

		cached, ok := reg.Get(code)
		require.True(t, ok)
		assert.Nil(t, cached.PendingMove1)
	})

	t.Run("Spectators cannot bid", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)
		code := startMatch(t, manager)

		_, _, err := manager.SubmitMove(ctx, code, "user-3", 10)

		require.ErrorIs(t, err, apperror.ErrNotAParticipant)
	})

	t.Run("No bids while still waiting", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)
		created, _ := manager.Create(ctx, "user-1")

		_, _, err := manager.SubmitMove(ctx, created.Session.Code, "user-1", 10)

		require.ErrorIs(t, err, apperror.ErrNotInProgress)
	})

	t.Run("Exhausting your own balance loses away from the edge", func(t *testing.T) {
		// Given: position -1 with balances (2, 45)
		manager, sessions, users, reg := newTestManager(t)
		code := startMatch(t, manager)
		seedRound(t, sessions, reg, code, -1, 2, 45)

		// When: player 1 bids their last 2 against a bid of 1
		_, _, err := manager.SubmitMove(ctx, code, "user-1", 2)
		require.NoError(t, err)
		state, result, err := manager.SubmitMove(ctx, code, "user-2", 1)

		// Then: player 2 wins and the books record one win and one loss
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, entity.StatusFinished, state.Session.Status)
		require.NotNil(t, state.Session.WinnerID)
		assert.Equal(t, "user-2", *state.Session.WinnerID)

		winner, _ := users.FindByID(ctx, "user-2")
		loser, _ := users.FindByID(ctx, "user-1")
		assert.Equal(t, 1, winner.Wins)
		assert.Equal(t, 0, winner.Losses)
		assert.Equal(t, 0, loser.Wins)
		assert.Equal(t, 1, loser.Losses)
	})

	t.Run("Mutual exhaustion at center is a draw and both record a loss", func(t *testing.T) {
		// Given: position 0 with both balances at 1
		manager, sessions, users, reg := newTestManager(t)
		code := startMatch(t, manager)
		seedRound(t, sessions, reg, code, 0, 1, 1)

		// When: both players bid their last stone
		_, _, err := manager.SubmitMove(ctx, code, "user-1", 1)
		require.NoError(t, err)
		state, _, err := manager.SubmitMove(ctx, code, "user-2", 1)

		// Then: the session finishes with no winner
		require.NoError(t, err)
		assert.Equal(t, entity.StatusFinished, state.Session.Status)
		assert.Nil(t, state.Session.WinnerID)

		player1, _ := users.FindByID(ctx, "user-1")
		player2, _ := users.FindByID(ctx, "user-2")
		assert.Equal(t, 1, player1.Losses)
		assert.Equal(t, 1, player2.Losses)
		assert.Equal(t, 0, player1.Wins)
		assert.Equal(t, 0, player2.Wins)
	})

	t.Run("Finished sessions reject everything and never change", func(t *testing.T) {
		// Given: a finished session
		manager, sessions, _, reg := newTestManager(t)
		code := startMatch(t, manager)
		seedRound(t, sessions, reg, code, 1, 20, 20)
		_, _, err := manager.SubmitMove(ctx, code, "user-1", 1)
		require.NoError(t, err)
		finished, _, err := manager.SubmitMove(ctx, code, "user-2", 5)
		require.NoError(t, err)
		require.Equal(t, entity.StatusFinished, finished.Session.Status)
		winnerBefore := *finished.Session.WinnerID

		// When: further moves and joins arrive
		_, _, moveErr := manager.SubmitMove(ctx, code, "user-1", 3)
		_, joinErr := manager.Join(ctx, code, "user-3")

		// Then: both fail and the terminal state is untouched
		require.ErrorIs(t, moveErr, apperror.ErrAlreadyFinished)
		require.ErrorIs(t, joinErr, apperror.ErrAlreadyFinished)

		after, err := manager.Observe(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusFinished, after.Session.Status)
		assert.Equal(t, winnerBefore, *after.Session.WinnerID)
		assert.Equal(t, finished.Session.StonePosition, after.Session.StonePosition)
	})

	t.Run("A failed store write leaves the registry untouched", func(t *testing.T) {
		// Given: a store that starts failing writes
		manager, sessions, _, reg := newTestManager(t)
		code := startMatch(t, manager)
		sessions.failUpdateWith = errStoreDown

		// When: a bid arrives
		_, _, err := manager.SubmitMove(ctx, code, "user-1", 10)

		// Then: the call fails and the cache still shows no pending move
		require.Error(t, err)
		cached, ok := reg.Get(code)
		require.True(t, ok)
		assert.Nil(t, cached.PendingMove1)
	})

	t.Run("Concurrent bids resolve exactly one round", func(t *testing.T) {
		// Given: a running match
		manager, _, _, _ := newTestManager(t)
		code := startMatch(t, manager)

		// When: both players bid at the same instant
		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, errs[0] = manager.SubmitMove(ctx, code, "user-1", 10)
		}()
		go func() {
			defer wg.Done()
			_, _, errs[1] = manager.SubmitMove(ctx, code, "user-2", 5)
		}()
		wg.Wait()

		// Then: both submissions succeed and the round resolved once
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		state, err := manager.Observe(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, -1, state.Session.StonePosition)
		assert.Equal(t, 40, state.Session.Balance1)
		assert.Equal(t, 45, state.Session.Balance2)
		assert.Nil(t, state.Session.PendingMove1)
		assert.Nil(t, state.Session.PendingMove2)
	})
}

// seedRound rewrites an in-progress session's position and balances through
// the store and cache, to set up endgame scenarios.
func seedRound(t *testing.T, sessions *fakeSessionRepo, reg *registry.SessionRegistry, code string, position, balance1, balance2 int) {
	t.Helper()

	session, err := sessions.FindByCode(context.Background(), code)
	require.NoError(t, err)

	session.StonePosition = position
	session.Balance1 = balance1
	session.Balance2 = balance2
	require.NoError(t, sessions.Update(context.Background(), session))
	reg.Put(session)
}

func TestSessionManager_Observe(t *testing.T) {
	ctx := context.Background()

	t.Run("Observation never mutates", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)
		created, err := manager.Create(ctx, "user-1")
		require.NoError(t, err)

		state, err := manager.Observe(ctx, created.Session.Code)

		require.NoError(t, err)
		assert.Equal(t, created.Session.Version, state.Session.Version)
	})

	t.Run("Registry is lazily repopulated after a restart", func(t *testing.T) {
		// Given: a session durable in the store but absent from a fresh registry
		manager, sessions, _, _ := newTestManager(t)
		created, err := manager.Create(ctx, "user-1")
		require.NoError(t, err)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		freshReg := registry.New()
		restarted := NewSessionManager(logger, sessions, newFakeUserRepo(&entity.User{ID: "user-1", Name: "hippolyta"}, &entity.User{ID: "user-2", Name: "toxaris"}), freshReg)

		// When: a mutation arrives through the restarted process
		state, err := restarted.Join(ctx, created.Session.Code, "user-2")

		// Then: the session was fetched from the store and cached
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, state.Session.Status)
		_, ok := freshReg.Get(created.Session.Code)
		assert.True(t, ok)
	})
}

func TestSessionManager_Cleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("Disconnect drops only the owner's waiting lobbies", func(t *testing.T) {
		// Given: one waiting lobby and one running match owned by user-1
		manager, _, _, reg := newTestManager(t)
		waiting, err := manager.Create(ctx, "user-1")
		require.NoError(t, err)
		running, err := manager.Create(ctx, "user-1")
		require.NoError(t, err)
		_, err = manager.Join(ctx, running.Session.Code, "user-2")
		require.NoError(t, err)

		// When: the owner's connection dies
		codes, err := manager.CleanupWaitingByOwner(ctx, "user-1")

		// Then: the lobby is gone, the match survives
		require.NoError(t, err)
		assert.Equal(t, []string{waiting.Session.Code}, codes)
		_, err = manager.Observe(ctx, waiting.Session.Code)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)

		state, err := manager.Observe(ctx, running.Session.Code)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, state.Session.Status)
		_, ok := reg.Get(waiting.Session.Code)
		assert.False(t, ok)
	})

	t.Run("Stale waiting lobbies are swept by age", func(t *testing.T) {
		// Given: a lobby created in the past
		manager, sessions, _, _ := newTestManager(t)
		created, err := manager.Create(ctx, "user-1")
		require.NoError(t, err)

		sessions.mu.Lock()
		sessions.byCode[created.Session.Code].CreatedAt = time.Now().Add(-time.Hour)
		sessions.mu.Unlock()

		// When: the sweep runs with a 10 minute threshold
		codes, err := manager.SweepStaleWaiting(ctx, time.Now().Add(-10*time.Minute))

		// Then: the lobby is deleted, with no winner assigned anywhere
		require.NoError(t, err)
		assert.Equal(t, []string{created.Session.Code}, codes)
		_, err = manager.Observe(ctx, created.Session.Code)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})
}
