package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
)

func (that *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

func (that *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := that.users.Register(r.Context(), req.Name, req.FullName, req.Password)
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	that.writeJSON(w, http.StatusCreated, user.Public())
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (that *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := that.users.Authenticate(r.Context(), req.Name, req.Password)
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, user.Public())
}

func (that *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	user, ok := that.identify(w, r)
	if !ok {
		return
	}

	state, err := that.game.Create(r.Context(), user.ID)
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	that.writeJSON(w, http.StatusCreated, state.View())
}

func (that *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	state, err := that.game.Observe(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, state.View())
}

func (that *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	user, ok := that.identify(w, r)
	if !ok {
		return
	}

	code := chi.URLParam(r, "code")

	state, err := that.game.Join(r.Context(), code, user.ID)
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	that.events.AnnounceStarted(state)
	that.writeJSON(w, http.StatusOK, state.View())
}

type makeMoveRequest struct {
	Stones int `json:"stones"`
}

// moveResponse adds the round summary when the submitted bid completed a
// round. The view itself never carries unresolved bid values.
type moveResponse struct {
	Session *entity.SessionView `json:"session"`
	Round   *roundSummary       `json:"round,omitempty"`
}

type roundSummary struct {
	Move1    int `json:"move1"`
	Move2    int `json:"move2"`
	Position int `json:"position"`
	Balance1 int `json:"balance1"`
	Balance2 int `json:"balance2"`
}

func (that *Server) handleMakeMove(w http.ResponseWriter, r *http.Request) {
	user, ok := that.identify(w, r)
	if !ok {
		return
	}

	var req makeMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code := chi.URLParam(r, "code")

	state, result, err := that.game.SubmitMove(r.Context(), code, user.ID, req.Stones)
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	that.events.AnnounceMove(state, user.ID, result)

	response := moveResponse{Session: state.View()}
	if result != nil {
		response.Round = &roundSummary{
			Move1:    result.Move1,
			Move2:    result.Move2,
			Position: result.Position,
			Balance1: result.Balance1,
			Balance2: result.Balance2,
		}
	}

	that.writeJSON(w, http.StatusOK, response)
}

func (that *Server) handleListOpen(w http.ResponseWriter, r *http.Request) {
	states, err := that.game.ListOpen(r.Context())
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	views := make([]*entity.SessionView, 0, len(states))
	for i := range states {
		views = append(views, states[i].View())
	}

	that.writeJSON(w, http.StatusOK, views)
}

func (that *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	users, err := that.users.Leaderboard(r.Context())
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	type rankedUser struct {
		*entity.PublicUser
		Rank int `json:"rank"`
	}

	ranked := make([]rankedUser, 0, len(users))
	for i := range users {
		ranked = append(ranked, rankedUser{PublicUser: users[i].Public(), Rank: i + 1})
	}

	that.writeJSON(w, http.StatusOK, ranked)
}

func (that *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := that.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeFailure(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, user.Public())
}

// identify resolves the calling user from the X-User-ID header. Real session
// auth lives in the frontend's auth layer; this surface only checks the
// user exists.
func (that *Server) identify(w http.ResponseWriter, r *http.Request) (*entity.User, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		that.writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}

	user, err := that.users.GetByID(r.Context(), id)
	if err != nil {
		that.writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}

	return user, true
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}

func (that *Server) writeError(w http.ResponseWriter, status int, message string) {
	that.writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps the error taxonomy to HTTP statuses; anything unmapped
// is an internal failure and surfaces as a generic 500.
func (that *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound), errors.Is(err, apperror.ErrUserNotFound):
		that.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperror.ErrBidOutOfRange):
		that.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperror.ErrInvalidCredentials):
		that.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apperror.ErrNameTaken),
		errors.Is(err, apperror.ErrAlreadyFinished),
		errors.Is(err, apperror.ErrNotInProgress),
		errors.Is(err, apperror.ErrSelfJoin),
		errors.Is(err, apperror.ErrSessionFull),
		errors.Is(err, apperror.ErrNotAParticipant),
		errors.Is(err, apperror.ErrDuplicateMove):
		that.writeError(w, http.StatusConflict, err.Error())
	default:
		that.logger.Error("request failed", "error", err)
		that.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
