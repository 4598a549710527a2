package apperror

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotAuthenticated = errors.New("not authenticated")

	ErrAlreadyFinished = errors.New("session is already finished")
	ErrNotInProgress   = errors.New("session is not in progress")
	ErrSelfJoin        = errors.New("cannot join your own session")
	ErrSessionFull     = errors.New("session is full")
	ErrNotAParticipant = errors.New("you are not a participant of this session")
	ErrDuplicateMove   = errors.New("you have already made your move this round")
	ErrBidOutOfRange   = errors.New("bid must be between 1 and 48")

	ErrNameTaken          = errors.New("name is already taken")
	ErrInvalidCredentials = errors.New("invalid name or password")

	ErrVersionConflict = errors.New("session was modified concurrently")
)
