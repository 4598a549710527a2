package entity

import "time"

const (
	StatusWaiting    = "WAITING"
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
)

// GameSession is the authoritative state of one match. Pending moves are
// hidden bids and must never leave the server unresolved; every outbound
// payload goes through View.
type GameSession struct {
	ID            string     `json:"id" db:"id"`
	Code          string     `json:"code" db:"code"`
	Status        string     `json:"status" db:"status"`
	Player1ID     string     `json:"player1_id" db:"player1_id"`
	Player2ID     *string    `json:"player2_id,omitempty" db:"player2_id"`
	StonePosition int        `json:"stone_position" db:"stone_position"`
	Balance1      int        `json:"balance1" db:"balance1"`
	Balance2      int        `json:"balance2" db:"balance2"`
	PendingMove1  *int       `json:"-" db:"pending_move1"`
	PendingMove2  *int       `json:"-" db:"pending_move2"`
	WinnerID      *string    `json:"winner_id,omitempty" db:"winner_id"`
	Version       int        `json:"-" db:"version"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

func (that *GameSession) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *GameSession) IsInProgress() bool {
	return that.Status == StatusInProgress
}

func (that *GameSession) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *GameSession) IsParticipant(userID string) bool {
	if that.Player1ID == userID {
		return true
	}

	return that.Player2ID != nil && *that.Player2ID == userID
}

func (that *GameSession) IsPlayer1(userID string) bool {
	return that.Player1ID == userID
}

func (that *GameSession) BothMovesPending() bool {
	return that.PendingMove1 != nil && that.PendingMove2 != nil
}

// Clone returns a deep copy, so registry snapshots cannot be mutated behind
// the state machine's back.
func (that *GameSession) Clone() *GameSession {
	clone := *that

	if that.Player2ID != nil {
		v := *that.Player2ID
		clone.Player2ID = &v
	}
	if that.PendingMove1 != nil {
		v := *that.PendingMove1
		clone.PendingMove1 = &v
	}
	if that.PendingMove2 != nil {
		v := *that.PendingMove2
		clone.PendingMove2 = &v
	}
	if that.WinnerID != nil {
		v := *that.WinnerID
		clone.WinnerID = &v
	}

	return &clone
}

// SessionState bundles a session with its resolved participants, the shape
// every mutating operation returns and every broadcast is built from.
type SessionState struct {
	Session *GameSession
	Player1 *User
	Player2 *User
	Winner  *User
}

// SessionView is the sanitized outbound snapshot. An unresolved bid is
// reported only as a boolean; the numeric value stays server-side until the
// round resolves.
type SessionView struct {
	ID              string      `json:"id"`
	Code            string      `json:"code"`
	Status          string      `json:"status"`
	Player1ID       string      `json:"player1_id"`
	Player2ID       *string     `json:"player2_id,omitempty"`
	Player1         *PublicUser `json:"player1,omitempty"`
	Player2         *PublicUser `json:"player2,omitempty"`
	StonePosition   int         `json:"stone_position"`
	Balance1        int         `json:"balance1"`
	Balance2        int         `json:"balance2"`
	HasPendingMove1 bool        `json:"has_pending_move1"`
	HasPendingMove2 bool        `json:"has_pending_move2"`
	Winner          *PublicUser `json:"winner,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (that *SessionState) View() *SessionView {
	session := that.Session

	return &SessionView{
		ID:              session.ID,
		Code:            session.Code,
		Status:          session.Status,
		Player1ID:       session.Player1ID,
		Player2ID:       session.Player2ID,
		Player1:         that.Player1.Public(),
		Player2:         that.Player2.Public(),
		StonePosition:   session.StonePosition,
		Balance1:        session.Balance1,
		Balance2:        session.Balance2,
		HasPendingMove1: session.PendingMove1 != nil,
		HasPendingMove2: session.PendingMove2 != nil,
		Winner:          that.Winner.Public(),
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
}
