package websocket

import (
	"encoding/json"

	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
)

// Message is the envelope for both directions: a tagged action plus its
// payload. Unknown actions and malformed payloads are rejected at this
// boundary.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	actionAuthenticate = "authenticate"
	actionCreateGame   = "createGame"
	actionJoinGame     = "joinGame"
	actionJoinRoom     = "joinRoom"
	actionLeaveRoom    = "leaveRoom"
	actionMakeMove     = "makeMove"
	actionHeartbeat    = "heartbeat"

	eventAuthenticated = "authenticated"
	eventGameCreated   = "gameCreated"
	eventGameUpdated   = "gameUpdated"
	eventGameStarted   = "gameStarted"
	eventMoveAccepted  = "moveAccepted"
	eventRoundResolved = "roundResolved"
	eventGameFinished  = "gameFinished"
	eventHeartbeatAck  = "heartbeatAck"
	eventError         = "error"
)

type authenticateRequest struct {
	UserID string `json:"user_id"`
}

type joinGameRequest struct {
	Code string `json:"code"`
}

type roomRequest struct {
	Code string `json:"code"`
}

type makeMoveRequest struct {
	Code   string `json:"code"`
	Stones int    `json:"stones"`
}

type authenticatedEvent struct {
	User *entity.PublicUser `json:"user"`
}

type gameCreatedEvent struct {
	Code    string              `json:"code"`
	Session *entity.SessionView `json:"session"`
}

type gameStartedEvent struct {
	Message string `json:"message"`
}

type moveAcceptedEvent struct {
	Player string `json:"player"`
}

// roundResolvedEvent reveals both historical bids; it is only ever built
// from a completed resolution.
type roundResolvedEvent struct {
	Move1    int                `json:"move1"`
	Move2    int                `json:"move2"`
	Position int                `json:"position"`
	Balance1 int                `json:"balance1"`
	Balance2 int                `json:"balance2"`
	Status   string             `json:"status"`
	Winner   *entity.PublicUser `json:"winner,omitempty"`
}

type gameFinishedEvent struct {
	Winner        *entity.PublicUser `json:"winner,omitempty"`
	FinalPosition int                `json:"final_position"`
}

type errorEvent struct {
	Message string `json:"message"`
}
