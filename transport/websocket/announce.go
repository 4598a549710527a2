package websocket

import (
	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
	"github.com/scythianladder/scythian-ladder-backend/internal/ladder"
)

// The Announce methods are the single fan-out path for state changes. Both
// the socket handlers and the HTTP surface go through them, so every
// observer sees the same sanitized events regardless of which surface
// caused the mutation.

func (that *Server) AnnounceUpdate(state *entity.SessionState) {
	that.broadcast(state.Session.Code, eventGameUpdated, state.View())
}

func (that *Server) AnnounceStarted(state *entity.SessionState) {
	code := state.Session.Code
	that.broadcast(code, eventGameUpdated, state.View())
	that.broadcast(code, eventGameStarted, gameStartedEvent{Message: "The game has started!"})
}

func (that *Server) AnnounceMove(state *entity.SessionState, moverID string, result *ladder.Result) {
	code := state.Session.Code
	that.broadcast(code, eventGameUpdated, state.View())

	if result == nil {
		player := "player2"
		if state.Session.IsPlayer1(moverID) {
			player = "player1"
		}
		that.broadcast(code, eventMoveAccepted, moveAcceptedEvent{Player: player})
		return
	}

	that.broadcast(code, eventRoundResolved, roundResolvedEvent{
		Move1:    result.Move1,
		Move2:    result.Move2,
		Position: result.Position,
		Balance1: result.Balance1,
		Balance2: result.Balance2,
		Status:   state.Session.Status,
		Winner:   state.Winner.Public(),
	})

	if state.Session.IsFinished() {
		that.broadcast(code, eventGameFinished, gameFinishedEvent{
			Winner:        state.Winner.Public(),
			FinalPosition: state.Session.StonePosition,
		})
	}
}
