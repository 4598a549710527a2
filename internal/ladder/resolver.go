package ladder

const (
	MinBid = 1
	MaxBid = 48

	EdgeLeft  = -2
	EdgeRight = 2

	StartingBalance = 50
	StartPosition   = 0
)

// Side identifies the winning side of a resolved round, if any.
type Side int

const (
	NoSide Side = iota
	SidePlayer1
	SidePlayer2
)

// Result is the full next-state tuple of one resolved round. The caller owns
// persistence and broadcast.
type Result struct {
	Position int
	Balance1 int
	Balance2 int
	Finished bool
	Winner   Side

	// The revealed bids, visible to both players once the round resolves.
	Move1 int
	Move2 int
}

// Resolve applies both hidden bids to the current state. Bids are always
// fully spent; the higher bid pushes the stone one step toward the bidder's
// own edge. Terminal checks run in a fixed precedence: edge reach first,
// then double exhaustion (tie-break by stone side, dead center is a draw),
// then single exhaustion. Reordering these changes who wins at the boundary.
func Resolve(position, balance1, balance2, move1, move2 int) Result {
	newBalance1 := max(0, balance1-move1)
	newBalance2 := max(0, balance2-move2)

	newPosition := position
	switch {
	case move1 > move2:
		newPosition--
	case move2 > move1:
		newPosition++
	}
	newPosition = clampPosition(newPosition)

	result := Result{
		Position: newPosition,
		Balance1: newBalance1,
		Balance2: newBalance2,
		Move1:    move1,
		Move2:    move2,
	}

	switch {
	case newPosition <= EdgeLeft:
		result.Finished = true
		result.Winner = SidePlayer1
	case newPosition >= EdgeRight:
		result.Finished = true
		result.Winner = SidePlayer2
	case newBalance1 <= 0 && newBalance2 <= 0:
		result.Finished = true
		if newPosition < 0 {
			result.Winner = SidePlayer1
		} else if newPosition > 0 {
			result.Winner = SidePlayer2
		}
	case newBalance1 <= 0:
		result.Finished = true
		result.Winner = SidePlayer2
	case newBalance2 <= 0:
		result.Finished = true
		result.Winner = SidePlayer1
	}

	return result
}

// ValidBid reports whether a bid is inside the allowed range.
func ValidBid(stones int) bool {
	return stones >= MinBid && stones <= MaxBid
}

func clampPosition(position int) int {
	if position < EdgeLeft {
		return EdgeLeft
	}
	if position > EdgeRight {
		return EdgeRight
	}

	return position
}
