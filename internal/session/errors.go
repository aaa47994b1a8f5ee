package session

import "errors"

var (
	ErrNotAPlayer     = errors.New("connection is not a player in this room")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrBlocked        = errors.New("room blocked by pending disconnect")
	ErrMoveSuperseded = errors.New("move superseded by a concurrent commit")
	ErrGameFinished   = errors.New("game already finished")
	ErrBadMove        = errors.New("malformed move")
)

// Finish reasons carried in game_finished payloads and snapshots.
const (
	ReasonCheckmate = "checkmate"
	ReasonDraw      = "draw"
	ReasonForfeit   = "forfeit"
)
