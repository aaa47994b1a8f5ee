package roomstore

import (
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// BotUserID marks the black seat of a PvE room.
const BotUserID = "bot"

// PlayerRef binds a seat to a user and their live connection.
type PlayerRef struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// Disconnected flags a room where one party dropped; At is unix millis.
type Disconnected struct {
	UserID string `json:"userId"`
	At     int64  `json:"at"`
}

// Room is the shared game document. Every mutation goes through Commit and
// bumps Version by exactly one; no caller writes the key directly.
//
// White stays a pointer because the matchmake script splices the waiting
// entry into the serialized document at the `"white":null` placeholder.
type Room struct {
	RoomID       string        `json:"roomId"`
	FEN          string        `json:"fen"`
	Turn         Color         `json:"turn"`
	White        *PlayerRef    `json:"white"`
	Black        *PlayerRef    `json:"black"`
	Version      int64         `json:"version"`
	AllMoves     []gamedto.Move `json:"allMoves"`
	IsGameOver   bool          `json:"isGameOver"`
	IsCheckmate  bool          `json:"isCheckmate"`
	IsDraw       bool          `json:"isDraw"`
	Winner       string        `json:"winner,omitempty"`
	WinnerID     string        `json:"winnerId,omitempty"`
	CreatedAt    int64         `json:"createdAt"`
	FinishedAt   int64         `json:"finishedAt,omitempty"`
	Disconnected *Disconnected `json:"disconnected,omitempty"`
}

// Seat returns the binding for a color.
func (r *Room) Seat(c Color) *PlayerRef {
	if c == White {
		return r.White
	}
	return r.Black
}

// ColorOfUser resolves which side a user plays, or "" when not a player.
func (r *Room) ColorOfUser(userID string) Color {
	if userID == "" {
		return ""
	}
	if r.White != nil && r.White.UserID == userID {
		return White
	}
	if r.Black != nil && r.Black.UserID == userID {
		return Black
	}
	return ""
}

// ColorOfConnection resolves a side from a connection id.
func (r *Room) ColorOfConnection(connID string) Color {
	if connID == "" {
		return ""
	}
	if r.White != nil && r.White.ConnectionID == connID {
		return White
	}
	if r.Black != nil && r.Black.ConnectionID == connID {
		return Black
	}
	return ""
}

// Opponent returns the other side.
func Opponent(c Color) Color {
	if c == White {
		return Black
	}
	return White
}

// IsBotGame reports whether the black seat is held by the engine.
func (r *Room) IsBotGame() bool {
	return r.Black != nil && r.Black.UserID == BotUserID
}

// MatchStatus is the outcome kind of a matchmaking attempt.
type MatchStatus string

const (
	MatchWaiting       MatchStatus = "waiting"
	MatchMatched       MatchStatus = "matched"
	MatchAlreadyInRoom MatchStatus = "already_in_room"
)

// MatchOutcome is the result of one atomic Matchmake call. Room is set for
// MatchMatched and MatchAlreadyInRoom.
type MatchOutcome struct {
	Status MatchStatus
	Room   *Room
}
