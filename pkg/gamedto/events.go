package gamedto

import "encoding/json"

// Socket event names, client -> server.
const (
	EventFindGame = "find_game"
	EventMakeMove = "make_move"
)

// Socket event names, server -> client.
const (
	EventWaitingForOpponent = "waiting_for_opponent"
	EventGameStarted        = "game_started"
	EventMoveMade           = "move_made"
	EventGameFinished       = "game_finished"
	EventGameResumed        = "game_resumed"
	EventCreatingIssue      = "creating_issue"
	EventError              = "error"
)

// Envelope frames every socket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type MakeMovePayload struct {
	RoomID string `json:"roomId"`
	Move   Move   `json:"move"`
}

type GameStartedPayload struct {
	RoomID string `json:"roomId"`
	FEN    string `json:"fen"`
	Turn   string `json:"turn"`
	White  string `json:"white"`
	Black  string `json:"black"`
}

type MoveMadePayload struct {
	Move Move `json:"move"`
}

type GameFinishedPayload struct {
	Winner   string `json:"winner"`
	WinnerID string `json:"winnerId,omitempty"`
	Reason   string `json:"reason"`
}

type GameResumedPayload struct {
	RoomID   string `json:"roomId"`
	FEN      string `json:"fen"`
	Turn     string `json:"turn"`
	AllMoves []Move `json:"allMoves"`
}
