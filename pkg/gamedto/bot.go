package gamedto

// Bot-play request/response boundary served over HTTP.

type BotStartRequest struct {
	UserID     string `json:"userId"`
	Difficulty string `json:"difficulty,omitempty"`
}

type BotStartResponse struct {
	RoomID string `json:"roomId"`
	FEN    string `json:"fen"`
	Color  string `json:"color"`
}

type BotMoveRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Move   Move   `json:"move"`
}

// BotMoveResponse carries both plies of one exchange. BotMove is empty when
// the user's move already ended the game; the terminal fields mirror the
// final room snapshot.
type BotMoveResponse struct {
	FEN      string `json:"fen"`
	UserMove Move   `json:"userMove"`
	BotMove  *Move  `json:"botMove,omitempty"`
	GameOver bool   `json:"gameOver,omitempty"`
	Winner   string `json:"winner,omitempty"`
	WinnerID string `json:"winnerId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
