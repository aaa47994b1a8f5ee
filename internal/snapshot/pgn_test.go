package snapshot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

func foolsMateRoom() *roomstore.Room {
	finished := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return &roomstore.Room{
		RoomID: "game:pgn-test",
		White:  &roomstore.PlayerRef{UserID: "alice"},
		Black:  &roomstore.PlayerRef{UserID: "bob"},
		AllMoves: []gamedto.Move{
			{From: "f2", To: "f3"},
			{From: "e7", To: "e5"},
			{From: "g2", To: "g4"},
			{From: "d8", To: "h4"},
		},
		IsGameOver:  true,
		IsCheckmate: true,
		Winner:      "black",
		WinnerID:    "bob",
		CreatedAt:   finished.Add(-2 * time.Minute).UnixMilli(),
		FinishedAt:  finished.UnixMilli(),
	}
}

func TestBuildPGNFoolsMate(t *testing.T) {
	pgn := BuildPGN(foolsMateRoom())

	require.Contains(t, pgn, `[White "alice"]`)
	require.Contains(t, pgn, `[Black "bob"]`)
	require.Contains(t, pgn, `[Date "2026.03.14"]`)
	require.Contains(t, pgn, `[Termination "checkmate"]`)
	require.Contains(t, pgn, `[Result "0-1"]`)
	require.Contains(t, pgn, "1. f3 e5 2. g4 Qh4# 0-1")
}

func TestBuildPGNDraw(t *testing.T) {
	room := foolsMateRoom()
	room.AllMoves = nil
	room.IsCheckmate = false
	room.IsDraw = true
	room.Winner = "draw"
	room.WinnerID = ""

	pgn := BuildPGN(room)
	require.Contains(t, pgn, `[Result "1/2-1/2"]`)
	require.Contains(t, pgn, `[Termination "draw"]`)
	require.True(t, strings.HasSuffix(pgn, "1/2-1/2\n"))
}

func TestBuildPGNForfeitStopsAtBadMove(t *testing.T) {
	room := foolsMateRoom()
	room.IsCheckmate = false
	room.Winner = "white"
	room.WinnerID = "alice"
	room.AllMoves = []gamedto.Move{
		{From: "e2", To: "e4"},
		{From: "e7", To: "e7"}, // unreplayable; list truncates here
	}

	pgn := BuildPGN(room)
	require.Contains(t, pgn, `[Termination "forfeit"]`)
	require.Contains(t, pgn, "1. e4 1-0")
}

func TestMapResultToPGN(t *testing.T) {
	require.Equal(t, "1-0", mapResultToPGN("white"))
	require.Equal(t, "0-1", mapResultToPGN("black"))
	require.Equal(t, "1/2-1/2", mapResultToPGN("draw"))
	require.Equal(t, "*", mapResultToPGN(""))
}

func TestSanitizePGN(t *testing.T) {
	require.Equal(t, "a 'b' c", sanitizePGN(` a "b"`+"\n"+`c `))
}
