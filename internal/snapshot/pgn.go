package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
)

// BuildPGN renders a finished room as PGN text. The SAN sequence is
// recovered by replaying the stored coordinate moves from the start
// position; a move that fails to replay truncates the move list there.
func BuildPGN(room *roomstore.Room) string {
	if room == nil {
		return ""
	}

	var b strings.Builder
	date := time.UnixMilli(room.FinishedAt)
	if room.FinishedAt == 0 {
		date = time.Now()
	}
	b.WriteString("[Event \"Online game\"]\n")
	b.WriteString("[Site \"chess-game-monolit\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(seatName(room.White))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(seatName(room.Black))))
	b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", terminationOf(room)))
	pgnResult := mapResultToPGN(room.Winner)
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	sans := replaySAN(room)
	for i := 0; i < len(sans); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, sans[i]))
		if i+1 < len(sans) {
			b.WriteString(" ")
			b.WriteString(sans[i+1])
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	b.WriteString("\n")
	return b.String()
}

func replaySAN(room *roomstore.Room) []string {
	adapter := rules.NewAdapter()
	fen := rules.StartFEN
	sans := make([]string, 0, len(room.AllMoves))
	for _, mv := range room.AllMoves {
		out, err := adapter.Apply(fen, mv)
		if err != nil {
			break
		}
		sans = append(sans, out.SAN)
		fen = out.FEN
	}
	return sans
}

func seatName(seat *roomstore.PlayerRef) string {
	if seat == nil {
		return "?"
	}
	return seat.UserID
}

func mapResultToPGN(winner string) string {
	switch strings.ToLower(strings.TrimSpace(winner)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
