package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var ErrIllegalMove = errors.New("illegal chess move")

// Outcome is what a single applied ply did to the position.
type Outcome struct {
	FEN         string
	Turn        string // side to move after the ply: "white" | "black"
	SAN         string
	IsGameOver  bool
	IsCheckmate bool
	IsDraw      bool
}

// Adapter wraps the rules library behind the narrow contract the session
// layer needs: apply one coordinate move to a FEN position.
type Adapter struct{}

func NewAdapter() *Adapter { return &Adapter{} }

// Apply validates mv against the position encoded in fen and returns the
// resulting position. ErrIllegalMove covers malformed and illegal input
// alike; the position is never mutated on failure.
func (a *Adapter) Apply(fen string, mv gamedto.Move) (Outcome, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return Outcome{}, err
	}

	uci := strings.ToLower(strings.TrimSpace(mv.UCI()))
	if uci == "" {
		return Outcome{}, ErrIllegalMove
	}
	pos := game.Position()
	decoded, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return Outcome{}, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, decoded)
	if err := game.Move(decoded, nil); err != nil {
		return Outcome{}, ErrIllegalMove
	}

	out := Outcome{
		FEN: game.FEN(),
		SAN: san,
	}
	if game.Position().Turn() == nchess.White {
		out.Turn = "white"
	} else {
		out.Turn = "black"
	}
	switch game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		out.IsGameOver = true
		out.IsCheckmate = game.Method() == nchess.Checkmate
	case nchess.Draw:
		out.IsGameOver = true
		out.IsDraw = true
	}
	return out, nil
}

// LegalMoves lists the legal plies in UCI form, used to sanity-check engine
// replies before committing them.
func (a *Adapter) LegalMoves(fen string) ([]string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	valid := game.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, mv := range valid {
		out = append(out, mv.String())
	}
	return out, nil
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return nchess.NewGame(option), nil
}
