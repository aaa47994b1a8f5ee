package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
)

// Repository persists finished games to Postgres. It satisfies the session
// layer's Sink contract.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// StoreGameSnapshot upserts the final state of a finished room.
func (r *Repository) StoreGameSnapshot(ctx context.Context, room *roomstore.Room) error {
	if r == nil || r.db == nil || room == nil {
		return nil
	}

	movesRaw, err := json.Marshal(room.AllMoves)
	if err != nil {
		return fmt.Errorf("encode moves: %w", err)
	}
	pgn := BuildPGN(room)

	var whiteID, blackID string
	if room.White != nil {
		whiteID = room.White.UserID
	}
	if room.Black != nil {
		blackID = room.Black.UserID
	}
	duration := room.FinishedAt - room.CreatedAt
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO game_snapshots (
        room_id, white_id, black_id,
        winner, winner_id, reason,
        fen, moves, pgn,
        started_at, finished_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
      ) ON CONFLICT (room_id) DO UPDATE SET
        winner=EXCLUDED.winner,
        winner_id=EXCLUDED.winner_id,
        reason=EXCLUDED.reason,
        fen=EXCLUDED.fen,
        moves=EXCLUDED.moves,
        pgn=EXCLUDED.pgn,
        finished_at=EXCLUDED.finished_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		room.RoomID, whiteID, blackID,
		room.Winner, room.WinnerID, terminationOf(room),
		room.FEN, string(movesRaw), pgn,
		time.UnixMilli(room.CreatedAt), time.UnixMilli(room.FinishedAt), duration,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", room.RoomID, err)
	}
	return nil
}

func terminationOf(room *roomstore.Room) string {
	switch {
	case room.IsCheckmate:
		return "checkmate"
	case room.IsDraw:
		return "draw"
	default:
		return "forfeit"
	}
}
