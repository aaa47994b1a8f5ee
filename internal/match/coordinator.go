package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aram47/chess-game-monolit-backend/internal/obslog"
	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
)

// Coordinator pairs players through the room store's atomic matchmaking
// script. Pairing is single-slot: the first caller parks in the waiting
// slot, the second caller claims it and both land in a fresh room.
type Coordinator struct {
	store   *roomstore.Store
	roomTTL time.Duration
}

func New(store *roomstore.Store, roomTTL time.Duration) *Coordinator {
	return &Coordinator{store: store, roomTTL: roomTTL}
}

// Result reports what happened to a matchmaking request. Room is set for
// matched and already_in_room.
type Result struct {
	Status roomstore.MatchStatus
	Room   *roomstore.Room
}

// RequestMatch enqueues or pairs a player. Re-sending while waiting keeps
// the caller waiting; a player with a live room gets that room back instead
// of a new pairing.
func (c *Coordinator) RequestMatch(ctx context.Context, userID, connectionID string) (*Result, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id required")
	}
	if strings.TrimSpace(connectionID) == "" {
		return nil, fmt.Errorf("connection id required")
	}

	roomID := "game:" + uuid.NewString()
	outcome, err := c.store.Matchmake(ctx, userID, connectionID, roomID, rules.StartFEN, c.roomTTL)
	if err != nil {
		return nil, fmt.Errorf("matchmake %s: %w", userID, err)
	}

	switch outcome.Status {
	case roomstore.MatchWaiting:
		obslog.L().Info("match_waiting", zap.String("user_id", userID))
	case roomstore.MatchMatched:
		obslog.L().Info("match_paired",
			zap.String("room_id", outcome.Room.RoomID),
			zap.String("white", outcome.Room.White.UserID),
			zap.String("black", outcome.Room.Black.UserID),
		)
	case roomstore.MatchAlreadyInRoom:
		obslog.L().Info("match_rejoin",
			zap.String("user_id", userID),
			zap.String("room_id", outcome.Room.RoomID),
		)
	}

	return &Result{Status: outcome.Status, Room: outcome.Room}, nil
}
