package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Aram47/chess-game-monolit-backend/internal/obslog"
	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

// Monitor tracks disconnects lazily. There is no background timer: the
// grace window is evaluated only when the room is next touched, by a
// reconnect here or a move attempt in the handler.
type Monitor struct {
	h *Handler
}

func NewMonitor(h *Handler) *Monitor { return &Monitor{h: h} }

// OnDisconnect marks the user's live room. No-op when the user has no room
// or the game already ended. connectionID is the socket that just closed:
// when the seat is already bound to a newer connection the close is stale
// (the user reconnected before the old socket's teardown ran) and must not
// mark anyone disconnected.
func (m *Monitor) OnDisconnect(ctx context.Context, userID, connectionID string) error {
	room, err := m.liveRoom(ctx, userID)
	if err != nil || room == nil {
		return err
	}
	if room.IsGameOver || room.Disconnected != nil {
		return nil
	}
	color := room.ColorOfUser(userID)
	if color == "" {
		return nil
	}
	if connectionID != "" {
		if seat := room.Seat(color); seat != nil && seat.ConnectionID != connectionID {
			return nil
		}
	}

	expected := room.Version
	room.Disconnected = &roomstore.Disconnected{
		UserID: userID,
		At:     m.h.now().UnixMilli(),
	}
	if _, err := m.h.store.Commit(ctx, expected, room, m.h.cfg.RoomTTL); err != nil {
		if errors.Is(err, roomstore.ErrVersionConflict) || errors.Is(err, roomstore.ErrRoomNotFound) {
			obslog.L().Warn("disconnect_mark_skipped",
				zap.String("room_id", room.RoomID),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("mark disconnect: %w", err)
	}
	obslog.L().Info("player_disconnected",
		zap.String("room_id", room.RoomID),
		zap.String("user_id", userID),
	)
	return nil
}

// OnReconnect restores a user's session. An expired grace window finalizes
// the room as a forfeit instead; within the window the seat is rebound to
// the new connection and the client gets a resume payload.
func (m *Monitor) OnReconnect(ctx context.Context, userID, connectionID string) error {
	room, err := m.liveRoom(ctx, userID)
	if err != nil || room == nil {
		return err
	}
	if room.IsGameOver {
		return nil
	}

	finalized, err := m.h.checkDisconnectTimeout(ctx, room)
	if err != nil {
		return fmt.Errorf("evaluate grace window: %w", err)
	}
	if finalized {
		return nil
	}

	color := room.ColorOfUser(userID)
	if color == "" {
		return nil
	}

	expected := room.Version
	if room.Disconnected != nil && room.Disconnected.UserID == userID {
		room.Disconnected = nil
	}
	room.Seat(color).ConnectionID = connectionID

	if _, err := m.h.store.Commit(ctx, expected, room, m.h.cfg.RoomTTL); err != nil {
		if errors.Is(err, roomstore.ErrVersionConflict) || errors.Is(err, roomstore.ErrRoomNotFound) {
			obslog.L().Warn("reconnect_rebind_skipped",
				zap.String("room_id", room.RoomID),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("rebind connection: %w", err)
	}
	obslog.L().Info("player_reconnected",
		zap.String("room_id", room.RoomID),
		zap.String("user_id", userID),
	)

	m.h.send(connectionID, gamedto.EventGameResumed, gamedto.GameResumedPayload{
		RoomID:   room.RoomID,
		FEN:      room.FEN,
		Turn:     string(room.Turn),
		AllMoves: room.AllMoves,
	})
	return nil
}

// liveRoom resolves the user's room through the reverse index; nil without
// error when there is none.
func (m *Monitor) liveRoom(ctx context.Context, userID string) (*roomstore.Room, error) {
	roomID, err := m.h.store.RoomIDByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve room for %s: %w", userID, err)
	}
	if roomID == "" {
		return nil, nil
	}
	room, err := m.h.store.Load(ctx, roomID)
	if errors.Is(err, roomstore.ErrRoomNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}
