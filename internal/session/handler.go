package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aram47/chess-game-monolit-backend/internal/obslog"
	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

// Broadcaster pushes an event to one live connection. The gateway implements
// it over its connection registry; sends to unknown connections are dropped.
type Broadcaster interface {
	Send(connectionID, event string, payload interface{}) error
}

// Sink persists a finished room. Persistence is best-effort: failures are
// logged and never block cleanup.
type Sink interface {
	StoreGameSnapshot(ctx context.Context, room *roomstore.Room) error
}

// BestMover answers with a UCI move for the side to play in fen.
type BestMover interface {
	GetBestMove(ctx context.Context, fen, difficulty string) (string, error)
}

// Config carries the handler's tunables.
type Config struct {
	RoomTTL           time.Duration
	DisconnectGrace   time.Duration
	DefaultDifficulty string
}

// Handler runs the per-move protocol over the shared room documents. It
// holds no per-room state itself; every decision is recomputed from a fresh
// load and either commits exactly once or fails without side effect.
type Handler struct {
	store   *roomstore.Store
	rules   *rules.Adapter
	engines BestMover
	sink    Sink
	bcast   Broadcaster
	cfg     Config

	now func() time.Time

	// difficulty per bot room; bot games are pinned to this instance's
	// engine pool so in-process state is sufficient
	diffMu       sync.Mutex
	difficulties map[string]string
}

func NewHandler(store *roomstore.Store, rulesAdapter *rules.Adapter, engines BestMover, sink Sink, bcast Broadcaster, cfg Config) *Handler {
	if cfg.DefaultDifficulty == "" {
		cfg.DefaultDifficulty = "medium"
	}
	return &Handler{
		store:        store,
		rules:        rulesAdapter,
		engines:      engines,
		sink:         sink,
		bcast:        bcast,
		cfg:          cfg,
		now:          time.Now,
		difficulties: make(map[string]string),
	}
}

// MoveResult is the combined outcome of one move exchange. BotMove is set
// only for bot games where the engine replied in the same cycle.
type MoveResult struct {
	Room     *roomstore.Room
	UserMove gamedto.Move
	BotMove  *gamedto.Move
	Finished bool
	Winner   string
	WinnerID string
	Reason   string
}

// MakeMove applies one move from a socket connection. The acting side is
// resolved from the connection binding on the room document.
func (h *Handler) MakeMove(ctx context.Context, roomID, connectionID string, mv gamedto.Move) (*MoveResult, error) {
	return h.makeMove(ctx, roomID, mv, func(r *roomstore.Room) roomstore.Color {
		return r.ColorOfConnection(connectionID)
	})
}

// MakeBotMove applies one move in a bot room on behalf of userID, then asks
// the engine for a reply and commits it in the same cycle. A room left at
// black's turn by an earlier engine failure is still owed a reply; the
// retry plays only that reply instead of failing with ErrNotYourTurn.
func (h *Handler) MakeBotMove(ctx context.Context, roomID, userID string, mv gamedto.Move) (*MoveResult, error) {
	room, err := h.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsBotGame() && !room.IsGameOver && room.Turn == roomstore.Black &&
		room.ColorOfUser(userID) == roomstore.White {
		return h.resumeBotReply(ctx, room)
	}
	return h.makeMove(ctx, roomID, mv, func(r *roomstore.Room) roomstore.Color {
		return r.ColorOfUser(userID)
	})
}

// resumeBotReply plays the engine reply the room is still owed, committed
// as its own mutation. The human ply it answers is already in allMoves.
func (h *Handler) resumeBotReply(ctx context.Context, room *roomstore.Room) (*MoveResult, error) {
	finalized, err := h.checkDisconnectTimeout(ctx, room)
	if err != nil {
		return nil, err
	}
	if finalized {
		return nil, ErrGameFinished
	}
	if room.Disconnected != nil {
		return nil, ErrBlocked
	}

	botMove, err := h.playBotReply(ctx, room)
	if err != nil {
		return nil, err
	}
	res := &MoveResult{Room: room, BotMove: botMove}
	if n := len(room.AllMoves); n >= 2 {
		res.UserMove = room.AllMoves[n-2]
	}
	if room.IsGameOver {
		h.finish(ctx, room)
		res.Finished = true
		res.Winner = room.Winner
		res.WinnerID = room.WinnerID
		res.Reason = finishReason(room)
	}
	return res, nil
}

func (h *Handler) makeMove(ctx context.Context, roomID string, mv gamedto.Move, resolve func(*roomstore.Room) roomstore.Color) (*MoveResult, error) {
	room, err := h.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	finalized, err := h.checkDisconnectTimeout(ctx, room)
	if err != nil {
		return nil, err
	}
	if finalized {
		return nil, ErrGameFinished
	}
	if room.IsGameOver {
		return nil, ErrGameFinished
	}

	color := resolve(room)
	if color == "" {
		return nil, ErrNotAPlayer
	}
	if room.Disconnected != nil {
		return nil, ErrBlocked
	}
	if color != room.Turn {
		return nil, ErrNotYourTurn
	}

	expected := room.Version
	if err := h.applyPly(room, color, mv); err != nil {
		return nil, err
	}

	if _, err := h.store.Commit(ctx, expected, room, h.cfg.RoomTTL); err != nil {
		if errors.Is(err, roomstore.ErrVersionConflict) {
			obslog.L().Warn("move_superseded",
				zap.String("room_id", room.RoomID),
				zap.Int64("expected_version", expected),
			)
			return nil, ErrMoveSuperseded
		}
		return nil, fmt.Errorf("commit move: %w", err)
	}
	obslog.L().Info("move_committed",
		zap.String("room_id", room.RoomID),
		zap.String("color", string(color)),
		zap.String("uci", mv.UCI()),
		zap.Int64("version", room.Version),
	)

	res := &MoveResult{Room: room, UserMove: mv}

	if room.IsGameOver {
		h.finish(ctx, room)
		res.Finished = true
		res.Winner = room.Winner
		res.WinnerID = room.WinnerID
		res.Reason = finishReason(room)
		return res, nil
	}

	if room.IsBotGame() && room.Turn == roomstore.Black {
		botMove, err := h.playBotReply(ctx, room)
		if err != nil {
			return nil, err
		}
		res.Room = room
		res.BotMove = botMove
		if room.IsGameOver {
			h.finish(ctx, room)
			res.Finished = true
			res.Winner = room.Winner
			res.WinnerID = room.WinnerID
			res.Reason = finishReason(room)
		}
		return res, nil
	}

	h.broadcastMove(room, roomstore.Opponent(color), mv)
	return res, nil
}

// applyPly validates the move, appends it and stamps terminal state on the
// in-memory room. The caller commits.
func (h *Handler) applyPly(room *roomstore.Room, color roomstore.Color, mv gamedto.Move) error {
	out, err := h.rules.Apply(room.FEN, mv)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return rules.ErrIllegalMove
		}
		return fmt.Errorf("apply move: %w", err)
	}

	room.FEN = out.FEN
	room.Turn = roomstore.Color(out.Turn)
	room.AllMoves = append(room.AllMoves, mv)

	if out.IsGameOver {
		room.IsGameOver = true
		room.IsCheckmate = out.IsCheckmate
		room.IsDraw = out.IsDraw
		room.FinishedAt = h.now().UnixMilli()
		if out.IsCheckmate {
			// a legal move never leaves the mover in checkmate, so the
			// side that just played takes the win
			room.Winner = string(color)
			if seat := room.Seat(color); seat != nil && seat.UserID != roomstore.BotUserID {
				room.WinnerID = seat.UserID
			}
		} else {
			room.Winner = "draw"
		}
	}
	return nil
}

// playBotReply asks the engine for black's answer and commits it as a second
// mutation on the already-updated room.
func (h *Handler) playBotReply(ctx context.Context, room *roomstore.Room) (*gamedto.Move, error) {
	uci, err := h.engines.GetBestMove(ctx, room.FEN, h.difficultyFor(room.RoomID))
	if err != nil {
		return nil, fmt.Errorf("engine reply: %w", err)
	}
	botMove, err := parseUCIMove(uci)
	if err != nil {
		return nil, fmt.Errorf("engine reply %q: %w", uci, err)
	}

	expected := room.Version
	if err := h.applyPly(room, roomstore.Black, botMove); err != nil {
		return nil, fmt.Errorf("apply engine reply %q: %w", uci, err)
	}
	if _, err := h.store.Commit(ctx, expected, room, h.cfg.RoomTTL); err != nil {
		if errors.Is(err, roomstore.ErrVersionConflict) {
			return nil, ErrMoveSuperseded
		}
		return nil, fmt.Errorf("commit engine reply: %w", err)
	}
	obslog.L().Info("bot_move_committed",
		zap.String("room_id", room.RoomID),
		zap.String("uci", uci),
		zap.Int64("version", room.Version),
	)
	return &botMove, nil
}

// StartBotGame creates a fresh room with the caller as white and the engine
// holding the black seat.
func (h *Handler) StartBotGame(ctx context.Context, userID, difficulty string) (*roomstore.Room, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id required")
	}
	if difficulty = strings.TrimSpace(difficulty); difficulty == "" {
		difficulty = h.cfg.DefaultDifficulty
	}

	// a user never holds two live rooms: an existing bot room is returned
	// as-is, a live PvP room refuses the start
	if existingID, err := h.store.RoomIDByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("resolve existing room: %w", err)
	} else if existingID != "" {
		existing, err := h.store.Load(ctx, existingID)
		if err == nil {
			if existing.IsBotGame() {
				return existing, nil
			}
			return nil, roomstore.ErrRoomAlreadyExists
		}
		if !errors.Is(err, roomstore.ErrRoomNotFound) {
			return nil, err
		}
	}

	room := &roomstore.Room{
		RoomID:    "game:" + uuid.NewString(),
		FEN:       rules.StartFEN,
		Turn:      roomstore.White,
		White:     &roomstore.PlayerRef{UserID: userID},
		Black:     &roomstore.PlayerRef{UserID: roomstore.BotUserID, ConnectionID: roomstore.BotUserID},
		Version:   0,
		AllMoves:  []gamedto.Move{},
		CreatedAt: h.now().UnixMilli(),
	}
	if err := h.store.Create(ctx, room, h.cfg.RoomTTL); err != nil {
		return nil, fmt.Errorf("create bot room: %w", err)
	}

	h.diffMu.Lock()
	h.difficulties[room.RoomID] = difficulty
	h.diffMu.Unlock()

	obslog.L().Info("bot_game_start",
		zap.String("room_id", room.RoomID),
		zap.String("user_id", userID),
		zap.String("difficulty", difficulty),
	)
	return room, nil
}

func (h *Handler) difficultyFor(roomID string) string {
	h.diffMu.Lock()
	defer h.diffMu.Unlock()
	if d, ok := h.difficulties[roomID]; ok {
		return d
	}
	return h.cfg.DefaultDifficulty
}

// checkDisconnectTimeout finalizes a forfeit when the grace window elapsed.
// Returns true when the room was finalized by this call.
func (h *Handler) checkDisconnectTimeout(ctx context.Context, room *roomstore.Room) (bool, error) {
	if room.IsGameOver || room.Disconnected == nil {
		return false, nil
	}
	elapsed := h.now().UnixMilli() - room.Disconnected.At
	if elapsed < h.cfg.DisconnectGrace.Milliseconds() {
		return false, nil
	}

	loserColor := room.ColorOfUser(room.Disconnected.UserID)
	winnerColor := roomstore.Opponent(loserColor)

	expected := room.Version
	room.IsGameOver = true
	room.Winner = string(winnerColor)
	if seat := room.Seat(winnerColor); seat != nil && seat.UserID != roomstore.BotUserID {
		room.WinnerID = seat.UserID
	}
	room.FinishedAt = h.now().UnixMilli()
	room.Disconnected = nil

	if _, err := h.store.Commit(ctx, expected, room, h.cfg.RoomTTL); err != nil {
		if errors.Is(err, roomstore.ErrVersionConflict) || errors.Is(err, roomstore.ErrRoomNotFound) {
			// another interaction finalized first; nothing left to do here
			return true, nil
		}
		return false, fmt.Errorf("commit forfeit: %w", err)
	}
	obslog.L().Info("room_forfeit",
		zap.String("room_id", room.RoomID),
		zap.String("winner", room.Winner),
		zap.Int64("disconnected_ms", elapsed),
	)
	h.finish(ctx, room)
	return true, nil
}

// finish persists the snapshot, tears the room down and tells both seats.
// Snapshot failures are logged and never block cleanup.
func (h *Handler) finish(ctx context.Context, room *roomstore.Room) {
	if h.sink != nil {
		if err := h.sink.StoreGameSnapshot(ctx, room); err != nil {
			obslog.L().Error("snapshot_store_failed",
				zap.String("room_id", room.RoomID),
				zap.Error(err),
			)
		}
	}
	if err := h.store.Remove(ctx, room); err != nil {
		obslog.L().Error("room_cleanup_failed",
			zap.String("room_id", room.RoomID),
			zap.Error(err),
		)
	}

	payload := gamedto.GameFinishedPayload{
		Winner:   room.Winner,
		WinnerID: room.WinnerID,
		Reason:   finishReason(room),
	}
	for _, seat := range []*roomstore.PlayerRef{room.White, room.Black} {
		if seat == nil || seat.UserID == roomstore.BotUserID || seat.ConnectionID == "" {
			continue
		}
		h.send(seat.ConnectionID, gamedto.EventGameFinished, payload)
	}
	obslog.L().Info("room_finished",
		zap.String("room_id", room.RoomID),
		zap.String("winner", room.Winner),
		zap.String("reason", payload.Reason),
		zap.Int("moves", len(room.AllMoves)),
	)
}

func (h *Handler) broadcastMove(room *roomstore.Room, to roomstore.Color, mv gamedto.Move) {
	seat := room.Seat(to)
	if seat == nil || seat.UserID == roomstore.BotUserID || seat.ConnectionID == "" {
		return
	}
	h.send(seat.ConnectionID, gamedto.EventMoveMade, gamedto.MoveMadePayload{Move: mv})
}

func (h *Handler) send(connectionID, event string, payload interface{}) {
	if h.bcast == nil {
		return
	}
	if err := h.bcast.Send(connectionID, event, payload); err != nil {
		obslog.L().Warn("send_failed",
			zap.String("connection_id", connectionID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func finishReason(room *roomstore.Room) string {
	switch {
	case room.IsCheckmate:
		return ReasonCheckmate
	case room.IsDraw:
		return ReasonDraw
	default:
		return ReasonForfeit
	}
}

func parseUCIMove(uci string) (gamedto.Move, error) {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if len(uci) < 4 || len(uci) > 5 {
		return gamedto.Move{}, ErrBadMove
	}
	mv := gamedto.Move{From: uci[:2], To: uci[2:4]}
	if len(uci) == 5 {
		mv.Promotion = uci[4:]
	}
	return mv, nil
}
