package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Aram47/chess-game-monolit-backend/internal/match"
	"github.com/Aram47/chess-game-monolit-backend/internal/obslog"
	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
	"github.com/Aram47/chess-game-monolit-backend/internal/session"
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

// Server is the WebSocket surface. One goroutine per connection reads
// enveloped events and dispatches them; every failure is translated into a
// single error emission to the offending client and never kills the loop.
type Server struct {
	coordinator *match.Coordinator
	sessions    *session.Handler
	monitor     *session.Monitor
	registry    *Registry
	jwtSecret   string
}

func NewServer(coordinator *match.Coordinator, sessions *session.Handler, monitor *session.Monitor, registry *Registry, jwtSecret string) *Server {
	return &Server{
		coordinator: coordinator,
		sessions:    sessions,
		monitor:     monitor,
		registry:    registry,
		jwtSecret:   jwtSecret,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromToken(r.URL.Query().Get("token"), s.jwtSecret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	s.registry.Add(connID, conn)
	obslog.L().Info("ws_connected",
		zap.String("user_id", userID),
		zap.String("connection_id", connID),
	)

	ctx := r.Context()
	defer func() {
		s.registry.Remove(connID)
		conn.Close(websocket.StatusNormalClosure, "bye")
		if err := s.monitor.OnDisconnect(context.Background(), userID, connID); err != nil {
			obslog.L().Warn("disconnect_handling_failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		obslog.L().Info("ws_closed",
			zap.String("user_id", userID),
			zap.String("connection_id", connID),
		)
	}()

	// a returning player gets their live room rebound to this socket
	if err := s.monitor.OnReconnect(ctx, userID, connID); err != nil {
		obslog.L().Warn("reconnect_handling_failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	for {
		var env gamedto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		s.dispatch(ctx, userID, connID, env)
	}
}

func (s *Server) dispatch(ctx context.Context, userID, connID string, env gamedto.Envelope) {
	switch env.Event {
	case gamedto.EventFindGame:
		s.handleFindGame(ctx, userID, connID)
	case gamedto.EventMakeMove:
		s.handleMakeMove(ctx, connID, env.Data)
	default:
		s.sendError(connID, gamedto.DomainError{
			Code:    "UNKNOWN_EVENT",
			Message: "unrecognized event " + env.Event,
		})
	}
}

func (s *Server) handleFindGame(ctx context.Context, userID, connID string) {
	res, err := s.coordinator.RequestMatch(ctx, userID, connID)
	if err != nil {
		obslog.L().Error("matchmaking_failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		s.send(connID, gamedto.EventCreatingIssue, nil)
		return
	}

	switch res.Status {
	case roomstore.MatchWaiting:
		s.send(connID, gamedto.EventWaitingForOpponent, nil)
	case roomstore.MatchMatched:
		payload := gamedto.GameStartedPayload{
			RoomID: res.Room.RoomID,
			FEN:    res.Room.FEN,
			Turn:   string(res.Room.Turn),
			White:  res.Room.White.UserID,
			Black:  res.Room.Black.UserID,
		}
		for _, seat := range []*roomstore.PlayerRef{res.Room.White, res.Room.Black} {
			if seat != nil && seat.ConnectionID != "" {
				s.send(seat.ConnectionID, gamedto.EventGameStarted, payload)
			}
		}
	case roomstore.MatchAlreadyInRoom:
		s.send(connID, gamedto.EventGameResumed, gamedto.GameResumedPayload{
			RoomID:   res.Room.RoomID,
			FEN:      res.Room.FEN,
			Turn:     string(res.Room.Turn),
			AllMoves: res.Room.AllMoves,
		})
	}
}

func (s *Server) handleMakeMove(ctx context.Context, connID string, data json.RawMessage) {
	var payload gamedto.MakeMovePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(connID, gamedto.DomainError{Code: "BAD_PAYLOAD", Message: "malformed make_move payload"})
		return
	}

	res, err := s.sessions.MakeMove(ctx, payload.RoomID, connID, payload.Move)
	if err != nil {
		s.sendError(connID, domainErrorFor(err))
		return
	}
	if res.Finished {
		// game_finished already went to both seats during finalization
		return
	}
	s.send(connID, gamedto.EventMoveMade, gamedto.MoveMadePayload{Move: res.UserMove})
}

func (s *Server) send(connID, event string, payload interface{}) {
	if err := s.registry.Send(connID, event, payload); err != nil {
		obslog.L().Warn("ws_send_failed",
			zap.String("connection_id", connID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (s *Server) sendError(connID string, derr gamedto.DomainError) {
	s.send(connID, gamedto.EventError, derr)
}

// domainErrorFor flattens the session error taxonomy into the client shape.
func domainErrorFor(err error) gamedto.DomainError {
	switch {
	case errors.Is(err, roomstore.ErrRoomNotFound):
		return gamedto.DomainError{Code: "ROOM_NOT_FOUND", Message: "room expired or unknown"}
	case errors.Is(err, session.ErrNotAPlayer):
		return gamedto.DomainError{Code: "NOT_A_PLAYER", Message: "you are not a player in this room"}
	case errors.Is(err, session.ErrBlocked):
		return gamedto.DomainError{Code: "BLOCKED", Message: "game paused while a player is disconnected", Retryable: true}
	case errors.Is(err, session.ErrNotYourTurn):
		return gamedto.DomainError{Code: "NOT_YOUR_TURN", Message: "it is not your turn"}
	case errors.Is(err, rules.ErrIllegalMove):
		return gamedto.DomainError{Code: "ILLEGAL_MOVE", Message: "illegal move"}
	case errors.Is(err, session.ErrMoveSuperseded):
		return gamedto.DomainError{Code: "MOVE_SUPERSEDED", Message: "move discarded, resync from the next broadcast"}
	case errors.Is(err, session.ErrGameFinished):
		return gamedto.DomainError{Code: "GAME_FINISHED", Message: "game already finished"}
	default:
		return gamedto.DomainError{Code: "INTERNAL", Message: "internal error", Retryable: true}
	}
}
