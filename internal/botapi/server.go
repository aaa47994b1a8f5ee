package botapi

import (
	"encoding/json"
	"errors"
	"net"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/Aram47/chess-game-monolit-backend/internal/engine"
	"github.com/Aram47/chess-game-monolit-backend/internal/obslog"
	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
	"github.com/Aram47/chess-game-monolit-backend/internal/session"
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

// Server is the bot-play HTTP boundary. Bot games are pinned to this
// instance's engine pool, so the whole exchange is request/response with no
// socket involved.
type Server struct {
	sessions *session.Handler
	srv      *fasthttp.Server
}

func NewServer(sessions *session.Handler) *Server {
	s := &Server{sessions: sessions}
	s.srv = &fasthttp.Server{
		Handler: s.handle,
		Name:    "chess-bot-api",
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("bot_api_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

// Serve accepts on a caller-supplied listener, used by tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, gamedto.DomainError{
			Code: "METHOD_NOT_ALLOWED", Message: "POST only",
		})
		return
	}
	switch string(ctx.Path()) {
	case "/bot/start":
		s.handleStart(ctx)
	case "/bot/move":
		s.handleMove(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, gamedto.DomainError{
			Code: "NOT_FOUND", Message: "unknown endpoint",
		})
	}
}

func (s *Server) handleStart(ctx *fasthttp.RequestCtx) {
	var req gamedto.BotStartRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, gamedto.DomainError{
			Code: "BAD_PAYLOAD", Message: "malformed start request",
		})
		return
	}

	room, err := s.sessions.StartBotGame(ctx, req.UserID, req.Difficulty)
	if err != nil {
		status, derr := statusFor(err)
		writeError(ctx, status, derr)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, gamedto.BotStartResponse{
		RoomID: room.RoomID,
		FEN:    room.FEN,
		Color:  string(roomstore.White),
	})
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx) {
	var req gamedto.BotMoveRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, gamedto.DomainError{
			Code: "BAD_PAYLOAD", Message: "malformed move request",
		})
		return
	}

	res, err := s.sessions.MakeBotMove(ctx, req.RoomID, req.UserID, req.Move)
	if err != nil {
		status, derr := statusFor(err)
		writeError(ctx, status, derr)
		return
	}

	resp := gamedto.BotMoveResponse{
		FEN:      res.Room.FEN,
		UserMove: res.UserMove,
		BotMove:  res.BotMove,
	}
	if res.Finished {
		resp.GameOver = true
		resp.Winner = res.Winner
		resp.WinnerID = res.WinnerID
		resp.Reason = res.Reason
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func statusFor(err error) (int, gamedto.DomainError) {
	switch {
	case errors.Is(err, roomstore.ErrRoomNotFound):
		return fasthttp.StatusNotFound, gamedto.DomainError{Code: "ROOM_NOT_FOUND", Message: "room expired or unknown"}
	case errors.Is(err, session.ErrNotAPlayer):
		return fasthttp.StatusForbidden, gamedto.DomainError{Code: "NOT_A_PLAYER", Message: "you are not a player in this room"}
	case errors.Is(err, session.ErrNotYourTurn):
		return fasthttp.StatusConflict, gamedto.DomainError{Code: "NOT_YOUR_TURN", Message: "it is not your turn"}
	case errors.Is(err, session.ErrBlocked):
		return fasthttp.StatusConflict, gamedto.DomainError{Code: "BLOCKED", Message: "game paused", Retryable: true}
	case errors.Is(err, session.ErrGameFinished):
		return fasthttp.StatusConflict, gamedto.DomainError{Code: "GAME_FINISHED", Message: "game already finished"}
	case errors.Is(err, rules.ErrIllegalMove):
		return fasthttp.StatusUnprocessableEntity, gamedto.DomainError{Code: "ILLEGAL_MOVE", Message: "illegal move"}
	case errors.Is(err, session.ErrMoveSuperseded):
		return fasthttp.StatusConflict, gamedto.DomainError{Code: "MOVE_SUPERSEDED", Message: "move discarded"}
	case errors.Is(err, engine.ErrAllEnginesBusy):
		return fasthttp.StatusServiceUnavailable, gamedto.DomainError{Code: "ENGINES_BUSY", Message: "all engines busy, retry later", Retryable: true}
	case errors.Is(err, engine.ErrEngineTimeout):
		return fasthttp.StatusGatewayTimeout, gamedto.DomainError{Code: "ENGINE_TIMEOUT", Message: "engine did not answer in time", Retryable: true}
	case errors.Is(err, roomstore.ErrRoomAlreadyExists):
		return fasthttp.StatusConflict, gamedto.DomainError{Code: "ROOM_ALREADY_EXISTS", Message: "room already exists"}
	default:
		return fasthttp.StatusInternalServerError, gamedto.DomainError{Code: "INTERNAL", Message: "internal error", Retryable: true}
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, derr gamedto.DomainError) {
	writeJSON(ctx, status, derr)
}
