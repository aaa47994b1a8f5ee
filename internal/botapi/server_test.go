package botapi

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
	"github.com/Aram47/chess-game-monolit-backend/internal/session"
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

type scriptedEngine struct{ moves []string }

func (e *scriptedEngine) GetBestMove(context.Context, string, string) (string, error) {
	mv := e.moves[0]
	e.moves = e.moves[1:]
	return mv, nil
}

func newTestClient(t *testing.T, engineMoves []string) *fasthttp.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	handler := session.NewHandler(
		roomstore.New(rdb),
		rules.NewAdapter(),
		&scriptedEngine{moves: engineMoves},
		nil, nil,
		session.Config{RoomTTL: time.Hour, DisconnectGrace: 30 * time.Second},
	)
	srv := NewServer(handler)

	ln := fasthttputil.NewInmemoryListener()
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown()
		ln.Close()
	})

	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
}

func post(t *testing.T, client *fasthttp.Client, path string, body interface{}) (int, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://bot-api" + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(raw)

	require.NoError(t, client.Do(req, resp))
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out
}

func TestBotStartAndMove(t *testing.T) {
	client := newTestClient(t, []string{"e7e5"})

	status, body := post(t, client, "/bot/start", gamedto.BotStartRequest{
		UserID:     "alice",
		Difficulty: "easy",
	})
	require.Equal(t, fasthttp.StatusOK, status)
	var started gamedto.BotStartResponse
	require.NoError(t, json.Unmarshal(body, &started))
	require.Equal(t, rules.StartFEN, started.FEN)
	require.Equal(t, "white", started.Color)
	require.NotEmpty(t, started.RoomID)

	status, body = post(t, client, "/bot/move", gamedto.BotMoveRequest{
		RoomID: started.RoomID,
		UserID: "alice",
		Move:   gamedto.Move{From: "e2", To: "e4"},
	})
	require.Equal(t, fasthttp.StatusOK, status)
	var moved gamedto.BotMoveResponse
	require.NoError(t, json.Unmarshal(body, &moved))
	require.Equal(t, "e4", moved.UserMove.To)
	require.NotNil(t, moved.BotMove)
	require.Equal(t, "e5", moved.BotMove.To)
	require.False(t, moved.GameOver)
}

func TestBotMoveTerminalResponse(t *testing.T) {
	client := newTestClient(t, []string{"e7e5", "d8h4"})

	_, body := post(t, client, "/bot/start", gamedto.BotStartRequest{UserID: "alice"})
	var started gamedto.BotStartResponse
	require.NoError(t, json.Unmarshal(body, &started))

	status, _ := post(t, client, "/bot/move", gamedto.BotMoveRequest{
		RoomID: started.RoomID, UserID: "alice", Move: gamedto.Move{From: "f2", To: "f3"},
	})
	require.Equal(t, fasthttp.StatusOK, status)

	status, body = post(t, client, "/bot/move", gamedto.BotMoveRequest{
		RoomID: started.RoomID, UserID: "alice", Move: gamedto.Move{From: "g2", To: "g4"},
	})
	require.Equal(t, fasthttp.StatusOK, status)
	var final gamedto.BotMoveResponse
	require.NoError(t, json.Unmarshal(body, &final))
	require.True(t, final.GameOver)
	require.Equal(t, "black", final.Winner)
	require.Empty(t, final.WinnerID)
	require.Equal(t, "checkmate", final.Reason)
}

func TestBotMoveErrors(t *testing.T) {
	client := newTestClient(t, nil)

	status, body := post(t, client, "/bot/move", gamedto.BotMoveRequest{
		RoomID: "game:missing", UserID: "alice", Move: gamedto.Move{From: "e2", To: "e4"},
	})
	require.Equal(t, fasthttp.StatusNotFound, status)
	var derr gamedto.DomainError
	require.NoError(t, json.Unmarshal(body, &derr))
	require.Equal(t, "ROOM_NOT_FOUND", derr.Code)

	status, _ = post(t, client, "/bot/unknown", struct{}{})
	require.Equal(t, fasthttp.StatusNotFound, status)

	_, rawBody := post(t, client, "/bot/start", gamedto.BotStartRequest{UserID: "alice"})
	var started gamedto.BotStartResponse
	require.NoError(t, json.Unmarshal(rawBody, &started))

	status, body = post(t, client, "/bot/move", gamedto.BotMoveRequest{
		RoomID: started.RoomID, UserID: "alice", Move: gamedto.Move{From: "e2", To: "e5"},
	})
	require.Equal(t, fasthttp.StatusUnprocessableEntity, status)
	require.NoError(t, json.Unmarshal(body, &derr))
	require.Equal(t, "ILLEGAL_MOVE", derr.Code)
}
