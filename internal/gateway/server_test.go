package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Aram47/chess-game-monolit-backend/internal/match"
	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
	"github.com/Aram47/chess-game-monolit-backend/internal/session"
	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := roomstore.New(rdb)
	registry := NewRegistry()
	handler := session.NewHandler(store, rules.NewAdapter(), nil, nil, registry, session.Config{
		RoomTTL:         time.Hour,
		DisconnectGrace: 30 * time.Second,
	})
	srv := NewServer(
		match.New(store, time.Hour),
		handler,
		session.NewMonitor(handler),
		registry,
		testSecret,
	)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(ts.URL, "http", "ws", 1) + "/?token=" + signToken(t, userID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		data = raw
	}
	require.NoError(t, wsjson.Write(ctx, conn, gamedto.Envelope{Event: event, Data: data}))
}

func readEvent(t *testing.T, conn *websocket.Conn) gamedto.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var env gamedto.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	return env
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFindGamePairsAndPlaysMove(t *testing.T) {
	ts := newTestServer(t)

	alice := dial(t, ts, "alice")
	sendEvent(t, alice, gamedto.EventFindGame, nil)
	env := readEvent(t, alice)
	require.Equal(t, gamedto.EventWaitingForOpponent, env.Event)

	bob := dial(t, ts, "bob")
	sendEvent(t, bob, gamedto.EventFindGame, nil)

	var started gamedto.GameStartedPayload
	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEvent(t, conn)
		require.Equal(t, gamedto.EventGameStarted, env.Event)
		require.NoError(t, json.Unmarshal(env.Data, &started))
		require.Equal(t, "alice", started.White)
		require.Equal(t, "bob", started.Black)
		require.Equal(t, rules.StartFEN, started.FEN)
		require.Equal(t, "white", started.Turn)
	}

	sendEvent(t, alice, gamedto.EventMakeMove, gamedto.MakeMovePayload{
		RoomID: started.RoomID,
		Move:   gamedto.Move{From: "e2", To: "e4"},
	})

	env = readEvent(t, alice)
	require.Equal(t, gamedto.EventMoveMade, env.Event)
	env = readEvent(t, bob)
	require.Equal(t, gamedto.EventMoveMade, env.Event)
	var made gamedto.MoveMadePayload
	require.NoError(t, json.Unmarshal(env.Data, &made))
	require.Equal(t, "e4", made.Move.To)
}

func TestMakeMoveErrorsAreSingleEmissions(t *testing.T) {
	ts := newTestServer(t)

	alice := dial(t, ts, "alice")
	sendEvent(t, alice, gamedto.EventMakeMove, gamedto.MakeMovePayload{
		RoomID: "game:missing",
		Move:   gamedto.Move{From: "e2", To: "e4"},
	})

	env := readEvent(t, alice)
	require.Equal(t, gamedto.EventError, env.Event)
	var derr gamedto.DomainError
	require.NoError(t, json.Unmarshal(env.Data, &derr))
	require.Equal(t, "ROOM_NOT_FOUND", derr.Code)

	// loop is still alive after the error
	sendEvent(t, alice, "bogus_event", nil)
	env = readEvent(t, alice)
	require.Equal(t, gamedto.EventError, env.Event)
}

func TestUserIDFromToken(t *testing.T) {
	token := signToken(t, "alice")
	uid, err := userIDFromToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "alice", uid)

	_, err = userIDFromToken(token, "other-secret")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = userIDFromToken("", testSecret)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestDomainErrorMapping(t *testing.T) {
	require.Equal(t, "NOT_YOUR_TURN", domainErrorFor(session.ErrNotYourTurn).Code)
	require.Equal(t, "ILLEGAL_MOVE", domainErrorFor(rules.ErrIllegalMove).Code)
	require.Equal(t, "MOVE_SUPERSEDED", domainErrorFor(session.ErrMoveSuperseded).Code)
	require.True(t, domainErrorFor(session.ErrBlocked).Retryable)
}

func TestRegistrySendToMissingConnection(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.Send("nope", gamedto.EventError, nil), errConnectionGone)
}
