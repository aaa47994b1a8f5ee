package match

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Aram47/chess-game-monolit-backend/internal/roomstore"
	"github.com/Aram47/chess-game-monolit-backend/internal/rules"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(roomstore.New(rdb), time.Hour)
}

func TestRequestMatchPairsTwoPlayers(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.RequestMatch(ctx, "alice", "conn-a")
	require.NoError(t, err)
	require.Equal(t, roomstore.MatchWaiting, first.Status)
	require.Nil(t, first.Room)

	second, err := c.RequestMatch(ctx, "bob", "conn-b")
	require.NoError(t, err)
	require.Equal(t, roomstore.MatchMatched, second.Status)
	require.NotNil(t, second.Room)
	require.Equal(t, "alice", second.Room.White.UserID)
	require.Equal(t, "bob", second.Room.Black.UserID)
	require.Equal(t, rules.StartFEN, second.Room.FEN)
	require.Equal(t, roomstore.White, second.Room.Turn)
	require.True(t, time.Now().UnixMilli()-second.Room.CreatedAt < 5000)
}

func TestRequestMatchWhileWaitingStaysWaiting(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := c.RequestMatch(ctx, "alice", "conn-a")
		require.NoError(t, err)
		require.Equal(t, roomstore.MatchWaiting, res.Status)
	}
}

func TestRequestMatchReturnsExistingRoom(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.RequestMatch(ctx, "alice", "conn-a")
	require.NoError(t, err)
	paired, err := c.RequestMatch(ctx, "bob", "conn-b")
	require.NoError(t, err)

	again, err := c.RequestMatch(ctx, "alice", "conn-a2")
	require.NoError(t, err)
	require.Equal(t, roomstore.MatchAlreadyInRoom, again.Status)
	require.Equal(t, paired.Room.RoomID, again.Room.RoomID)
}

func TestRequestMatchValidatesInput(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.RequestMatch(ctx, "  ", "conn-a")
	require.Error(t, err)
	_, err = c.RequestMatch(ctx, "alice", "")
	require.Error(t, err)
}
