package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aram47/chess-game-monolit-backend/pkg/gamedto"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrVersionConflict   = errors.New("room version conflict")
)

const waitingKey = "chess:waiting"

func roomKey(roomID string) string { return "chess:room:" + strings.TrimSpace(roomID) }
func userRoomKey(userID string) string {
	return "chess:user:" + strings.TrimSpace(userID) + ":room"
}

// Store holds the versioned room documents and the matchmaking slot in a
// shared Redis. All conditional mutations run as Lua scripts so they stay
// correct across horizontally scaled instances.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func NewFromURL(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for room store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Load fetches the room document.
func (s *Store) Load(ctx context.Context, roomID string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &r, nil
}

// Create writes a brand-new room (version 0) plus the reverse user→room
// mappings, refusing to clobber an existing document.
func (s *Store) Create(ctx context.Context, room *Room, ttl time.Duration) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return err
	}
	args := []interface{}{string(raw), int(ttl.Seconds()), room.RoomID}
	for _, seat := range []*PlayerRef{room.White, room.Black} {
		if seat != nil && seat.UserID != "" && seat.UserID != BotUserID {
			args = append(args, seat.UserID)
		}
	}
	err = createScript.Run(ctx, s.rdb, []string{roomKey(room.RoomID)}, args...).Err()
	if err != nil {
		if strings.Contains(err.Error(), "ROOM_ALREADY_EXISTS") {
			return ErrRoomAlreadyExists
		}
		return err
	}
	return nil
}

// Commit is the optimistic-concurrency primitive. The caller computed room
// from a previously loaded version; the script rejects atomically when the
// stored version moved on. On success the passed room carries the new
// version (expectedVersion+1) and the key TTL is refreshed.
func (s *Store) Commit(ctx context.Context, expectedVersion int64, room *Room, ttl time.Duration) (int64, error) {
	prev := room.Version
	room.Version = expectedVersion + 1
	raw, err := json.Marshal(room)
	if err != nil {
		room.Version = prev
		return 0, err
	}
	res, err := commitScript.Run(ctx, s.rdb,
		[]string{roomKey(room.RoomID)},
		expectedVersion, string(raw), int(ttl.Seconds()),
	).Int64()
	if err != nil {
		room.Version = prev
		switch {
		case strings.Contains(err.Error(), "VERSION_CONFLICT"):
			return 0, ErrVersionConflict
		case strings.Contains(err.Error(), "ROOM_NOT_FOUND"):
			return 0, ErrRoomNotFound
		}
		return 0, err
	}
	return res, nil
}

// Remove deletes the room key and both reverse mappings. Finished rooms are
// removed eagerly; abandoned ones fall to TTL expiry.
func (s *Store) Remove(ctx context.Context, room *Room) error {
	keys := []string{roomKey(room.RoomID)}
	for _, seat := range []*PlayerRef{room.White, room.Black} {
		if seat != nil && seat.UserID != "" && seat.UserID != BotUserID {
			keys = append(keys, userRoomKey(seat.UserID))
		}
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// RoomIDByUser resolves the reverse index; "" when the user has no live room.
func (s *Store) RoomIDByUser(ctx context.Context, userID string) (string, error) {
	id, err := s.rdb.Get(ctx, userRoomKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Matchmake runs the whole pairing decision as one script: idempotent
// re-entry for a user already bound to a live room, claiming the empty
// waiting slot, or popping the waiter and creating the room with both
// reverse mappings in the same evaluation.
func (s *Store) Matchmake(ctx context.Context, userID, connID, newRoomID, startFEN string, ttl time.Duration) (MatchOutcome, error) {
	entry, err := json.Marshal(PlayerRef{UserID: userID, ConnectionID: connID})
	if err != nil {
		return MatchOutcome{}, err
	}

	template := &Room{
		RoomID:    newRoomID,
		FEN:       startFEN,
		Turn:      White,
		White:     nil, // spliced in by the script from the waiting entry
		Black:     &PlayerRef{UserID: userID, ConnectionID: connID},
		Version:   0,
		AllMoves:  []gamedto.Move{},
		CreatedAt: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(template)
	if err != nil {
		return MatchOutcome{}, err
	}
	parts := strings.SplitN(string(raw), `"white":null`, 2)
	if len(parts) != 2 {
		return MatchOutcome{}, fmt.Errorf("room template missing white placeholder")
	}
	prefix := parts[0] + `"white":`
	suffix := parts[1]

	res, err := matchmakeScript.Run(ctx, s.rdb,
		[]string{waitingKey},
		userID, string(entry), prefix, suffix, int(ttl.Seconds()), newRoomID,
	).Result()
	if err != nil {
		return MatchOutcome{}, err
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) == 0 {
		return MatchOutcome{}, fmt.Errorf("unexpected matchmake reply: %v", res)
	}
	status, _ := reply[0].(string)
	switch status {
	case "WAIT":
		return MatchOutcome{Status: MatchWaiting}, nil
	case "MATCH", "ALREADY_IN_ROOM":
		if len(reply) < 2 {
			return MatchOutcome{}, fmt.Errorf("matchmake reply missing room: %v", res)
		}
		roomJSON, _ := reply[1].(string)
		var r Room
		if err := json.Unmarshal([]byte(roomJSON), &r); err != nil {
			return MatchOutcome{}, fmt.Errorf("decode matched room: %w", err)
		}
		st := MatchMatched
		if status == "ALREADY_IN_ROOM" {
			st = MatchAlreadyInRoom
		}
		return MatchOutcome{Status: st, Room: &r}, nil
	}
	return MatchOutcome{}, fmt.Errorf("unexpected matchmake status %q", status)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
