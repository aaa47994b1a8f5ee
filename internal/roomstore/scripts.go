package roomstore

import "github.com/redis/go-redis/v9"

// Each script is an indivisible conditional read-modify-write: the decision
// and every dependent write happen inside a single Redis evaluation, so two
// racing callers can never both observe the same precondition and both win.

// KEYS[1] = room key
// ARGV[1] = expected version
// ARGV[2] = new room JSON, version already bumped to expected+1
// ARGV[3] = ttl seconds
var commitScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return redis.error_reply("ROOM_NOT_FOUND")
end
local decoded = cjson.decode(current)
if decoded.version ~= tonumber(ARGV[1]) then
  return redis.error_reply("VERSION_CONFLICT")
end
redis.call("SET", KEYS[1], ARGV[2], "EX", ARGV[3])
return decoded.version + 1
`)

// KEYS[1] = room key
// ARGV[1] = room JSON
// ARGV[2] = ttl seconds
// ARGV[3] = room id
// ARGV[4..] = user ids to reverse-index
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.error_reply("ROOM_ALREADY_EXISTS")
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
for i = 4, #ARGV do
  redis.call("SET", "chess:user:" .. ARGV[i] .. ":room", ARGV[3], "EX", ARGV[2])
end
return "OK"
`)

// KEYS[1] = waiting slot key
// ARGV[1] = caller user id
// ARGV[2] = caller waiting-entry JSON
// ARGV[3] = room JSON prefix (up to and including `"white":`)
// ARGV[4] = room JSON suffix (everything after the white binding)
// ARGV[5] = ttl seconds
// ARGV[6] = new room id
//
// The fresh room document is assembled by splicing the stored waiting entry
// between prefix and suffix. That keeps the JSON exactly as Go encoded it;
// a cjson re-encode would turn the empty allMoves array into an object.
var matchmakeScript = redis.NewScript(`
local existing = redis.call("GET", "chess:user:" .. ARGV[1] .. ":room")
if existing then
  local room = redis.call("GET", "chess:room:" .. existing)
  if room then
    return {"ALREADY_IN_ROOM", room}
  end
  redis.call("DEL", "chess:user:" .. ARGV[1] .. ":room")
end
local waiting = redis.call("GET", KEYS[1])
if not waiting then
  redis.call("SET", KEYS[1], ARGV[2], "EX", ARGV[5])
  return {"WAIT"}
end
local waitingUser = cjson.decode(waiting)
if waitingUser.userId == ARGV[1] then
  return {"WAIT"}
end
redis.call("DEL", KEYS[1])
local room = ARGV[3] .. waiting .. ARGV[4]
redis.call("SET", "chess:room:" .. ARGV[6], room, "EX", ARGV[5])
redis.call("SET", "chess:user:" .. waitingUser.userId .. ":room", ARGV[6], "EX", ARGV[5])
redis.call("SET", "chess:user:" .. ARGV[1] .. ":room", ARGV[6], "EX", ARGV[5])
return {"MATCH", room}
`)
