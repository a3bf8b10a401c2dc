package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goIdentity/store"
)

const minTTL = time.Second

const createScript = `
local id = ARGV[1]
local n = tonumber(ARGV[4])
local owner_prefix = ARGV[5]
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {-1, KEYS[1]}
end
for i = 2, n + 1 do
  local owner = redis.call("GET", KEYS[i])
  if owner and owner ~= id and redis.call("EXISTS", owner_prefix .. owner) == 1 then
    return {-1, KEYS[i]}
  end
end
for i = 2, n + 1 do
  redis.call("SET", KEYS[i], id)
end
for i = n + 2, #KEYS do
  redis.call("SADD", KEYS[i], id)
end
redis.call("HSET", KEYS[1], "v", 1, "d", ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return {1, 1}
`

var createLua = redis.NewScript(createScript)

const updateScript = `
local id = ARGV[1]
local expected = tonumber(ARGV[4])
local n = tonumber(ARGV[5])
local p = tonumber(ARGV[6])
local m = tonumber(ARGV[7])
local owner_prefix = ARGV[9]

local rev = redis.call("HGET", KEYS[1], "v")
if not rev then
  return {0}
end
if expected > 0 and tonumber(rev) ~= expected then
  return {-2}
end

local new_u = 2
local old_u = new_u + n
local new_s = old_u + p
local old_s = new_s + m

for i = new_u, old_u - 1 do
  local owner = redis.call("GET", KEYS[i])
  if owner and owner ~= id and redis.call("EXISTS", owner_prefix .. owner) == 1 then
    return {-1, KEYS[i]}
  end
end
for i = old_u, new_s - 1 do
  if redis.call("GET", KEYS[i]) == id then
    redis.call("DEL", KEYS[i])
  end
end
for i = new_u, old_u - 1 do
  redis.call("SET", KEYS[i], id)
end
for i = old_s, #KEYS do
  redis.call("SREM", KEYS[i], id)
end
for i = new_s, old_s - 1 do
  redis.call("SADD", KEYS[i], id)
end

local next_rev = tonumber(rev) + 1
redis.call("HSET", KEYS[1], "v", next_rev, "d", ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return {1, next_rev}
`

var updateLua = redis.NewScript(updateScript)

const deleteScript = `
local existed = redis.call("DEL", KEYS[1])
local n = tonumber(ARGV[2])
for i = 2, n + 1 do
  if redis.call("GET", KEYS[i]) == ARGV[1] then
    redis.call("DEL", KEYS[i])
  end
end
for i = n + 2, #KEYS do
  redis.call("SREM", KEYS[i], ARGV[1])
end
return existed
`

var deleteLua = redis.NewScript(deleteScript)

type document interface {
	Metadata() *store.Meta
}

// layout derives the keys a record owns. Both funcs must be pure.
type layout[T any] struct {
	uniques func(*T) []string
	sets    func(*T) []string
	expire  func(*T) time.Time
}

type collection[T any, P interface {
	*T
	document
}] struct {
	rdb    redis.UniversalClient
	keys   keyspace
	name   string
	layout layout[T]
	now    func() time.Time
}

func (c *collection[T, P]) recordPrefix() string {
	return c.keys.join(c.name) + ":"
}

func (c *collection[T, P]) key(id string) string {
	return c.recordPrefix() + id
}

func (c *collection[T, P]) uniques(rec *T) []string {
	if c.layout.uniques == nil {
		return nil
	}
	return c.layout.uniques(rec)
}

func (c *collection[T, P]) sets(rec *T) []string {
	if c.layout.sets == nil {
		return nil
	}
	return c.layout.sets(rec)
}

func (c *collection[T, P]) ttl(rec *T) time.Duration {
	if c.layout.expire == nil {
		return 0
	}
	exp := c.layout.expire(rec)
	if exp.IsZero() {
		return 0
	}
	ttl := exp.Sub(c.now())
	if ttl < minTTL {
		ttl = minTTL
	}
	return ttl
}

func (c *collection[T, P]) get(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, store.ErrNotFound
	}
	vals, err := c.rdb.HMGet(ctx, c.key(id), "v", "d").Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return c.decode(vals)
}

func (c *collection[T, P]) decode(vals []any) (*T, error) {
	if len(vals) != 2 || vals[1] == nil {
		return nil, store.ErrNotFound
	}
	data, ok := vals[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s payload", store.ErrUnavailable, c.name)
	}
	rec := new(T)
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt %s record: %v", store.ErrUnavailable, c.name, err)
	}
	if s, ok := vals[0].(string); ok {
		rev, _ := strconv.ParseInt(s, 10, 64)
		P(rec).Metadata().Revision = rev
	}
	return rec, nil
}

func (c *collection[T, P]) create(ctx context.Context, rec *T) error {
	meta := P(rec).Metadata()
	if meta.ID == "" {
		return errors.New("redisstore: record id is required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	uniques := c.uniques(rec)
	keys := make([]string, 0, 1+len(uniques)+4)
	keys = append(keys, c.key(meta.ID))
	keys = append(keys, uniques...)
	keys = append(keys, c.sets(rec)...)

	res, err := createLua.Run(ctx, c.rdb, keys,
		meta.ID, payload, c.ttl(rec).Milliseconds(), len(uniques), c.recordPrefix(),
	).Slice()
	if err != nil {
		return unavailable(err)
	}
	if err := scriptStatus(res); err != nil {
		return err
	}
	meta.Revision = 1
	return nil
}

func (c *collection[T, P]) update(ctx context.Context, rec *T) error {
	meta := P(rec).Metadata()
	old, err := c.get(ctx, meta.ID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	newU, oldU := c.uniques(rec), c.uniques(old)
	newS, oldS := c.sets(rec), c.sets(old)
	keys := make([]string, 0, 1+len(newU)+len(oldU)+len(newS)+len(oldS))
	keys = append(keys, c.key(meta.ID))
	keys = append(keys, newU...)
	keys = append(keys, oldU...)
	keys = append(keys, newS...)
	keys = append(keys, oldS...)

	res, err := updateLua.Run(ctx, c.rdb, keys,
		meta.ID, payload, c.ttl(rec).Milliseconds(), meta.Revision,
		len(newU), len(oldU), len(newS), len(oldS), c.recordPrefix(),
	).Slice()
	if err != nil {
		return unavailable(err)
	}
	if err := scriptStatus(res); err != nil {
		return err
	}
	if len(res) > 1 {
		if rev, ok := res[1].(int64); ok {
			meta.Revision = rev
		}
	}
	return nil
}

func (c *collection[T, P]) delete(ctx context.Context, id string) (bool, error) {
	rec, err := c.get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	uniques := c.uniques(rec)
	keys := make([]string, 0, 1+len(uniques)+4)
	keys = append(keys, c.key(id))
	keys = append(keys, uniques...)
	keys = append(keys, c.sets(rec)...)

	existed, err := deleteLua.Run(ctx, c.rdb, keys, id, len(uniques)).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return existed == 1, nil
}

func (c *collection[T, P]) findUnique(ctx context.Context, uniqueKey string) (*T, error) {
	id, err := c.rdb.Get(ctx, uniqueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return c.get(ctx, id)
}

// listSet loads every member of setKey, oldest first, pruning members whose
// record is gone.
func (c *collection[T, P]) listSet(ctx context.Context, setKey string) ([]*T, error) {
	ids, err := c.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*T{}, nil
		}
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return []*T{}, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, c.key(id), "v", "d")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	out := make([]*T, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		rec, err := c.decode(cmd.Val())
		if errors.Is(err, store.ErrNotFound) {
			stale = append(stale, ids[i])
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		if err := c.rdb.SRem(ctx, setKey, stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := P(out[i]).Metadata(), P(out[j]).Metadata()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func scriptStatus(res []any) error {
	if len(res) == 0 {
		return fmt.Errorf("%w: empty script reply", store.ErrUnavailable)
	}
	code, _ := res[0].(int64)
	switch code {
	case 1:
		return nil
	case 0:
		return store.ErrNotFound
	case -2:
		return store.ErrConflict
	case -1:
		index := ""
		if len(res) > 1 {
			index, _ = res[1].(string)
		}
		return &store.DuplicateError{Index: index}
	default:
		return fmt.Errorf("%w: unexpected script status %d", store.ErrUnavailable, code)
	}
}
