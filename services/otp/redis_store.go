package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record hashes live under <prefix>:rec:<id>. Each (email, purpose) pair has
// a set of record ids, and one sorted set indexes every id by expiry in
// unix milliseconds.
//
// The scripts read record hashes whose keys are derived from set members, so
// the store needs a single redis node rather than a cluster.

const invalidateLiveLua = `
local count = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local key = ARGV[2] .. id
  local f = redis.call('HMGET', key, 'is_used', 'invalidated_at', 'expires_at')
  if f[1] == '0' and not f[2] and tonumber(f[3]) > tonumber(ARGV[1]) then
    redis.call('HSET', key, 'invalidated_at', ARGV[1])
    count = count + 1
  end
end
`

const insertLua = `
if redis.call('EXISTS', KEYS[2]) == 1 then
  return redis.error_reply('record id already exists')
end
redis.call('HSET', KEYS[2], 'id', ARGV[3], 'email', ARGV[4], 'purpose', ARGV[5], 'code', ARGV[6],
  'created_at', ARGV[7], 'expires_at', ARGV[8], 'is_used', '0')
redis.call('SADD', KEYS[1], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[8], ARGV[3])
`

var (
	invalidateLiveScript = redis.NewScript(invalidateLiveLua + "return count")

	insertScript = redis.NewScript(insertLua + "return 1")

	swapLiveScript = redis.NewScript(invalidateLiveLua + insertLua + "return count")

	findLiveScript = redis.NewScript(`
local best, bestCreated = false, -1
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local f = redis.call('HMGET', ARGV[3] .. id, 'code', 'is_used', 'invalidated_at', 'expires_at', 'created_at')
  if f[1] == ARGV[1] and f[2] == '0' and not f[3] and tonumber(f[4]) > tonumber(ARGV[2]) then
    local created = tonumber(f[5])
    if created > bestCreated then
      best, bestCreated = id, created
    end
  end
end
return best
`)

	markUsedScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'is_used', 'invalidated_at', 'expires_at')
if f[1] ~= '0' or f[2] or tonumber(f[3]) <= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'is_used', '1', 'used_at', ARGV[1])
return 1
`)

	deleteScript = redis.NewScript(`
local removed = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
return removed
`)
)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) InvalidateLive(ctx context.Context, email, purpose string, now time.Time) (int64, error) {
	return invalidateLiveScript.Run(ctx, r.client,
		[]string{r.pairKey(email, purpose)},
		toMillis(now), r.recordKeyPrefix(),
	).Int64()
}

func (r *RedisStore) Insert(ctx context.Context, rec *Record) error {
	return insertScript.Run(ctx, r.client, r.insertKeys(rec), r.insertArgs(rec, rec.CreatedAt)...).Err()
}

func (r *RedisStore) SwapLive(ctx context.Context, rec *Record, now time.Time) (int64, error) {
	return swapLiveScript.Run(ctx, r.client, r.insertKeys(rec), r.insertArgs(rec, now)...).Int64()
}

func (r *RedisStore) FindLive(ctx context.Context, email, code, purpose string, now time.Time) (*Record, error) {
	id, err := findLiveScript.Run(ctx, r.client,
		[]string{r.pairKey(email, purpose)},
		code, toMillis(now), r.recordKeyPrefix(),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	fields, err := r.client.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseRecord(fields)
}

func (r *RedisStore) MarkUsed(ctx context.Context, rec *Record, now time.Time) (bool, error) {
	marked, err := markUsedScript.Run(ctx, r.client, []string{r.recordKey(rec.ID)}, toMillis(now)).Int64()
	if err != nil {
		return false, err
	}
	if marked != 1 {
		return false, nil
	}

	usedAt := now
	rec.IsUsed = true
	rec.UsedAt = &usedAt
	return true, nil
}

func (r *RedisStore) FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]Record, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + toMillis(cutoff),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.recordKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := parseRecord(fields)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (r *RedisStore) Delete(ctx context.Context, rec *Record) (bool, error) {
	removed, err := deleteScript.Run(ctx, r.client,
		[]string{r.recordKey(rec.ID), r.pairKey(rec.Email, rec.Purpose), r.expiryKey()},
		rec.ID,
	).Int64()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (r *RedisStore) insertKeys(rec *Record) []string {
	return []string{r.pairKey(rec.Email, rec.Purpose), r.recordKey(rec.ID), r.expiryKey()}
}

// insertArgs lays out ARGV for both the insert and swap scripts; the first
// two slots feed the invalidation loop.
func (r *RedisStore) insertArgs(rec *Record, now time.Time) []any {
	return []any{
		toMillis(now),
		r.recordKeyPrefix(),
		rec.ID,
		rec.Email,
		rec.Purpose,
		rec.Code,
		toMillis(rec.CreatedAt),
		toMillis(rec.ExpiresAt),
	}
}

func (r *RedisStore) recordKeyPrefix() string {
	return r.prefix + ":rec:"
}

func (r *RedisStore) recordKey(id string) string {
	return r.recordKeyPrefix() + id
}

// pairKey length-prefixes the email so no two pairs share a key.
func (r *RedisStore) pairKey(email, purpose string) string {
	return fmt.Sprintf("%s:pair:%d:%s:%s", r.prefix, len(email), email, purpose)
}

func (r *RedisStore) expiryKey() string {
	return r.prefix + ":expiry"
}

func toMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseRecord(fields map[string]string) (*Record, error) {
	rec := &Record{
		ID:      fields["id"],
		Email:   fields["email"],
		Purpose: fields["purpose"],
		Code:    fields["code"],
		IsUsed:  fields["is_used"] == "1",
	}

	var err error
	if rec.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("invalid created_at for record %s: %w", rec.ID, err)
	}
	if rec.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("invalid expires_at for record %s: %w", rec.ID, err)
	}
	if raw, ok := fields["used_at"]; ok {
		usedAt, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid used_at for record %s: %w", rec.ID, err)
		}
		rec.UsedAt = &usedAt
	}
	if raw, ok := fields["invalidated_at"]; ok {
		invalidatedAt, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid invalidated_at for record %s: %w", rec.ID, err)
		}
		rec.InvalidatedAt = &invalidatedAt
	}

	return rec, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
