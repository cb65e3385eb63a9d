package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps entries as an 8-byte unix-millis header followed by the value.
// Keys also get a hard expiry so abandoned entries do not accumulate.
type Redis struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewRedis(rdb *redis.Client, prefix string, retention time.Duration) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "cache"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Redis{rdb: rdb, prefix: prefix, retention: retention, now: time.Now}
}

func (c *Redis) key(k string) string {
	return c.prefix + ":" + k
}

func (c *Redis) Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	storedAt, value, ok := decodeEntry(raw)
	if !ok {
		return nil, false, nil
	}
	if !fresh(storedAt, c.now(), maxAge) {
		return nil, false, nil
	}
	return value, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, c.key(key), encodeEntry(c.now(), value), c.retention).Err()
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}

func encodeEntry(storedAt time.Time, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(storedAt.UnixMilli()))
	copy(buf[8:], value)
	return buf
}

func decodeEntry(raw []byte) (time.Time, []byte, bool) {
	if len(raw) < 8 {
		return time.Time{}, nil, false
	}
	ms := int64(binary.BigEndian.Uint64(raw[:8]))
	return time.UnixMilli(ms), raw[8:], true
}
