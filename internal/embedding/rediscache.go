package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisCache is a Cache backed by Redis, storing each embedding as a
// packed little-endian float32 byte string.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client, prefix string, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	if prefix == "" {
		prefix = "podwise:embed:"
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("embedding cache get failed")
		}
		return nil, false
	}
	return decodeFloat32s(data), true
}

func (c *RedisCache) Set(ctx context.Context, key string, embedding []float32, ttl time.Duration) {
	data := encodeFloat32s(embedding)
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("embedding cache set failed")
	}
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
