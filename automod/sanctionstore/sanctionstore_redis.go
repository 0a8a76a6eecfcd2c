package sanctionstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisSanctionPrefix string = "automod/sanction/"

// Shared store for multiple daemon replicas. Mutes are keys with a TTL; bans are keys without one.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func redisKey(groupID, authorID string, kind Kind) string {
	return redisSanctionPrefix + sanctionKey(groupID, authorID) + "/" + string(kind)
}

func (s *RedisStore) Claim(ctx context.Context, groupID, authorID string, kind Kind, ttl time.Duration) (bool, error) {
	banned, err := s.Client.Exists(ctx, redisKey(groupID, authorID, KindBan)).Result()
	if err != nil {
		return false, err
	}
	if banned > 0 {
		return false, nil
	}
	if kind == KindBan {
		ttl = 0
	}
	return s.Client.SetNX(ctx, redisKey(groupID, authorID, kind), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (s *RedisStore) Active(ctx context.Context, groupID, authorID string) (Kind, error) {
	for _, kind := range []Kind{KindBan, KindMute} {
		n, err := s.Client.Exists(ctx, redisKey(groupID, authorID, kind)).Result()
		if err != nil {
			return "", err
		}
		if n > 0 {
			return kind, nil
		}
	}
	return "", nil
}

func (s *RedisStore) Release(ctx context.Context, groupID, authorID string, kind Kind) error {
	return s.Client.Del(ctx, redisKey(groupID, authorID, kind)).Err()
}
