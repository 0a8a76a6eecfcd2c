package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aegis-bot/warden/automod/config"

	"github.com/redis/go-redis/v9"
)

var redisLedgerPrefix string = "automod/violations/"

// Redis-backed ledger: one sorted set per (group, author) scored by CreatedAt in microseconds, with record bodies in a hash next to it.
//
// Members are record IDs, so two records in the same millisecond are both counted. Keys expire after Retention without new violations, which bounds how far back CountSince can look. Retention is never shorter than config.MaxEscalationWindow.
type RedisStore struct {
	Client    *redis.Client
	Retention time.Duration
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Lister = (*RedisStore)(nil)
)

func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if retention < config.MaxEscalationWindow {
		retention = config.MaxEscalationWindow
	}
	return &RedisStore{
		Client:    client,
		Retention: retention,
	}
}

func redisIndexKey(groupID, authorID string) string {
	return redisLedgerPrefix + groupID + "/" + authorID
}

func redisBodyKey(groupID, authorID string) string {
	return redisIndexKey(groupID, authorID) + "/records"
}

func (s *RedisStore) Append(ctx context.Context, rec *ViolationRecord) (string, error) {
	if err := prepare(rec); err != nil {
		return "", err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}
	horizon := time.Now().Add(-s.Retention)
	if rec.CreatedAt.Before(horizon) {
		// already outside what CountSince can see
		return rec.ID, nil
	}
	idx := redisIndexKey(rec.GroupID, rec.AuthorID)
	bodies := redisBodyKey(rec.GroupID, rec.AuthorID)
	cutoff := "(" + strconv.FormatInt(horizon.UnixMicro(), 10)

	expired, err := s.Client.ZRangeByScore(ctx, idx, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}
	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, idx, redis.Z{Score: float64(rec.CreatedAt.UnixMicro()), Member: rec.ID})
		pipe.HSetNX(ctx, bodies, rec.ID, body)
		pipe.ZRemRangeByScore(ctx, idx, "-inf", cutoff)
		if len(expired) > 0 {
			pipe.HDel(ctx, bodies, expired...)
		}
		pipe.Expire(ctx, idx, s.Retention)
		pipe.Expire(ctx, bodies, s.Retention)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}
	return rec.ID, nil
}

func (s *RedisStore) CountSince(ctx context.Context, groupID, authorID string, since time.Time) (int, error) {
	n, err := s.Client.ZCount(ctx, redisIndexKey(groupID, authorID), strconv.FormatInt(since.UnixMicro(), 10), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisStore) Recent(ctx context.Context, groupID, authorID string, limit int) ([]ViolationRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := s.Client.ZRevRange(ctx, redisIndexKey(groupID, authorID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := s.Client.HMGet(ctx, redisBodyKey(groupID, authorID), ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ViolationRecord, 0, len(bodies))
	for i, b := range bodies {
		str, ok := b.(string)
		if !ok {
			// index entry without a body, eg expired between the two reads
			continue
		}
		var rec ViolationRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("decoding violation record %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Loads a single stored record.
func (s *RedisStore) Get(ctx context.Context, groupID, authorID, id string) (*ViolationRecord, error) {
	body, err := s.Client.HGet(ctx, redisBodyKey(groupID, authorID), id).Bytes()
	if err != nil {
		return nil, err
	}
	var rec ViolationRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
