package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stampgate/internal/reference/models"
	"stampgate/pkg/platform/sentinel"
)

const indexKeyPrefix = "stampgate:dupindex:"

// RedisIndex backs the duplicate index with Redis. SET NX gives the atomic
// check-and-insert; records are kept without TTL since references are
// retained for audit.
type RedisIndex struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func (s *RedisIndex) PutIfAbsent(ctx context.Context, record models.ReferenceRecord) (models.ReferenceRecord, bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return models.ReferenceRecord{}, false, fmt.Errorf("marshal reference record: %w", err)
	}

	key := indexKeyPrefix + record.ContentHash
	inserted, err := s.client.SetNX(ctx, key, payload, 0).Result()
	if err != nil {
		return models.ReferenceRecord{}, false, fmt.Errorf("dupindex setnx: %w", err)
	}
	if inserted {
		return record, true, nil
	}

	existing, err := s.Get(ctx, record.ContentHash)
	if err != nil {
		return models.ReferenceRecord{}, false, err
	}
	return existing, false, nil
}

func (s *RedisIndex) Get(ctx context.Context, contentHash string) (models.ReferenceRecord, error) {
	raw, err := s.client.Get(ctx, indexKeyPrefix+contentHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ReferenceRecord{}, sentinel.ErrNotFound
		}
		return models.ReferenceRecord{}, fmt.Errorf("dupindex get: %w", err)
	}

	var record models.ReferenceRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return models.ReferenceRecord{}, fmt.Errorf("unmarshal reference record: %w", err)
	}
	return record, nil
}

func (s *RedisIndex) Count(ctx context.Context) (int64, error) {
	var total int64
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, indexKeyPrefix+"*", 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("dupindex scan: %w", err)
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
