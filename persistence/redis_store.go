package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/drama/world"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is a Redis-based Database. Values live in hashes; sorted sets
// scored by a shared sequence keep insertion order.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

var _ Database = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "drama:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_store")),
	}, nil
}

func (s *RedisStore) worldKey() string      { return s.keyPrefix + "world" }
func (s *RedisStore) worldOrderKey() string { return s.keyPrefix + "world:order" }
func (s *RedisStore) chatsKey() string      { return s.keyPrefix + "chats" }
func (s *RedisStore) chatsOrderKey() string { return s.keyPrefix + "chats:order" }
func (s *RedisStore) promptsKey() string    { return s.keyPrefix + "prompts" }
func (s *RedisStore) seqKey() string        { return s.keyPrefix + "seq" }

func (s *RedisStore) Reset(ctx context.Context) error {
	err := s.client.Del(ctx,
		s.worldKey(), s.worldOrderKey(),
		s.chatsKey(), s.chatsOrderKey(),
		s.promptsKey(), s.seqKey(),
	).Err()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (s *RedisStore) InitStats(ctx context.Context, companionIDs []string) error {
	zero, _ := json.Marshal(world.Number(0))
	for _, key := range statKeys(companionIDs) {
		added, err := s.client.HSetNX(ctx, s.worldKey(), key, zero).Result()
		if err != nil {
			return fmt.Errorf("init stats: %w", err)
		}
		if added {
			if err := s.index(ctx, s.worldOrderKey(), key); err != nil {
				return fmt.Errorf("init stats: %w", err)
			}
		}
	}
	return nil
}

// index records member in an order set unless it is already there.
func (s *RedisStore) index(ctx context.Context, orderKey, member string) error {
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return err
	}
	return s.client.ZAddNX(ctx, orderKey, redis.Z{Score: float64(seq), Member: member}).Err()
}

func (s *RedisStore) WorldState(ctx context.Context) ([]world.Entry, error) {
	keys, err := s.client.ZRange(ctx, s.worldOrderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("world state: %w", err)
	}
	if len(keys) == 0 {
		return []world.Entry{}, nil
	}
	raw, err := s.client.HMGet(ctx, s.worldKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("world state: %w", err)
	}

	entries := make([]world.Entry, 0, len(keys))
	for i, key := range keys {
		str, ok := raw[i].(string)
		if !ok {
			continue
		}
		var v world.Value
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			s.logger.Warn("skipping undecodable world state entry", zap.String("key", key), zap.Error(err))
			continue
		}
		entries = append(entries, world.Entry{Key: key, Value: v})
	}
	return entries, nil
}

func (s *RedisStore) SetWorldStateEntry(ctx context.Context, key string, value world.Value) error {
	if key == "" || !value.IsValid() {
		return ErrInvalidInput
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal world value: %w", err)
	}
	if err := s.client.HSet(ctx, s.worldKey(), key, data).Err(); err != nil {
		return fmt.Errorf("set world state %q: %w", key, err)
	}
	if err := s.index(ctx, s.worldOrderKey(), key); err != nil {
		return fmt.Errorf("set world state %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetChat(ctx context.Context, id string) (*ChatRecord, error) {
	data, err := s.client.HGet(ctx, s.chatsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %q: %w", id, err)
	}
	var rec ChatRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal chat %q: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisStore) Chats(ctx context.Context) ([]ChatRecord, error) {
	ids, err := s.client.ZRange(ctx, s.chatsOrderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if len(ids) == 0 {
		return []ChatRecord{}, nil
	}
	raw, err := s.client.HMGet(ctx, s.chatsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	chats := make([]ChatRecord, 0, len(ids))
	for i, id := range ids {
		str, ok := raw[i].(string)
		if !ok {
			continue
		}
		var rec ChatRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			s.logger.Warn("skipping undecodable chat", zap.String("chat_id", id), zap.Error(err))
			continue
		}
		chats = append(chats, rec)
	}
	return chats, nil
}

func (s *RedisStore) WriteChat(ctx context.Context, id string, history []HistoryRecord) error {
	return s.OverwriteChat(ctx, ChatRecord{ID: id, History: history})
}

func (s *RedisStore) OverwriteChat(ctx context.Context, record ChatRecord) error {
	if record.ID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal chat %q: %w", record.ID, err)
	}
	if err := s.client.HSet(ctx, s.chatsKey(), record.ID, data).Err(); err != nil {
		return fmt.Errorf("write chat %q: %w", record.ID, err)
	}
	if err := s.index(ctx, s.chatsOrderKey(), record.ID); err != nil {
		return fmt.Errorf("write chat %q: %w", record.ID, err)
	}
	return nil
}

func (s *RedisStore) DeleteChat(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.chatsKey(), id)
		pipe.ZRem(ctx, s.chatsOrderKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete chat %q: %w", id, err)
	}
	return nil
}

func (s *RedisStore) AppendPromptLog(ctx context.Context, record PromptRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal prompt record: %w", err)
	}
	if err := s.client.RPush(ctx, s.promptsKey(), data).Err(); err != nil {
		return fmt.Errorf("append prompt log: %w", err)
	}
	return nil
}

func (s *RedisStore) Prompts(ctx context.Context) ([]PromptRecord, error) {
	items, err := s.client.LRange(ctx, s.promptsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	records := make([]PromptRecord, 0, len(items))
	for _, item := range items {
		var rec PromptRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.logger.Warn("skipping undecodable prompt record", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
