package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZanzyTHEbar/concrete-go"
)

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Redis keeps one list of messages per operator and one key per message.
type Redis struct {
	rdb    RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedis creates a store on rdb. Keys start with prefix, "concrete" by
// default. A positive ttl expires messages.
func NewRedis(rdb RedisClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "concrete"
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) listKey(operatorID string) string {
	return r.prefix + ":operator:" + operatorID + ":messages"
}

func (r *Redis) messageKey(id string) string {
	return r.prefix + ":message:" + id
}

// SaveMessage implements concrete.MessageStore.
func (r *Redis) SaveMessage(ctx context.Context, msg concrete.Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return concrete.NewStoreError("save_message", err)
	}
	if err := r.rdb.Set(ctx, r.messageKey(msg.ID), raw, r.ttl).Err(); err != nil {
		return concrete.NewStoreError("save_message", err)
	}
	key := r.listKey(msg.OperatorID)
	if err := r.rdb.RPush(ctx, key, raw).Err(); err != nil {
		return concrete.NewStoreError("save_message", err)
	}
	if r.ttl > 0 {
		if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
			return concrete.NewStoreError("save_message", err)
		}
	}
	return nil
}

// GetMessage returns the message with id.
func (r *Redis) GetMessage(ctx context.Context, id string) (concrete.Message, error) {
	raw, err := r.rdb.Get(ctx, r.messageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return concrete.Message{}, ErrNotFound
	}
	if err != nil {
		return concrete.Message{}, concrete.NewStoreError("get_message", err)
	}
	var msg concrete.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return concrete.Message{}, concrete.NewStoreError("get_message", err)
	}
	return msg, nil
}

// ListMessages implements concrete.MessageStore, in insertion order.
func (r *Redis) ListMessages(ctx context.Context, operatorID string) ([]concrete.Message, error) {
	items, err := r.rdb.LRange(ctx, r.listKey(operatorID), 0, -1).Result()
	if err != nil {
		return nil, concrete.NewStoreError("list_messages", err)
	}
	out := make([]concrete.Message, 0, len(items))
	for _, item := range items {
		var msg concrete.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, concrete.NewStoreError("list_messages", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.rdb.Close() }
