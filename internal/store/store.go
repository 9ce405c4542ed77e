// Package store persists the answers operators resolve.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
)

// ErrNotFound is returned when a message ID is unknown.
var ErrNotFound = errors.New("message not found")

// Store is a concrete.MessageStore that can also fetch single messages.
type Store interface {
	concrete.MessageStore
	GetMessage(ctx context.Context, id string) (concrete.Message, error)
}

// Backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend   string        `mapstructure:"backend"`
	Path      string        `mapstructure:"path"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// Open creates the store cfg names.
func Open(cfg Config, logger logrus.FieldLogger) (Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("store", cfg.Backend)

	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemory(cfg.TTL), nil
	case BackendFile:
		if cfg.Path == "" {
			return nil, concrete.NewConfigurationError("file store needs a path", nil)
		}
		return NewFile(cfg.Path, logger)
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, concrete.NewConfigurationError("sqlite store needs a path", nil)
		}
		return OpenSQLite(cfg.Path)
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, concrete.NewConfigurationError("redis store needs an address", nil)
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return NewRedis(client, cfg.KeyPrefix, cfg.TTL), nil
	}
	return nil, concrete.NewConfigurationError(fmt.Sprintf("unknown store backend %q", cfg.Backend), nil)
}

func sortByTime(msgs []concrete.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
}

func validate(msg concrete.Message) error {
	if msg.ID == "" {
		return concrete.NewValidationError("store", "message needs an ID", nil)
	}
	return nil
}
