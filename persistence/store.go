package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/drama/internal/database"
	"github.com/BaSui01/drama/world"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
	StoreTypeMySQL    StoreType = "mysql"
)

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Type StoreType `json:"type" yaml:"type" env:"TYPE"`

	// Redis is used when Type is "redis".
	Redis RedisStoreConfig `json:"redis" yaml:"redis" env:"REDIS"`

	// DSN and Pool are used by the SQL backends.
	DSN  string              `json:"dsn" yaml:"dsn" env:"DSN"`
	Pool database.PoolConfig `json:"pool" yaml:"pool"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Host      string `json:"host" yaml:"host" env:"HOST"`
	Port      int    `json:"port" yaml:"port" env:"PORT"`
	Password  string `json:"password" yaml:"password" env:"PASSWORD"`
	DB        int    `json:"db" yaml:"db" env:"DB"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type: StoreTypeMemory,
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			PoolSize:  10,
			KeyPrefix: "drama:",
		},
		Pool: database.DefaultPoolConfig(),
	}
}

// HistoryRecord is one persisted chat message.
type HistoryRecord struct {
	Companion string    `json:"companion"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRecord is the persisted history of one chat.
type ChatRecord struct {
	ID      string          `json:"id"`
	History []HistoryRecord `json:"history"`
	Default bool            `json:"default,omitempty"`
}

// PromptRecord logs one inference round trip. Config is the JSON-encoded
// model configuration.
type PromptRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt"`
	Result    string    `json:"result"`
	Config    string    `json:"config"`
}

// Database persists world state, chats and the prompt log.
type Database interface {
	// Reset removes all data.
	Reset(ctx context.Context) error
	// InitStats seeds zero interaction and action counters for companions
	// that do not have them yet.
	InitStats(ctx context.Context, companionIDs []string) error

	// WorldState returns all entries in insertion order.
	WorldState(ctx context.Context) ([]world.Entry, error)
	// SetWorldStateEntry inserts or updates key.
	SetWorldStateEntry(ctx context.Context, key string, value world.Value) error

	// GetChat returns ErrNotFound for an unknown id.
	GetChat(ctx context.Context, id string) (*ChatRecord, error)
	Chats(ctx context.Context) ([]ChatRecord, error)
	WriteChat(ctx context.Context, id string, history []HistoryRecord) error
	DeleteChat(ctx context.Context, id string) error
	// OverwriteChat replaces a chat wholesale, e.g. when restoring a session.
	OverwriteChat(ctx context.Context, record ChatRecord) error

	AppendPromptLog(ctx context.Context, record PromptRecord) error
	Prompts(ctx context.Context) ([]PromptRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// InteractionsKey is the world-state key counting interactions with a companion.
func InteractionsKey(companionID string) string {
	return "COMPANION_INTERACTIONS_" + strings.ToUpper(companionID)
}

// ActionsKey is the world-state key counting actions run by a companion.
func ActionsKey(companionID string) string {
	return "COMPANION_ACTIONS_" + strings.ToUpper(companionID)
}

func statKeys(companionIDs []string) []string {
	keys := make([]string, 0, 2*len(companionIDs))
	for _, id := range companionIDs {
		keys = append(keys, InteractionsKey(id), ActionsKey(id))
	}
	return keys
}
