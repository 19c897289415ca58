package persistence

import (
	"fmt"

	"github.com/BaSui01/drama/internal/database"
	"go.uber.org/zap"
)

// New creates the Database selected by config.Type.
func New(config StoreConfig, logger *zap.Logger) (Database, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		return NewRedisStore(config.Redis, logger)
	case StoreTypeSQLite, StoreTypePostgres, StoreTypeMySQL:
		return NewSQLStore(database.Config{
			Driver: database.Driver(config.Type),
			DSN:    config.DSN,
			Pool:   config.Pool,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
