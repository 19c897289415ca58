package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/drama/internal/database"
	"github.com/BaSui01/drama/world"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// worldEntryModel stores one world-state entry; Seq keeps insertion order.
type worldEntryModel struct {
	Seq      uint   `gorm:"primaryKey;autoIncrement"`
	EntryKey string `gorm:"column:entry_key;size:191;uniqueIndex;not null"`
	Value    string `gorm:"type:text;not null"`
}

func (worldEntryModel) TableName() string { return "drama_world_state" }

type chatModel struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ChatID    string `gorm:"column:chat_id;size:191;uniqueIndex;not null"`
	History   string `gorm:"type:text"`
	IsDefault bool
}

func (chatModel) TableName() string { return "drama_chats" }

type promptModel struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time
	Prompt    string `gorm:"type:text"`
	Result    string `gorm:"type:text"`
	Config    string `gorm:"type:text"`
}

func (promptModel) TableName() string { return "drama_prompts" }

// SQLStore is a GORM-backed Database for SQLite, PostgreSQL and MySQL.
type SQLStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

var _ Database = (*SQLStore)(nil)

// NewSQLStore opens the database and migrates the schema.
func NewSQLStore(cfg database.Config, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := pool.DB().AutoMigrate(&worldEntryModel{}, &chatModel{}, &promptModel{}); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return newSQLStore(pool, logger), nil
}

func newSQLStore(pool *database.PoolManager, logger *zap.Logger) *SQLStore {
	return &SQLStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "sql_store"), zap.String("dialect", pool.Dialect())),
	}
}

func (s *SQLStore) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

func (s *SQLStore) Reset(ctx context.Context) error {
	return s.pool.Transact(ctx, 3, func(tx *gorm.DB) error {
		for _, model := range []any{&worldEntryModel{}, &chatModel{}, &promptModel{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) InitStats(ctx context.Context, companionIDs []string) error {
	keys := statKeys(companionIDs)
	if len(keys) == 0 {
		return nil
	}
	zero, _ := json.Marshal(world.Number(0))
	rows := make([]worldEntryModel, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, worldEntryModel{EntryKey: key, Value: string(zero)})
	}
	err := s.db(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "entry_key"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("init stats: %w", err)
	}
	return nil
}

func (s *SQLStore) WorldState(ctx context.Context) ([]world.Entry, error) {
	var rows []worldEntryModel
	if err := s.db(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("world state: %w", err)
	}
	entries := make([]world.Entry, 0, len(rows))
	for _, row := range rows {
		var v world.Value
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			s.logger.Warn("skipping undecodable world state entry", zap.String("key", row.EntryKey), zap.Error(err))
			continue
		}
		entries = append(entries, world.Entry{Key: row.EntryKey, Value: v})
	}
	return entries, nil
}

func (s *SQLStore) SetWorldStateEntry(ctx context.Context, key string, value world.Value) error {
	if key == "" || !value.IsValid() {
		return ErrInvalidInput
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal world value: %w", err)
	}
	row := worldEntryModel{EntryKey: key, Value: string(data)}
	err = s.db(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("set world state %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) GetChat(ctx context.Context, id string) (*ChatRecord, error) {
	var row chatModel
	err := s.db(ctx).Where("chat_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %q: %w", id, err)
	}
	return row.record()
}

func (s *SQLStore) Chats(ctx context.Context) ([]ChatRecord, error) {
	var rows []chatModel
	if err := s.db(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := make([]ChatRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			s.logger.Warn("skipping undecodable chat", zap.String("chat_id", row.ChatID), zap.Error(err))
			continue
		}
		chats = append(chats, *rec)
	}
	return chats, nil
}

func (row chatModel) record() (*ChatRecord, error) {
	rec := &ChatRecord{ID: row.ChatID, Default: row.IsDefault}
	if row.History != "" {
		if err := json.Unmarshal([]byte(row.History), &rec.History); err != nil {
			return nil, fmt.Errorf("unmarshal chat %q: %w", row.ChatID, err)
		}
	}
	return rec, nil
}

func (s *SQLStore) WriteChat(ctx context.Context, id string, history []HistoryRecord) error {
	return s.OverwriteChat(ctx, ChatRecord{ID: id, History: history})
}

func (s *SQLStore) OverwriteChat(ctx context.Context, record ChatRecord) error {
	if record.ID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(record.History)
	if err != nil {
		return fmt.Errorf("marshal chat %q: %w", record.ID, err)
	}
	row := chatModel{ChatID: record.ID, History: string(data), IsDefault: record.Default}
	err = s.db(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"history", "is_default"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("write chat %q: %w", record.ID, err)
	}
	return nil
}

func (s *SQLStore) DeleteChat(ctx context.Context, id string) error {
	if err := s.db(ctx).Where("chat_id = ?", id).Delete(&chatModel{}).Error; err != nil {
		return fmt.Errorf("delete chat %q: %w", id, err)
	}
	return nil
}

func (s *SQLStore) AppendPromptLog(ctx context.Context, record PromptRecord) error {
	row := promptModel{
		Timestamp: record.Timestamp,
		Prompt:    record.Prompt,
		Result:    record.Result,
		Config:    record.Config,
	}
	if err := s.db(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append prompt log: %w", err)
	}
	return nil
}

func (s *SQLStore) Prompts(ctx context.Context) ([]PromptRecord, error) {
	var rows []promptModel
	if err := s.db(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	records := make([]PromptRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, PromptRecord{
			Timestamp: row.Timestamp,
			Prompt:    row.Prompt,
			Result:    row.Result,
			Config:    row.Config,
		})
	}
	return records, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *SQLStore) Close() error {
	return s.pool.Close()
}
