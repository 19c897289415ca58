package persistence

import (
	"context"
	"errors"

	"github.com/BaSui01/drama/internal/metrics"
	"github.com/BaSui01/drama/world"
)

// instrumented records every call's outcome on a metrics collector.
type instrumented struct {
	next      Database
	backend   string
	collector *metrics.Collector
}

// Instrument wraps db so each operation is counted under backend. A nil
// collector returns db unchanged.
func Instrument(db Database, backend string, collector *metrics.Collector) Database {
	if collector == nil {
		return db
	}
	return &instrumented{next: db, backend: backend, collector: collector}
}

func (d *instrumented) record(op string, err error) error {
	d.collector.RecordStoreOperation(d.backend, op, err)
	return err
}

func (d *instrumented) Reset(ctx context.Context) error {
	return d.record("reset", d.next.Reset(ctx))
}

func (d *instrumented) InitStats(ctx context.Context, companionIDs []string) error {
	return d.record("init_stats", d.next.InitStats(ctx, companionIDs))
}

func (d *instrumented) WorldState(ctx context.Context) ([]world.Entry, error) {
	entries, err := d.next.WorldState(ctx)
	return entries, d.record("world_state", err)
}

func (d *instrumented) SetWorldStateEntry(ctx context.Context, key string, value world.Value) error {
	return d.record("set_world_state", d.next.SetWorldStateEntry(ctx, key, value))
}

func (d *instrumented) GetChat(ctx context.Context, id string) (*ChatRecord, error) {
	rec, err := d.next.GetChat(ctx, id)
	if errors.Is(err, ErrNotFound) {
		d.collector.RecordStoreOperation(d.backend, "get_chat", nil)
		return nil, err
	}
	return rec, d.record("get_chat", err)
}

func (d *instrumented) Chats(ctx context.Context) ([]ChatRecord, error) {
	chats, err := d.next.Chats(ctx)
	return chats, d.record("chats", err)
}

func (d *instrumented) WriteChat(ctx context.Context, id string, history []HistoryRecord) error {
	return d.record("write_chat", d.next.WriteChat(ctx, id, history))
}

func (d *instrumented) DeleteChat(ctx context.Context, id string) error {
	return d.record("delete_chat", d.next.DeleteChat(ctx, id))
}

func (d *instrumented) OverwriteChat(ctx context.Context, record ChatRecord) error {
	return d.record("overwrite_chat", d.next.OverwriteChat(ctx, record))
}

func (d *instrumented) AppendPromptLog(ctx context.Context, record PromptRecord) error {
	return d.record("append_prompt_log", d.next.AppendPromptLog(ctx, record))
}

func (d *instrumented) Prompts(ctx context.Context) ([]PromptRecord, error) {
	records, err := d.next.Prompts(ctx)
	return records, d.record("prompts", err)
}

func (d *instrumented) Ping(ctx context.Context) error {
	return d.record("ping", d.next.Ping(ctx))
}

func (d *instrumented) Close() error {
	return d.next.Close()
}
