package persistence

import (
	"context"
	"sync"

	"github.com/BaSui01/drama/world"
)

// MemoryStore is the in-process Database. Chats keep their creation order.
type MemoryStore struct {
	mu      sync.RWMutex
	state   *world.State
	chats   map[string]ChatRecord
	order   []string
	prompts []PromptRecord
	closed  bool
}

var _ Database = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: world.NewState(),
		chats: make(map[string]ChatRecord),
	}
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.state.Reset()
	s.chats = make(map[string]ChatRecord)
	s.order = nil
	s.prompts = nil
	return nil
}

func (s *MemoryStore) InitStats(ctx context.Context, companionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for _, key := range statKeys(companionIDs) {
		if _, ok := s.state.Get(key); !ok {
			s.state.Set(key, world.Number(0))
		}
	}
	return nil
}

func (s *MemoryStore) WorldState(ctx context.Context) ([]world.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.state.Entries(), nil
}

func (s *MemoryStore) SetWorldStateEntry(ctx context.Context, key string, value world.Value) error {
	if key == "" || !value.IsValid() {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.state.Set(key, value)
	return nil
}

func (s *MemoryStore) GetChat(ctx context.Context, id string) (*ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := s.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec = copyChat(rec)
	return &rec, nil
}

func (s *MemoryStore) Chats(ctx context.Context) ([]ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]ChatRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyChat(s.chats[id]))
	}
	return out, nil
}

func (s *MemoryStore) WriteChat(ctx context.Context, id string, history []HistoryRecord) error {
	return s.OverwriteChat(ctx, ChatRecord{ID: id, History: history})
}

func (s *MemoryStore) OverwriteChat(ctx context.Context, record ChatRecord) error {
	if record.ID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.chats[record.ID]; !ok {
		s.order = append(s.order, record.ID)
	}
	s.chats[record.ID] = copyChat(record)
	return nil
}

func (s *MemoryStore) DeleteChat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.chats[id]; !ok {
		return nil
	}
	delete(s.chats, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) AppendPromptLog(ctx context.Context, record PromptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.prompts = append(s.prompts, record)
	return nil
}

func (s *MemoryStore) Prompts(ctx context.Context) ([]PromptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return append([]PromptRecord(nil), s.prompts...), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyChat(rec ChatRecord) ChatRecord {
	rec.History = append([]HistoryRecord(nil), rec.History...)
	return rec
}
