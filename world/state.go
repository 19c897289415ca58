package world

import (
	"errors"
	"fmt"
)

// ErrNotNumeric is returned by Increase when the stored entry is not a number.
var ErrNotNumeric = errors.New("world: entry is not numeric")

// Entry is a single key/value fact.
type Entry struct {
	Key   string `json:"key" yaml:"key"`
	Value Value  `json:"value" yaml:"value"`
}

// Reader is the read side of the world state used by conditions.
type Reader interface {
	Get(key string) (Value, bool)
}

// Writer is the mutation side of the world state. Triggers and usage
// tracking only go through these methods.
type Writer interface {
	Set(key string, v Value)
	Increase(key string, delta float64) (Value, error)
	Delete(key string)
}

// State is the world-state store. Entries keep their insertion order.
// State is not safe for concurrent use.
type State struct {
	index   map[string]int
	entries []Entry
}

var (
	_ Reader = (*State)(nil)
	_ Writer = (*State)(nil)
)

// NewState creates a state seeded with the given entries. Later duplicates win.
func NewState(entries ...Entry) *State {
	s := &State{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		s.Set(e.Key, e.Value)
	}
	return s
}

// Get returns the value stored under key.
func (s *State) Get(key string) (Value, bool) {
	i, ok := s.index[key]
	if !ok {
		return Value{}, false
	}
	return s.entries[i].Value, true
}

// Set stores v under key, replacing any previous value.
func (s *State) Set(key string, v Value) {
	if i, ok := s.index[key]; ok {
		s.entries[i].Value = v
		return
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Value: v})
}

// Increase adds delta to a numeric entry. A missing entry starts at zero.
func (s *State) Increase(key string, delta float64) (Value, error) {
	current, ok := s.Get(key)
	if !ok {
		v := Number(delta)
		s.Set(key, v)
		return v, nil
	}
	if current.Kind() != KindNumber {
		return current, fmt.Errorf("%w: %s is %s", ErrNotNumeric, key, current.Kind())
	}
	v := Number(current.Float() + delta)
	s.Set(key, v)
	return v, nil
}

// Delete removes key if present.
func (s *State) Delete(key string) {
	i, ok := s.index[key]
	if !ok {
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j].Key] = j
	}
}

// Entries returns a copy of all entries in insertion order.
func (s *State) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *State) Len() int { return len(s.entries) }

// Reset drops every entry.
func (s *State) Reset() {
	s.index = make(map[string]int)
	s.entries = nil
}
