package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestState_SetGetKeepsInsertionOrder(t *testing.T) {
	s := NewState()
	s.Set("B", Number(1))
	s.Set("A", String("x"))
	s.Set("B", Number(2))

	v, ok := s.Get("B")
	require.True(t, ok)
	assert.Equal(t, 2.0, v.Float())

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "B", entries[0].Key)
	assert.Equal(t, "A", entries[1].Key)
}

func TestState_Increase(t *testing.T) {
	s := NewState(Entry{Key: "COUNT", Value: Number(2)})

	v, err := s.Increase("COUNT", 3)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Float())

	v, err = s.Increase("NEW", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Float())

	s.Set("NAME", String("bob"))
	_, err = s.Increase("NAME", 1)
	assert.ErrorIs(t, err, ErrNotNumeric)
	got, _ := s.Get("NAME")
	assert.Equal(t, "bob", got.Str())
}

func TestState_Delete(t *testing.T) {
	s := NewState(
		Entry{Key: "A", Value: Bool(true)},
		Entry{Key: "B", Value: Bool(false)},
		Entry{Key: "C", Value: Number(3)},
	)
	s.Delete("A")
	s.Delete("missing")

	_, ok := s.Get("A")
	assert.False(t, ok)
	c, ok := s.Get("C")
	require.True(t, ok)
	assert.Equal(t, 3.0, c.Float())
	assert.Equal(t, 2, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestValue_Truthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"true", Bool(true), true},
		{"false", Bool(false), false},
		{"zero", Number(0), false},
		{"non-zero", Number(-1), true},
		{"empty string", String(""), false},
		{"string", String("yes"), true},
		{"invalid", Value{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Truthy())
		})
	}
}

func TestValue_JSON(t *testing.T) {
	entries := []Entry{
		{Key: "N", Value: Number(1.5)},
		{Key: "S", Value: String("hi")},
		{Key: "B", Value: Bool(true)},
	}
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"key":"N","value":1.5},{"key":"S","value":"hi"},{"key":"B","value":true}]`, string(data))

	var decoded []Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	for i := range entries {
		assert.True(t, entries[i].Value.Equal(decoded[i].Value), entries[i].Key)
	}

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestValue_YAML(t *testing.T) {
	var c Condition
	require.NoError(t, yaml.Unmarshal([]byte("tag: LEVEL\nvalue: 3\n"), &c))
	require.NotNil(t, c.Value)
	assert.Equal(t, KindNumber, c.Value.Kind())
	assert.Equal(t, 3.0, c.Value.Float())

	require.NoError(t, yaml.Unmarshal([]byte("tag: event\nvalue: ONBOARD\n"), &c))
	key, ok := c.EventKey()
	require.True(t, ok)
	assert.Equal(t, "ONBOARD", key)

	var v Value
	assert.Error(t, yaml.Unmarshal([]byte("[1, 2]"), &v))
}
