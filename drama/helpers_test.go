package drama

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/persistence"
	"github.com/BaSui01/drama/testutil"
	"github.com/BaSui01/drama/testutil/fixtures"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC)

func npc(name, description string) CompanionConfig {
	return CompanionConfig{
		Name:        name,
		Description: description,
		BasePrompt:  "You are " + name + ".",
		Kind:        KindNPC,
	}
}

func shell(name, class string, scope Scope) CompanionConfig {
	return CompanionConfig{
		Name:        name,
		Class:       class,
		Description: name + " helps out.",
		Kind:        KindShell,
		Scope:       scope,
	}
}

type engineOpts struct {
	cfg  *Config
	db   persistence.Database
	opts []Option
}

func newTestEngine(t *testing.T, backend llm.Backend, roster []CompanionConfig, o ...func(*engineOpts)) (*Engine, persistence.Database) {
	t.Helper()
	eo := &engineOpts{}
	for _, fn := range o {
		fn(eo)
	}
	cfg := DefaultConfig()
	if eo.cfg != nil {
		cfg = *eo.cfg
	}
	db := eo.db
	if db == nil {
		db = persistence.NewMemoryStore()
	}
	opts := append([]Option{
		WithRand(rand.New(rand.NewSource(7))),
		WithClock(testutil.FixedClock(testEpoch)),
	}, eo.opts...)

	e, err := New(context.Background(), cfg, roster, backend, db, opts...)
	require.NoError(t, err)
	return e, db
}

func withConfig(cfg Config) func(*engineOpts) {
	return func(eo *engineOpts) { eo.cfg = &cfg }
}

func withDB(db persistence.Database) func(*engineOpts) {
	return func(eo *engineOpts) { eo.db = db }
}

func withOptions(opts ...Option) func(*engineOpts) {
	return func(eo *engineOpts) { eo.opts = append(eo.opts, opts...) }
}

func fixtureRoster(t *testing.T) []CompanionConfig {
	t.Helper()
	roster, err := LoadRoster(strings.NewReader(fixtures.RosterYAML))
	require.NoError(t, err)
	return roster.Companions
}

func mustCompanion(t *testing.T, e *Engine, id string) *Companion {
	t.Helper()
	c, ok := e.Companion(id)
	require.True(t, ok, "companion %s", id)
	return c
}

func historyTexts(chat *Chat) []string {
	out := make([]string, len(chat.History))
	for i, m := range chat.History {
		out[i] = m.Text
	}
	return out
}
