package drama

import (
	"context"
	"testing"

	"github.com/BaSui01/drama/testutil/mocks"
	"github.com/BaSui01/drama/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// greeterRoster returns Anne with a GREET action handled by a passthrough
// deputy and fired by trigger.
func greeterRoster(trigger TriggerRule) []CompanionConfig {
	anne := npc("Anne", "A kind librarian.")
	anne.Actions = []ActionConfig{{ID: "GREET", Deputy: "greeter"}}
	anne.Triggers = []TriggerRule{trigger}
	return []CompanionConfig{anne, shell("Greeter", ClassPassthrough, ScopeNone)}
}

func TestRunTriggers_EventFiresAction(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithActionScript("GREET", "Welcome back!")
	e, _ := newTestEngine(t, backend, greeterRoster(TriggerRule{Action: "GREET", Condition: world.Event("MET")}))

	out, err := e.RunTriggers(ctx, &Context{}, nil)
	require.NoError(t, err)
	assert.Zero(t, backend.CallCount(), "flag not raised")

	require.NoError(t, e.SetWorldStateEntry(ctx, "MET", world.Bool(true)))
	var messages []string
	out, err = e.RunTriggers(ctx, &Context{}, func(_ *Chat, msg ChatMessage) {
		messages = append(messages, msg.Text)
	})
	require.NoError(t, err)

	assert.Equal(t, "Welcome back!", out.Message)
	assert.Equal(t, "GREET", out.Action)
	assert.Equal(t, []string{"Welcome back!"}, messages)
	anneChat, _ := e.GetChat("anne_chat")
	assert.Equal(t, []string{"Welcome back!"}, historyTexts(anneChat))

	met, _ := e.WorldStateValue("MET")
	assert.False(t, met.Bool(), "the flag is lowered before the action runs")
	require.Len(t, backend.CallsWithPreset("GREET"), 1)
	assert.Equal(t, "anne_chat", backend.LastCall().ChatID)
	assert.Equal(t, 1, mustCompanion(t, e, "anne").Actions)
	assert.Equal(t, 1, mustCompanion(t, e, "greeter").Actions)
}

func TestRunTriggers_ActionEffect(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithDefault("Hello!")
	rule := TriggerRule{
		Effect:    &world.Condition{Tag: world.TagAction, Value: world.Ptr(world.String("GREET"))},
		Condition: world.Event("DOOR"),
	}
	e, _ := newTestEngine(t, backend, greeterRoster(rule))
	require.NoError(t, e.SetWorldStateEntry(ctx, "DOOR", world.Bool(true)))

	out, err := e.RunTriggers(ctx, &Context{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", out.Message)

	door, _ := e.WorldStateValue("DOOR")
	assert.True(t, door.Bool(), "action effects leave the flag raised")
}

func TestRunTriggers_WorldStateEffects(t *testing.T) {
	ctx := context.Background()
	bob := npc("Bob", "A grumpy sailor.")
	bob.Triggers = []TriggerRule{
		{Action: "set", Effect: &world.Condition{Tag: "WEATHER", Value: world.Ptr(world.String("rain"))}, Condition: world.Always()},
		{Action: "add", Effect: &world.Condition{Tag: "GOLD", Value: world.Ptr(world.Number(2))}, Condition: world.Always()},
		{Effect: &world.Condition{Tag: world.TagEvent, Value: world.Ptr(world.String("STORM"))}, Condition: world.Always()},
		{Action: "add", Effect: &world.Condition{Tag: "WEATHER", Value: world.Ptr(world.Number(1))}, Condition: world.Always()},
		{Action: "add", Effect: &world.Condition{Tag: "GOLD", Value: world.Ptr(world.String("lots"))}, Condition: world.Always()},
		{Action: "multiply", Effect: &world.Condition{Tag: "GOLD", Value: world.Ptr(world.Number(3))}, Condition: world.Always()},
	}
	backend := mocks.NewMockBackend()
	e, db := newTestEngine(t, backend, []CompanionConfig{bob})

	_, err := e.RunTriggers(ctx, &Context{}, nil)
	require.NoError(t, err)
	_, err = e.RunTriggers(ctx, &Context{}, nil)
	require.NoError(t, err)

	weather, _ := e.WorldStateValue("WEATHER")
	assert.Equal(t, "rain", weather.Str())
	gold, _ := e.WorldStateValue("GOLD")
	assert.Equal(t, 4.0, gold.Float())
	storm, _ := e.WorldStateValue("STORM")
	assert.True(t, storm.Bool())
	assert.Zero(t, backend.CallCount())

	entries, err := db.WorldState(ctx)
	require.NoError(t, err)
	stored, _ := world.NewState(entries...).Get("GOLD")
	assert.Equal(t, 4.0, stored.Float())
}

func TestRunTriggers_ThresholdCondition(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithDefault("You are rich!")
	rule := TriggerRule{Action: "GREET", Condition: world.Condition{Tag: "GOLD", Min: world.Float(10)}}
	e, _ := newTestEngine(t, backend, greeterRoster(rule))

	require.NoError(t, e.SetWorldStateEntry(ctx, "GOLD", world.Number(9)))
	_, err := e.RunTriggers(ctx, &Context{}, nil)
	require.NoError(t, err)
	assert.Zero(t, backend.CallCount())

	require.NoError(t, e.IncreaseWorldStateEntry(ctx, "GOLD", 1))
	_, err = e.RunTriggers(ctx, &Context{}, nil)
	require.NoError(t, err)
	assert.Positive(t, backend.CallCount())
}

func TestRunTriggers_DepthBudget(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithDefault("Hello again!")
	e, _ := newTestEngine(t, backend, greeterRoster(TriggerRule{Action: "GREET", Condition: world.Always()}))

	_, err := e.RunTriggers(ctx, &Context{}, nil)
	require.NoError(t, err)

	assert.Len(t, backend.CallsWithPreset("GREET"), e.cfg.MaxTriggerDepth)
}

func TestRunTriggers_StopsAtFirstFiredAction(t *testing.T) {
	rules := []TriggerRule{
		{Action: "GREET", Condition: world.Event("ONBOARD")},
		{Action: "add", Effect: &world.Condition{Tag: "AFTER", Value: world.Ptr(world.Number(1))}, Condition: world.Always()},
	}
	roster := func() []CompanionConfig {
		r := greeterRoster(rules[0])
		r[0].Triggers = rules
		return r
	}

	tests := []struct {
		name      string
		depth     int
		wantAfter bool
	}{
		// no nested sweep: only the top level runs and it stops at GREET
		{"top level only", 1, false},
		// the nested sweep of the action chat applies AFTER exactly once
		{"with nested sweep", 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := DefaultConfig()
			cfg.MaxTriggerDepth = tt.depth
			backend := mocks.NewMockBackend().WithActionScript("GREET", "Welcome aboard!")
			e, _ := newTestEngine(t, backend, roster(), withConfig(cfg))
			require.NoError(t, e.SetWorldStateEntry(ctx, "ONBOARD", world.Bool(true)))

			out, err := e.RunTriggers(ctx, &Context{}, nil)
			require.NoError(t, err)
			assert.Equal(t, "GREET", out.Action)
			require.Len(t, backend.CallsWithPreset("GREET"), 1)

			after, ok := e.WorldStateValue("AFTER")
			if !tt.wantAfter {
				assert.False(t, ok, "the sweep returned before the second trigger")
				return
			}
			require.True(t, ok)
			assert.Equal(t, 1.0, after.Float())
		})
	}
}
