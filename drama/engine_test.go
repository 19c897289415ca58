package drama

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/persistence"
	"github.com/BaSui01/drama/testutil/mocks"
	"github.com/BaSui01/drama/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BuildsCompanionsAndChats(t *testing.T) {
	e, db := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))

	assert.Equal(t, []string{"anne", "bob", "reader", "you"}, companionIDs(e.Companions()))
	require.NotNil(t, e.User())
	assert.Equal(t, "you", e.User().ID)

	require.Len(t, e.Chats(), 2)
	anneChat, ok := e.GetChat("anne_chat")
	require.True(t, ok)
	assert.Equal(t, []string{"anne", "you", "reader"}, companionIDs(anneChat.Companions))
	assert.Equal(t, 8, anneChat.MaxRounds)
	assert.Equal(t, SelectRoundRobin, anneChat.SpeakerSelection)
	assert.Equal(t, "fireplace", anneChat.Situation)
	require.NotNil(t, anneChat.Moderator)

	bobChat, ok := e.CompanionChat(mustCompanion(t, e, "bob"))
	require.True(t, ok)
	assert.Equal(t, []string{"bob", "you"}, companionIDs(bobChat.Companions))

	assert.Equal(t, "happy", mustCompanion(t, e, "anne").Mood.Label)
	assert.Equal(t, Mood{}, mustCompanion(t, e, "bob").Mood)

	for _, id := range []string{"anne", "bob", "reader", "you"} {
		v, ok := e.WorldStateValue(persistence.InteractionsKey(id))
		require.True(t, ok, id)
		assert.Equal(t, 0.0, v.Float())
	}
	entries, err := db.WorldState(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestNew_KeepsConfiguredUser(t *testing.T) {
	user := CompanionConfig{Name: "Kim", Kind: KindUser}
	e, _ := newTestEngine(t, mocks.NewMockBackend(), []CompanionConfig{npc("Anne", "librarian"), user})
	assert.Equal(t, []string{"anne", "kim"}, companionIDs(e.Companions()))
	assert.Equal(t, "kim", e.User().ID)
}

func TestNew_RestoresCounters(t *testing.T) {
	ctx := context.Background()
	db := persistence.NewMemoryStore()
	require.NoError(t, db.SetWorldStateEntry(ctx, persistence.InteractionsKey("anne"), world.Number(3)))
	require.NoError(t, db.SetWorldStateEntry(ctx, persistence.ActionsKey("anne"), world.Number(2)))

	e, _ := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t), withDB(db))
	anne := mustCompanion(t, e, "anne")
	assert.Equal(t, 3, anne.Interactions)
	assert.Equal(t, 2, anne.Actions)
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend()

	_, err := New(ctx, DefaultConfig(), []CompanionConfig{npc("Anne", "a"), npc("anne", "b")}, backend, nil)
	assert.ErrorIs(t, err, ErrDuplicateCompanion)

	wizard := npc("Merlin", "wizard")
	wizard.Class = "wizard"
	_, err = New(ctx, DefaultConfig(), []CompanionConfig{wizard}, backend, nil)
	assert.ErrorIs(t, err, ErrUnknownClass)

	_, err = New(ctx, DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.TriggerRounds = 0
	_, err = New(ctx, cfg, nil, backend, nil)
	assert.Error(t, err)
}

func TestEngine_WorldState(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))

	require.NoError(t, e.SetWorldStateEntry(ctx, "MOOD", world.String("calm")))
	require.NoError(t, e.IncreaseWorldStateEntry(ctx, "GOLD", 2))
	require.NoError(t, e.IncreaseWorldStateEntry(ctx, "GOLD", 3))

	v, ok := e.WorldStateValue("GOLD")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Float())

	entries, err := db.WorldState(ctx)
	require.NoError(t, err)
	stored := world.NewState(entries...)
	v, ok = stored.Get("GOLD")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Float())

	err = e.IncreaseWorldStateEntry(ctx, "MOOD", 1)
	assert.ErrorIs(t, err, world.ErrNotNumeric)
	v, _ = e.WorldStateValue("MOOD")
	assert.Equal(t, "calm", v.Str())
}

func TestEngine_UsernameAndMotto(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))
	anne := mustCompanion(t, e, "anne")

	assert.Equal(t, "user", e.Username())
	motto, ok := e.Motto(anne, CategoryGreeting)
	require.True(t, ok)
	assert.Equal(t, "Hello user!", motto)

	require.NoError(t, e.SetWorldStateEntry(ctx, KeyUsername, world.String("Kim")))
	motto, ok = e.Motto(anne, CategoryGreeting)
	require.True(t, ok)
	assert.Equal(t, "Hello Kim!", motto)

	_, ok = e.Motto(mustCompanion(t, e, "bob"), CategoryGreeting)
	assert.False(t, ok)
}

func TestEngine_ActiveActions(t *testing.T) {
	ctx := context.Background()
	roster := fixtureRoster(t)
	locked := world.Event("LIBRARY_OPEN")
	roster[1].Actions = []ActionConfig{{ID: "SHANTY", Label: "Sing", Deputy: "reader", Condition: &locked}}

	e, _ := newTestEngine(t, mocks.NewMockBackend(), roster)
	active := e.ActiveActions()
	require.Len(t, active, 1, "unlabelled and locked actions are hidden")
	assert.Equal(t, "anne", active[0].Companion.ID)
	assert.Equal(t, "SUMMARY", active[0].Action.ID)

	require.NoError(t, e.SetWorldStateEntry(ctx, "LIBRARY_OPEN", world.Bool(true)))
	active = e.ActiveActions()
	require.Len(t, active, 2)
	assert.Equal(t, "SHANTY", active[1].Action.ID)
}

func TestEngine_FindDelegate(t *testing.T) {
	e, _ := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))
	anne := mustCompanion(t, e, "anne")
	reader := mustCompanion(t, e, "reader")

	assert.Same(t, reader, e.FindDelegate(&Context{Action: "SUMMARY"}, anne))
	assert.Nil(t, e.FindDelegate(&Context{Action: "SUMMARY", Answer: "done"}, anne))
	assert.Nil(t, e.FindDelegate(&Context{Action: "UNKNOWN"}, anne))
	assert.Nil(t, e.FindDelegate(&Context{Action: "SUMMARY"}, mustCompanion(t, e, "bob")))

	variant := e.FindDelegate(&Context{Action: "LAST_WORDS"}, anne)
	require.NotNil(t, variant)
	assert.NotSame(t, reader, variant)
	assert.Equal(t, "reader", variant.ID)
	assert.Equal(t, ScopeLastSentence, variant.Config.Scope)
	assert.Equal(t, ScopeDocument, reader.Config.Scope)
	assert.Same(t, variant, e.FindDelegate(&Context{Action: "LAST_WORDS"}, anne), "variants are cached")
}

func TestEngine_Jobs(t *testing.T) {
	e, _ := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))

	first := e.PushJob(&Context{ChatID: "a"}, nil)
	second := e.PushJob(&Context{ChatID: "b"}, nil)
	assert.Equal(t, first.ID, first.Payload.ID)
	assert.Equal(t, e.cfg.Model.Model, first.Payload.ModelConfig.Model)

	jobs := e.JobsByStatus(JobNew)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID, "newest first")

	assert.True(t, e.SetJobStatus(first.ID, JobScheduled))
	assert.False(t, e.SetJobStatus("missing", JobScheduled))
	assert.Len(t, e.JobsByStatus(JobNew), 1)
	assert.Len(t, e.JobsByStatus(JobScheduled), 1)

	e.RemoveJob(first.ID)
	e.RemoveJob(second.ID)
	assert.Empty(t, e.JobsByStatus(JobNew))
	assert.Empty(t, e.JobsByStatus(JobScheduled))
}

func TestEngine_RunJob(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithScript("Hello there").WithTokenUsage(7, 3)
	e, db := newTestEngine(t, backend, fixtureRoster(t))

	dctx := &Context{Action: "GREET", ChatID: "anne_chat", Situation: "fireplace", InteractionID: "i-1"}
	job := e.PushJob(dctx, &llm.Job{Prompt: "Say hi", ModelConfig: e.cfg.Model.Clone()})

	resp, err := e.RunJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Text)

	call := backend.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, job.ID, call.ID)
	assert.Equal(t, "GREET", call.Preset)
	assert.Equal(t, "anne_chat", call.ChatID)
	assert.Equal(t, "fireplace", call.SituationID)
	assert.Equal(t, "i-1", call.InteractionID)

	assert.Equal(t, 7, dctx.InputTokens)
	assert.Equal(t, 3, dctx.OutputTokens)
	assert.Equal(t, "mock-1", dctx.ResponseID)
	in, _ := e.WorldStateValue(KeyInputTokens)
	out, _ := e.WorldStateValue(KeyOutputTokens)
	assert.Equal(t, 7.0, in.Float())
	assert.Equal(t, 3.0, out.Float())
	assert.Empty(t, e.JobsByStatus(JobDone), "finished jobs leave the queue")

	prompts, err := db.Prompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "Say hi", prompts[0].Prompt)
	assert.Equal(t, "Hello there", prompts[0].Result)
	assert.Contains(t, prompts[0].Config, `"model":"teknium/openhermes-2.5-mistral-7b"`)
}

func TestEngine_RunJobFailure(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithError(errors.New("backend down"))
	e, db := newTestEngine(t, backend, fixtureRoster(t))

	dctx := &Context{}
	_, err := e.RunJob(ctx, e.PushJob(dctx, &llm.Job{Prompt: "x"}))
	var inferr *llm.InferenceError
	require.ErrorAs(t, err, &inferr)
	assert.Equal(t, llm.ReasonRequestFailed, inferr.Reason)

	assert.Empty(t, e.JobsByStatus(JobRunning))
	assert.Zero(t, dctx.InputTokens)
	_, ok := e.WorldStateValue(KeyInputTokens)
	assert.False(t, ok)
	prompts, err := db.Prompts(ctx)
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestEngine_AddChat(t *testing.T) {
	e, _ := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))

	group := e.AddChat("group", "tavern", []string{"you", "bob", "anne", "reader"}, 4, SelectRandom)
	assert.Equal(t, []string{"anne", "bob", "you", "reader"}, companionIDs(group.Companions),
		"roster order, shells only as deputies")
	assert.Len(t, e.Chats(), 3)

	same := e.AddChat("group", "ignored", []string{"bob"}, 2, SelectAuto)
	assert.Same(t, group, same)
	assert.Equal(t, []string{"bob"}, companionIDs(same.Companions))
	assert.Equal(t, 2, same.MaxRounds)
	assert.Equal(t, SelectAuto, same.SpeakerSelection)
	assert.Equal(t, "tavern", same.Situation)
	assert.Len(t, e.Chats(), 3)
}

func TestEngine_LoadChats(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))

	records := []persistence.ChatRecord{{
		ID: "anne_chat",
		History: []persistence.HistoryRecord{
			{Companion: "You", Message: "Hi Anne", Timestamp: testEpoch},
			{Companion: "Ghost", Message: "Boo", Timestamp: testEpoch},
			{Companion: "anne", Message: "Hello!", Timestamp: testEpoch},
		},
	}}
	require.NoError(t, e.LoadChats(ctx, records))

	anneChat, _ := e.GetChat("anne_chat")
	assert.Equal(t, []string{"Hi Anne", "Hello!"}, historyTexts(anneChat))
	assert.Equal(t, "you", anneChat.History[0].Companion.ID)
	stored, err := db.GetChat(ctx, "anne_chat")
	require.NoError(t, err)
	assert.Len(t, stored.History, 3)

	require.NoError(t, db.WriteChat(ctx, "bob_chat", []persistence.HistoryRecord{{Companion: "Bob", Message: "Ahoy"}}))
	require.NoError(t, e.LoadChats(ctx, nil))
	bobChat, _ := e.GetChat("bob_chat")
	assert.Equal(t, []string{"Ahoy"}, historyTexts(bobChat))
	assert.Equal(t, []string{"Hi Anne", "Hello!"}, historyTexts(anneChat), "reloaded from the store")
}

func TestEngine_DeleteAndResetChat(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))
	anne := mustCompanion(t, e, "anne")

	anneChat, _ := e.GetChat("anne_chat")
	anneChat.AppendMessage(anne, "Hello", nil)
	anneChat.CurrentContext = &Context{Question: "Tea?"}
	require.NoError(t, e.persistChat(ctx, anneChat))

	require.NoError(t, e.ResetChat(ctx, "anne_chat"))
	assert.Empty(t, anneChat.History)
	assert.Nil(t, anneChat.CurrentContext)
	stored, err := db.GetChat(ctx, "anne_chat")
	require.NoError(t, err)
	assert.Empty(t, stored.History)

	assert.ErrorIs(t, e.ResetChat(ctx, "missing"), ErrChatNotFound)

	require.NoError(t, e.DeleteChat(ctx, "anne_chat"))
	_, ok := e.GetChat("anne_chat")
	assert.False(t, ok)
	_, err = db.GetChat(ctx, "anne_chat")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestEngine_Reset(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))

	require.NoError(t, e.SetWorldStateEntry(ctx, "GOLD", world.Number(9)))
	e.AddChat("group", "tavern", []string{"anne", "bob", "you"}, 4, SelectAuto)
	mustCompanion(t, e, "anne").Interactions = 4
	e.PushJob(nil, nil)

	require.NoError(t, e.Reset(ctx))

	_, ok := e.WorldStateValue("GOLD")
	assert.False(t, ok)
	assert.Len(t, e.Chats(), 2)
	assert.Zero(t, mustCompanion(t, e, "anne").Interactions)
	assert.Empty(t, e.JobsByStatus(JobNew))

	entries, err := db.WorldState(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 8, "only the seeded counters remain")
}

func TestEngine_SyncInteractions(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))

	e.LogInteraction(mustCompanion(t, e, "anne"))
	e.LogInteraction(mustCompanion(t, e, "bob"))
	e.LogAction(&Companion{ID: "reader"})
	e.LogInteraction(&Companion{ID: "ghost"})
	require.NoError(t, e.SyncInteractions(ctx))

	entries, err := db.WorldState(ctx)
	require.NoError(t, err)
	stored := world.NewState(entries...)
	total, _ := stored.Get(KeyInteractions)
	assert.Equal(t, 2.0, total.Float())
	actions, _ := stored.Get(persistence.ActionsKey("reader"))
	assert.Equal(t, 1.0, actions.Float())
}

func TestEngine_ChatModeSendsMessages(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ChatMode = true
	backend := mocks.NewMockBackend().WithDefault("Ahoy")
	e, _ := newTestEngine(t, backend, fixtureRoster(t), withConfig(cfg))

	bobChat, _ := e.GetChat("bob_chat")
	_, err := e.Post(ctx, bobChat, "Hello Bob", nil)
	require.NoError(t, err)

	call := backend.LastCall()
	require.NotNil(t, call)
	assert.Empty(t, call.Prompt)
	require.NotEmpty(t, call.Messages)
	assert.Equal(t, "system", call.Messages[0].Role)
	assert.Contains(t, call.Messages[0].Content, "You are Bob.")
}
