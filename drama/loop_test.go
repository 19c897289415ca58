package drama

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/drama/persistence"
	"github.com/BaSui01/drama/testutil/mocks"
	"github.com/BaSui01/drama/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_RoundRobinConversation(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithScript("Hi there", "Ahoy", "Bye")
	e, db := newTestEngine(t, backend, fixtureRoster(t))
	chat := e.AddChat("group", "tavern", []string{"anne", "bob", "you"}, 3, SelectRoundRobin)

	var seen []string
	res, err := e.Post(ctx, chat, "Hello everyone", func(_ *Chat, msg ChatMessage) {
		seen = append(seen, msg.Companion.ID+": "+msg.Text)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello everyone", "Hi there", "Ahoy", "Bye"}, historyTexts(chat))
	assert.Equal(t, []string{"you: Hello everyone", "anne: Hi there", "bob: Ahoy", "anne: Bye"}, seen)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, "anne", res.Last.ID)
	assert.Nil(t, res.Active)
	assert.NotEmpty(t, res.Context.InteractionID)
	assert.Equal(t, StatusFree, mustCompanion(t, e, "anne").Status)

	stored, err := db.GetChat(ctx, "group")
	require.NoError(t, err)
	require.Len(t, stored.History, 4)
	assert.Equal(t, "You", stored.History[0].Companion)
	assert.Equal(t, "Anne", stored.History[1].Companion)
	assert.Equal(t, "Bye", stored.History[3].Message)

	entries, err := db.WorldState(ctx)
	require.NoError(t, err)
	state := world.NewState(entries...)
	for key, want := range map[string]float64{
		KeyInteractions:                     4,
		persistence.InteractionsKey("anne"): 2,
		persistence.InteractionsKey("bob"):  1,
		persistence.InteractionsKey("you"):  1,
		KeyInputTokens:                      30,
		KeyOutputTokens:                     15,
	} {
		v, ok := state.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, v.Float(), key)
	}

	prompts, err := db.Prompts(ctx)
	require.NoError(t, err)
	assert.Len(t, prompts, 3)
	assert.Equal(t, "Ahoy", prompts[1].Result)
}

func TestPost_ReturnsControlToUser(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithDefault("Ahoy")
	e, _ := newTestEngine(t, backend, fixtureRoster(t))
	bobChat, _ := e.GetChat("bob_chat")

	res, err := e.Post(ctx, bobChat, "Hello Bob", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	require.NotNil(t, res.Active)
	assert.Equal(t, "you", res.Active.ID)
	assert.Equal(t, []string{"Hello Bob", "Ahoy"}, historyTexts(bobChat))
	assert.Equal(t, 1, backend.CallCount())
}

func TestPost_ReplyError(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithError(errors.New("connection refused"))
	e, _ := newTestEngine(t, backend, fixtureRoster(t))
	bobChat, _ := e.GetChat("bob_chat")

	res, err := e.Post(ctx, bobChat, "Hello Bob", nil)
	require.Error(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, []string{"Hello Bob"}, historyTexts(bobChat))
	assert.Equal(t, StatusFree, mustCompanion(t, e, "bob").Status)
}

func TestRunChat_QuoteSkipsReply(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend()
	e, _ := newTestEngine(t, backend, fixtureRoster(t))
	bobChat, _ := e.GetChat("bob_chat")

	dctx := e.NewContext(bobChat)
	dctx.Recipient = mustCompanion(t, e, "bob")
	dctx.Quote = "Land ho!"
	res, err := e.RunChat(ctx, bobChat, 1, dctx, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, []string{"Land ho!"}, historyTexts(bobChat))
	assert.Zero(t, backend.CallCount())
}

func TestRunConversation_StopsWithoutTurns(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, mocks.NewMockBackend(), fixtureRoster(t))
	bobChat, _ := e.GetChat("bob_chat")
	bob := mustCompanion(t, e, "bob")

	res, err := e.RunConversation(ctx, bobChat, 5, nil, nil, []*Companion{bob, e.User()}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Rounds)
	assert.Empty(t, bobChat.History)
}

func TestRunChat_NoBudgetSkipsSelection(t *testing.T) {
	ctx := context.Background()
	backend := mocks.NewMockBackend().WithActionScript(ActionSelectSpeaker, "Carl should answer").WithDefault("Hmm.")
	e, chat := groupEngine(t, backend)
	chat.AppendMessage(e.User(), "what do you think?", nil)

	res, err := e.RunChat(ctx, chat, 0, nil, e.User(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Rounds)
	assert.Empty(t, backend.CallsWithPreset(ActionSelectSpeaker))
	assert.Len(t, chat.History, 1)

	res, err = e.RunChat(ctx, chat, 1, nil, e.User(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Len(t, backend.CallsWithPreset(ActionSelectSpeaker), 1)
}

const quizAction = "QUIZ"

// quizClass asks a question and echoes the answer on the next turn.
func quizClass(e *Engine, c *Companion) {
	c.RegisterReply(Any(), func(_ context.Context, _ *Chat, dctx *Context, _, _ *Companion) (Reply, error) {
		if dctx.Action == quizAction && dctx.Input != "" {
			dctx.Message = "You answered " + dctx.Input + "."
			return Reply{Final: true, Context: dctx}, nil
		}
		dctx.Action = quizAction
		dctx.Question = "What is two plus two?"
		dctx.Message = dctx.Question
		return Reply{Final: true, Context: dctx}, nil
	}, false)
}

func TestRunChat_PendingQuestion(t *testing.T) {
	ctx := context.Background()
	registry := NewClassRegistry()
	registry.Register("quizmaster", quizClass)

	quiz := npc("Quiz", "Asks questions.")
	quiz.Class = "quizmaster"
	e, _ := newTestEngine(t, mocks.NewMockBackend(), []CompanionConfig{quiz}, withOptions(WithClassRegistry(registry)))
	chat, ok := e.GetChat("quiz_chat")
	require.True(t, ok)

	res, err := e.Post(ctx, chat, "Start", nil)
	require.NoError(t, err)
	assert.Equal(t, "you", res.Active.ID)
	require.NotNil(t, chat.CurrentContext, "the question stays pending until the user answers")
	assert.Equal(t, "What is two plus two?", chat.CurrentContext.Question)

	res, err = e.Post(ctx, chat, "4", nil)
	require.NoError(t, err)
	assert.Nil(t, chat.CurrentContext)
	assert.Equal(t, []string{"Start", "What is two plus two?", "4", "You answered 4."}, historyTexts(chat))
	assert.Equal(t, 1, mustCompanion(t, e, "quiz").Actions)
	assert.Equal(t, "you", res.Active.ID)
}
