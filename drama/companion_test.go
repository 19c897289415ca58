package drama

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Anne", "anne"},
		{"Anne Smith", "anne-smith"},
		{"  Dr.  Who! ", "dr-who"},
		{"R2 D2", "r2-d2"},
		{"Ärger", "rger"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToID(tt.name))
		})
	}
}

func TestTriggers(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	bob := NewCompanion(npc("Bob", "sailor"), rnd)
	anne := NewCompanion(npc("Anne", "librarian"), rnd)
	dctx := &Context{Action: "SUMMARY"}

	tests := []struct {
		name    string
		trigger Trigger
		sender  *Companion
		want    bool
	}{
		{"sender absent without sender", SenderAbsent(), nil, true},
		{"sender absent with sender", SenderAbsent(), bob, false},
		{"any", Any(), nil, true},
		{"star name", Name("*"), bob, true},
		{"action name", Name("SUMMARY"), nil, true},
		{"sender id in name", Name("bob,carl"), bob, true},
		{"sender id equals name", Name("bob"), bob, true},
		{"sender id after others", Name("carl,bob"), bob, true},
		{"other name", Name("carl"), bob, false},
		{"companion ref", CompanionRef(bob), bob, true},
		{"companion ref other", CompanionRef(bob), anne, false},
		{"companion ref nil", CompanionRef(bob), nil, false},
		{"predicate", Predicate(func(d *Context, s *Companion) bool { return d.Action == "SUMMARY" }), nil, true},
		{"chance zero", Chance(0), nil, false},
		{"chance one", Chance(1), nil, true},
		{"any of", AnyOf(Name("carl"), CompanionRef(bob)), bob, true},
		{"any of none", AnyOf(Name("carl"), Chance(0)), bob, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trigger.Match(dctx, tt.sender, rnd))
		})
	}
}

func TestAnyOf_EvaluatesAllElements(t *testing.T) {
	calls := 0
	count := Predicate(func(*Context, *Companion) bool { calls++; return true })
	assert.True(t, AnyOf(count, count, count).Match(&Context{}, nil, nil))
	assert.Equal(t, 3, calls)
}

func TestGenerateReply_Pipeline(t *testing.T) {
	ctx := context.Background()
	c := NewCompanion(npc("Anne", "librarian"), nil)
	var order []string
	step := func(name string, reply Reply) ReplyFunc {
		return func(_ context.Context, _ *Chat, dctx *Context, _, _ *Companion) (Reply, error) {
			order = append(order, name)
			return reply, nil
		}
	}

	replaced := &Context{Text: "replaced"}
	c.RegisterReply(Any(), step("second", Reply{Context: replaced}), false)
	c.RegisterReply(Any(), step("first", Reply{}), true)
	c.RegisterReply(Chance(0), step("skipped", Reply{Final: true}), false)
	c.RegisterReply(Any(), step("final", Reply{Final: true}), false)
	c.RegisterReply(Any(), step("never", Reply{}), false)

	out, err := c.GenerateReply(ctx, nil, &Context{Text: "in"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "final"}, order)
	assert.Same(t, replaced, out, "final without context returns the current context")
	assert.Equal(t, 5, c.Replies())
}

func TestGenerateReply_FinalContextAndErrors(t *testing.T) {
	ctx := context.Background()
	in := &Context{Text: "in"}

	c := NewCompanion(npc("Anne", "librarian"), nil)
	assert.Same(t, in, mustReply(t, c, in), "empty pipeline returns the input")

	result := &Context{Message: "done"}
	c.RegisterReply(Any(), func(context.Context, *Chat, *Context, *Companion, *Companion) (Reply, error) {
		return Reply{Final: true, Context: result}, nil
	}, false)
	assert.Same(t, result, mustReply(t, c, in))

	failing := NewCompanion(npc("Bob", "sailor"), nil)
	boom := &llm.InferenceError{Reason: llm.ReasonRequestFailed, Err: errors.New("boom")}
	failing.RegisterReply(Any(), func(context.Context, *Chat, *Context, *Companion, *Companion) (Reply, error) {
		return Reply{}, boom
	}, false)
	_, err := failing.GenerateReply(ctx, nil, in, nil)
	var inferr *llm.InferenceError
	require.ErrorAs(t, err, &inferr)
	assert.Equal(t, llm.ReasonRequestFailed, inferr.Reason)
}

func mustReply(t *testing.T, c *Companion, in *Context) *Context {
	t.Helper()
	out, err := c.GenerateReply(context.Background(), nil, in, nil)
	require.NoError(t, err)
	return out
}

func TestCompanion_MoodByCumulativeProbability(t *testing.T) {
	cfg := npc("Anne", "librarian")
	cfg.Moods = []MoodConfig{
		{Probability: 0.7, Label: "calm", Prompt: "You are calm."},
		{Probability: 0.3, Label: "grumpy", Prompt: "You are grumpy."},
	}
	seen := map[string]int{}
	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		c := NewCompanion(cfg, rnd)
		c.pickMood()
		seen[c.Mood.Label]++
	}
	assert.Len(t, seen, 2)
	assert.Greater(t, seen["calm"], seen["grumpy"])

	none := NewCompanion(npc("Bob", "sailor"), rnd)
	none.pickMood()
	assert.Equal(t, Mood{}, none.Mood)
}

func TestCompanion_KnowledgeAndMottos(t *testing.T) {
	cfg := npc("Anne", "librarian")
	secret := world.Event("SECRET")
	cfg.Knowledge = []ConditionalLines{
		{Lines: []string{"Anne likes tea."}},
		{Lines: []string{"Anne hides a key."}, Condition: &secret},
	}
	cfg.Mottos = []ConditionalLines{
		{Category: CategoryGreeting, Lines: []string{"Hello {{USERNAME}}!"}},
		{Category: CategorySignOff, Lines: []string{"Bye."}, Condition: &secret},
	}
	c := NewCompanion(cfg, nil)
	eval := world.NewEvaluator(nil)
	state := world.NewState()

	assert.Equal(t, []string{"Anne likes tea."}, c.Knowledge(eval, state))
	motto, ok := c.RandomMotto(CategoryGreeting, "Kim", eval, state)
	require.True(t, ok)
	assert.Equal(t, "Hello Kim!", motto)
	_, ok = c.RandomMotto(CategorySignOff, "Kim", eval, state)
	assert.False(t, ok)

	state.Set("SECRET", world.Bool(true))
	assert.Equal(t, []string{"Anne likes tea.", "Anne hides a key."}, c.Knowledge(eval, state))
	motto, ok = c.RandomMotto(CategorySignOff, "Kim", eval, state)
	require.True(t, ok)
	assert.Equal(t, "Bye.", motto)
}

func TestCompanion_LinesWithoutCondition(t *testing.T) {
	locked := world.Condition{Tag: "GOLD", Min: world.Float(10)}
	cfg := npc("Bob", "sailor")
	cfg.Knowledge = []ConditionalLines{
		{Lines: []string{"Bob owns a boat."}},
		{Lines: []string{"Bob is rich."}, Condition: &locked},
		{Lines: nil},
	}
	cfg.Mottos = []ConditionalLines{{Category: CategoryGreeting, Lines: []string{"Ahoy."}}}
	c := NewCompanion(cfg, nil)
	eval := world.NewEvaluator(nil)

	for _, state := range []*world.State{world.NewState(), world.NewState(world.Entry{Key: "GOLD", Value: world.Number(3)})} {
		assert.Equal(t, []string{"Bob owns a boat."}, c.Knowledge(eval, state))
		motto, ok := c.RandomMotto(CategoryGreeting, "Kim", eval, state)
		require.True(t, ok)
		assert.Equal(t, "Ahoy.", motto)
	}
}

func TestContext_Accessors(t *testing.T) {
	user := NewCompanion(CompanionConfig{Name: "You", Kind: KindUser}, nil)
	deputy := NewCompanion(shell("Reader", ClassDeputy, ScopeNone), nil)

	dctx := &Context{Quote: "q"}
	assert.Equal(t, "q", dctx.VisibleAnswer(user))
	assert.Equal(t, "", dctx.VisibleAnswer(deputy), "shells never post quotes")
	dctx.Message = "m"
	assert.Equal(t, "m", dctx.VisibleAnswer(deputy))
	dctx.Excerpt = "e"
	assert.Equal(t, "e", dctx.VisibleAnswer(deputy))

	assert.Equal(t, "", (&Context{}).Query())
	assert.Equal(t, "p", (&Context{Paragraph: "p"}).Query())
	assert.Equal(t, "i", (&Context{Paragraph: "p", Input: "i"}).Query())
	assert.Equal(t, "t", (&Context{Paragraph: "p", Input: "i", Text: "t"}).Query())

	assert.False(t, (&Context{Message: "m"}).HasAnswer())
	assert.True(t, (&Context{Question: "?"}).HasAnswer())
	assert.True(t, (&Context{Answer: "a"}).HasAnswer())

	dctx.AddUsage(&llm.Response{ID: "r1", InputTokens: 3, OutputTokens: 2})
	dctx.AddUsage(&llm.Response{ID: "r2", InputTokens: 4, OutputTokens: 1})
	assert.Equal(t, 7, dctx.InputTokens)
	assert.Equal(t, 3, dctx.OutputTokens)
	assert.Equal(t, "r2", dctx.ResponseID)

	clone := dctx.Clone()
	clone.Message = "changed"
	assert.Equal(t, "m", dctx.Message)

	slots := (&Context{Job: "j", Action: "A"}).Slots()
	assert.Len(t, slots, 2)
}

func TestCompanionConfig_Validate(t *testing.T) {
	valid := npc("Anne", "librarian")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*CompanionConfig)
	}{
		{"empty name", func(c *CompanionConfig) { c.Name = "!!" }},
		{"unknown kind", func(c *CompanionConfig) { c.Kind = "robot" }},
		{"unknown scope", func(c *CompanionConfig) { c.Scope = "everything" }},
		{"action without deputy", func(c *CompanionConfig) { c.Actions = []ActionConfig{{ID: "X"}} }},
		{"unknown template", func(c *CompanionConfig) { c.Template = "jinja" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
