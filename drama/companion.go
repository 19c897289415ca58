package drama

import (
	"context"
	"math/rand"
	"strings"

	"github.com/BaSui01/drama/world"
)

// Reply is the result of one reply function. Final stops the pipeline.
type Reply struct {
	Final   bool
	Context *Context
}

// ReplyFunc handles a turn for self. sender is the previous speaker, if any.
type ReplyFunc func(ctx context.Context, chat *Chat, dctx *Context, self, sender *Companion) (Reply, error)

type replyEntry struct {
	trigger Trigger
	fn      ReplyFunc
}

// Mood is the mood picked for a companion at creation.
type Mood struct {
	Label  string
	Prompt string
}

// Companion is a participant of the drama.
type Companion struct {
	ID     string
	Config CompanionConfig
	Status Status

	Interactions int
	Actions      int
	Mood         Mood

	replies []replyEntry
	rnd     *rand.Rand
}

// NewCompanion creates a companion without reply functions. Use a
// ClassRegistry to install the pipeline of its class.
func NewCompanion(cfg CompanionConfig, rnd *rand.Rand) *Companion {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	return &Companion{
		ID:     ToID(cfg.Name),
		Config: cfg,
		Status: StatusFree,
		rnd:    rnd,
	}
}

// RegisterReply adds fn to the pipeline, in front when prepend is set.
func (c *Companion) RegisterReply(trigger Trigger, fn ReplyFunc, prepend bool) {
	entry := replyEntry{trigger: trigger, fn: fn}
	if prepend {
		c.replies = append([]replyEntry{entry}, c.replies...)
		return
	}
	c.replies = append(c.replies, entry)
}

// Replies returns the number of registered reply functions.
func (c *Companion) Replies() int { return len(c.replies) }

// GenerateReply runs the pipeline. A final reply returns its context, or
// dctx when it carries none.
func (c *Companion) GenerateReply(ctx context.Context, chat *Chat, dctx *Context, sender *Companion) (*Context, error) {
	for _, entry := range c.replies {
		if !entry.trigger.Match(dctx, sender, c.rnd) {
			continue
		}
		reply, err := entry.fn(ctx, chat, dctx, c, sender)
		if err != nil {
			return dctx, err
		}
		if reply.Final {
			if reply.Context != nil {
				return reply.Context, nil
			}
			return dctx, nil
		}
		if reply.Context != nil {
			dctx = reply.Context
		}
	}
	return dctx, nil
}

// IsVisible reports whether the companion shows up in histories and
// participant lists.
func (c *Companion) IsVisible() bool { return c.Config.Kind != KindShell }

// pickMood draws a mood by cumulative probability, lowest first.
func (c *Companion) pickMood() {
	moods := append([]MoodConfig(nil), c.Config.Moods...)
	if len(moods) == 0 {
		return
	}
	for i := 1; i < len(moods); i++ {
		for j := i; j > 0 && moods[j].Probability < moods[j-1].Probability; j-- {
			moods[j], moods[j-1] = moods[j-1], moods[j]
		}
	}
	r := c.rnd.Float64()
	sum := 0.0
	for _, m := range moods {
		sum += m.Probability
		if r < sum {
			c.Mood = Mood{Label: m.Label, Prompt: m.Prompt}
			return
		}
	}
}

// Knowledge returns one random line of every knowledge group whose
// condition holds.
func (c *Companion) Knowledge(eval *world.Evaluator, state world.Reader) []string {
	return c.pickLines(c.Config.Knowledge, "", eval, state)
}

// RandomMotto returns a random motto of category, with {{USERNAME}}
// replaced by username. ok is false when no group is unlocked.
func (c *Companion) RandomMotto(category Category, username string, eval *world.Evaluator, state world.Reader) (string, bool) {
	lines := c.pickLines(c.Config.Mottos, category, eval, state)
	if len(lines) == 0 {
		return "", false
	}
	line := lines[c.rnd.Intn(len(lines))]
	return strings.ReplaceAll(line, "{{USERNAME}}", username), true
}

func (c *Companion) pickLines(groups []ConditionalLines, category Category, eval *world.Evaluator, state world.Reader) []string {
	var out []string
	for _, g := range groups {
		if category != "" && g.Category != category {
			continue
		}
		// a group without a condition is always unlocked
		if len(g.Lines) == 0 || !eval.EvaluateOptional(g.Condition, state) {
			continue
		}
		out = append(out, g.Lines[c.rnd.Intn(len(g.Lines))])
	}
	return out
}
