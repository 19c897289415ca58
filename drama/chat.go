package drama

import (
	"strings"
	"time"
)

// SpeakerSelection determines how the next speaker is chosen when no
// recipient or mention decides it.
type SpeakerSelection string

const (
	SelectAuto       SpeakerSelection = "auto"
	SelectRandom     SpeakerSelection = "random"
	SelectRoundRobin SpeakerSelection = "round_robin"
)

// ChatMessage is one history entry. Context is a snapshot of the turn
// context that produced the message.
type ChatMessage struct {
	Companion *Companion
	Text      string
	Timestamp time.Time
	Context   *Context
}

// Chat holds one conversation among companions of an engine.
type Chat struct {
	ID                 string
	Situation          string
	Companions         []*Companion
	MaxRounds          int
	SpeakerSelection   SpeakerSelection
	AllowRepeatSpeaker bool
	History            []ChatMessage
	Moderator          *Moderator

	// CurrentContext is kept while a companion waits for the answer to a
	// question.
	CurrentContext *Context

	engine *Engine
}

// AppendMessage adds a message spoken by c and counts the interaction.
func (ch *Chat) AppendMessage(c *Companion, text string, dctx *Context) ChatMessage {
	msg := ChatMessage{
		Companion: c,
		Text:      text,
		Timestamp: ch.now(),
		Context:   dctx.Clone(),
	}
	ch.History = append(ch.History, msg)
	c.Interactions++
	return msg
}

func (ch *Chat) now() time.Time {
	if ch.engine != nil {
		return ch.engine.clock()
	}
	return time.Now()
}

// LastMessage returns the newest message.
func (ch *Chat) LastMessage() (ChatMessage, bool) {
	if len(ch.History) == 0 {
		return ChatMessage{}, false
	}
	return ch.History[len(ch.History)-1], true
}

// ClearMessages empties the history and drops a pending question.
func (ch *Chat) ClearMessages() {
	ch.History = nil
	ch.CurrentContext = nil
}

// NextCompanion returns the first member of candidates after c in roster
// order, wrapping around. It returns nil when no candidate is in the chat.
func (ch *Chat) NextCompanion(c *Companion, candidates []*Companion) *Companion {
	index := ch.indexOf(c.ID)
	n := len(ch.Companions)
	for i := 1; i <= n; i++ {
		next := ch.Companions[(index+i+n)%n]
		if containsCompanion(candidates, next) {
			return next
		}
	}
	return nil
}

// MentionedCompanions returns the npc members whose id or name occurs in
// text, in roster order.
func (ch *Chat) MentionedCompanions(text string) []*Companion {
	var out []*Companion
	for _, c := range ch.Companions {
		if c.Config.Kind != KindNPC {
			continue
		}
		if strings.Contains(text, c.ID) || strings.Contains(text, c.Config.Name) {
			out = append(out, c)
		}
	}
	return out
}

// UserCompanion returns the member representing the human.
func (ch *Chat) UserCompanion() *Companion {
	for _, c := range ch.Companions {
		if c.Config.Kind == KindUser {
			return c
		}
	}
	return nil
}

// Has reports whether a companion with id takes part in the chat.
func (ch *Chat) Has(id string) bool { return ch.indexOf(id) >= 0 }

func (ch *Chat) indexOf(id string) int {
	for i, c := range ch.Companions {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func containsCompanion(list []*Companion, c *Companion) bool {
	for _, x := range list {
		if x.ID == c.ID {
			return true
		}
	}
	return false
}
