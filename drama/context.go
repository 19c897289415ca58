package drama

import (
	"time"

	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/prompt"
)

// Context is the per-turn data passed along the reply pipeline. Empty
// strings mean absent.
type Context struct {
	Persona  string
	Job      string
	Mood     string
	Question string
	Answer   string
	Excerpt  string
	Quote    string
	Message  string
	Text     string
	// Paragraph is the user's current paragraph.
	Paragraph string
	Input     string
	Epilogue  string
	// Chat holds a rendered conversation handed to the moderator.
	Chat           string
	Knowledge      string
	Action         string
	Error          string
	CompanionNames string
	Tool           string

	ConversationID string
	InteractionID  string
	SequenceID     string

	Recipient  *Companion
	Companions []*Companion
	ChatID     string
	Situation  string

	InputTokens  int
	OutputTokens int
	Runtime      time.Duration
	ResponseID   string
}

// VisibleAnswer returns the text shown in the chat: excerpt, else message,
// else quote unless speaker is a shell.
func (c *Context) VisibleAnswer(speaker *Companion) string {
	switch {
	case c.Excerpt != "":
		return c.Excerpt
	case c.Message != "":
		return c.Message
	case c.Quote != "" && (speaker == nil || speaker.Config.Kind != KindShell):
		return c.Quote
	}
	return ""
}

// Query returns the text the turn works on.
func (c *Context) Query() string {
	switch {
	case c.Text != "":
		return c.Text
	case c.Input != "":
		return c.Input
	}
	return c.Paragraph
}

// HasAnswer reports whether an answer, question or quote is set.
func (c *Context) HasAnswer() bool {
	return c.Answer != "" || c.Question != "" || c.Quote != ""
}

// Clone returns a shallow copy.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.Companions != nil {
		out.Companions = append([]*Companion(nil), c.Companions...)
	}
	return &out
}

// FindAction returns the action of recipient matching c.Action.
func (c *Context) FindAction(recipient *Companion) (ActionConfig, bool) {
	if recipient == nil {
		return ActionConfig{}, false
	}
	return recipient.Config.FindAction(c.Action)
}

// AddUsage accumulates the token usage and runtime of resp.
func (c *Context) AddUsage(resp *llm.Response) {
	if resp == nil {
		return
	}
	c.InputTokens += resp.InputTokens
	c.OutputTokens += resp.OutputTokens
	c.Runtime += resp.Duration
	c.ResponseID = resp.ID
}

// Slots returns the prompt slots carried by the context.
func (c *Context) Slots() map[prompt.Slot]string {
	all := map[prompt.Slot]string{
		prompt.SlotPersona:        c.Persona,
		prompt.SlotJob:            c.Job,
		prompt.SlotMood:           c.Mood,
		prompt.SlotQuestion:       c.Question,
		prompt.SlotAnswer:         c.Answer,
		prompt.SlotExcerpt:        c.Excerpt,
		prompt.SlotQuote:          c.Quote,
		prompt.SlotMessage:        c.Message,
		prompt.SlotText:           c.Text,
		prompt.SlotParagraph:      c.Paragraph,
		prompt.SlotInput:          c.Input,
		prompt.SlotEpilogue:       c.Epilogue,
		prompt.SlotChat:           c.Chat,
		prompt.SlotKnowledge:      c.Knowledge,
		prompt.SlotAction:         c.Action,
		prompt.SlotError:          c.Error,
		prompt.SlotCompanionNames: c.CompanionNames,
		prompt.SlotTool:           c.Tool,
		prompt.SlotConversationID: c.ConversationID,
	}
	for k, v := range all {
		if v == "" {
			delete(all, k)
		}
	}
	return all
}

// FindDelegate returns the action of recipient matching c.Action and the
// roster deputy configured for it. There is no delegate once the turn
// has an answer.
func (c *Context) FindDelegate(recipient *Companion, roster []*Companion) (ActionConfig, *Companion) {
	action, ok := c.FindAction(recipient)
	if !ok || c.HasAnswer() {
		return ActionConfig{}, nil
	}
	for _, d := range roster {
		if d.ID == action.Deputy {
			return action, d
		}
	}
	return action, nil
}
