package prompt

import "strings"

// Slot names a piece of per-turn context data.
type Slot string

const (
	SlotCompanionNames Slot = "companionNames"
	SlotError          Slot = "error"
	SlotConversationID Slot = "conversationID"

	SlotChat      Slot = "chat"
	SlotKnowledge Slot = "knowledge"
	SlotText      Slot = "text"
	SlotParagraph Slot = "paragraph"
	SlotEpilogue  Slot = "epilogue"
	SlotInput     Slot = "input"
	SlotAction    Slot = "action"

	SlotPersona Slot = "persona"
	SlotJob     Slot = "job"
	SlotMood    Slot = "mood"

	SlotQuestion Slot = "question"
	SlotAnswer   Slot = "answer"
	SlotExcerpt  Slot = "excerpt"
	SlotQuote    Slot = "quote"
	SlotMessage  Slot = "message"

	SlotTool Slot = "tool"
)

// Placeholder is replaced by the slot text when a decorator is applied.
const Placeholder = "{{DATA}}"

// Decorator wraps the text of one slot before it enters the system block.
type Decorator struct {
	Slot        Slot   `json:"type" yaml:"type"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// DefaultDecorators are always available. Slots without a decorator
// (question, answer, message, quote, ...) are left out of the prompt unless
// the caller supplies one.
var DefaultDecorators = []Decorator{
	{Slot: SlotPersona, Replacement: "{{DATA}}"},
	{Slot: SlotText, Replacement: `USER TEXT="{{DATA}}".`},
	{Slot: SlotParagraph, Replacement: `USER PARAGRAPH="{{DATA}}"`},
	{Slot: SlotCompanionNames, Replacement: "OTHER CHAT PARTICIPANTS:\n{{DATA}}"},
	{Slot: SlotJob, Replacement: "{{DATA}}"},
	{Slot: SlotChat, Replacement: "\n{{DATA}}"},
	{Slot: SlotKnowledge, Replacement: "\n{{DATA}}"},
	{Slot: SlotEpilogue, Replacement: "{{DATA}}"},
}

// Decorators is an ordered decorator list; the first match for a slot wins.
type Decorators []Decorator

// WithDefaults returns extra followed by DefaultDecorators, so caller
// decorators take precedence over the defaults.
func WithDefaults(extra []Decorator) Decorators {
	out := make(Decorators, 0, len(extra)+len(DefaultDecorators))
	out = append(out, extra...)
	return append(out, DefaultDecorators...)
}

// Apply decorates text for slot. Empty text or a slot without decorator
// yields "".
func (d Decorators) Apply(slot Slot, text string) string {
	if text == "" {
		return ""
	}
	for _, dec := range d {
		if dec.Slot == slot {
			return strings.Replace(dec.Replacement, Placeholder, text, 1)
		}
	}
	return ""
}
