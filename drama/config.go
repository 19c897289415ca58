package drama

import (
	"fmt"
	"strings"

	"github.com/BaSui01/drama/prompt"
	"github.com/BaSui01/drama/world"
)

// Kind distinguishes the human, visible actors and invisible helpers.
type Kind string

const (
	KindUser  Kind = "user"
	KindNPC   Kind = "npc"
	KindShell Kind = "shell"
)

// Status is the activity state of a companion.
type Status string

const (
	StatusDisabled   Status = "disabled"
	StatusFree       Status = "free"
	StatusActive     Status = "active"
	StatusAutonomous Status = "autonomous"
	StatusChatOnly   Status = "chat-only"
)

// Scope selects which part of the user's text a deputy works on.
type Scope string

const (
	ScopeNone            Scope = ""
	ScopeDocument        Scope = "document"
	ScopeLastSentence    Scope = "last_sentence"
	ScopeLastParagraph   Scope = "last_paragraph"
	ScopeRandomParagraph Scope = "random_paragraph"
	ScopeScreen          Scope = "screen"
	ScopeSome            Scope = "some"
)

// Category groups mottos.
type Category string

const (
	CategoryGreeting     Category = "greeting"
	CategoryConfirmation Category = "confirmation"
	CategorySignOff      Category = "sign-off"
)

// Operation is the world-state effect of a trigger with an effect.
type Operation string

const (
	OperationSet Operation = "set"
	OperationAdd Operation = "add"
)

// ConditionalLines is a group of canned lines unlocked by a condition.
// A nil condition always holds.
type ConditionalLines struct {
	Category  Category         `yaml:"category,omitempty" json:"category,omitempty"`
	Lines     []string         `yaml:"lines" json:"lines"`
	Condition *world.Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// MoodConfig is one entry of the mood table.
type MoodConfig struct {
	Probability float64 `yaml:"probability" json:"probability"`
	Label       string  `yaml:"label" json:"label"`
	Prompt      string  `yaml:"prompt" json:"prompt"`
}

// SituationConfig overrides the persona for one situation.
type SituationConfig struct {
	ID     string `yaml:"id" json:"id"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// ActionConfig is a task a companion can delegate to a deputy. Scope, when
// set, overrides the deputy's own scope for this action.
type ActionConfig struct {
	ID        string           `yaml:"id" json:"id"`
	Label     string           `yaml:"label,omitempty" json:"label,omitempty"`
	Deputy    string           `yaml:"deputy" json:"deputy"`
	Condition *world.Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Scope     Scope            `yaml:"scope,omitempty" json:"scope,omitempty"`
}

// TriggerRule fires when Condition holds. Without Effect, Action names an
// action id to run. With Effect, Action is an Operation applied to the
// world-state key Effect.Tag, unless Effect.Tag is "event" (raise the flag
// named by Effect.Value) or "action" (run the action named by Effect.Value).
type TriggerRule struct {
	Action    string           `yaml:"action" json:"action"`
	Effect    *world.Condition `yaml:"effect,omitempty" json:"effect,omitempty"`
	Condition world.Condition  `yaml:"condition" json:"condition"`
}

// CompanionConfig is the immutable description of a companion.
type CompanionConfig struct {
	Name        string `yaml:"name" json:"name"`
	Class       string `yaml:"class,omitempty" json:"class,omitempty"`
	Description string `yaml:"description" json:"description"`
	Bio         string `yaml:"bio,omitempty" json:"bio,omitempty"`
	Avatar      string `yaml:"avatar,omitempty" json:"avatar,omitempty"`
	BasePrompt  string `yaml:"base_prompt" json:"base_prompt"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Scope       Scope  `yaml:"scope,omitempty" json:"scope,omitempty"`
	Job         string `yaml:"job,omitempty" json:"job,omitempty"`

	// Temperature overrides the engine model temperature when set.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	// Template names a chat template ("chatml", "mistral") for this companion.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`

	Moods      []MoodConfig       `yaml:"moods,omitempty" json:"moods,omitempty"`
	Situations []SituationConfig  `yaml:"situations,omitempty" json:"situations,omitempty"`
	Knowledge  []ConditionalLines `yaml:"knowledge,omitempty" json:"knowledge,omitempty"`
	Mottos     []ConditionalLines `yaml:"mottos,omitempty" json:"mottos,omitempty"`
	Actions    []ActionConfig     `yaml:"actions,omitempty" json:"actions,omitempty"`
	Triggers   []TriggerRule      `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Decorators []prompt.Decorator `yaml:"decorators,omitempty" json:"decorators,omitempty"`
}

// Validate checks the fields every companion needs.
func (c CompanionConfig) Validate() error {
	if ToID(c.Name) == "" {
		return fmt.Errorf("companion %q: name must contain letters or digits", c.Name)
	}
	switch c.Kind {
	case KindUser, KindNPC, KindShell:
	default:
		return fmt.Errorf("companion %q: unknown kind %q", c.Name, c.Kind)
	}
	switch c.Scope {
	case ScopeNone, ScopeDocument, ScopeLastSentence, ScopeLastParagraph, ScopeRandomParagraph, ScopeScreen, ScopeSome:
	default:
		return fmt.Errorf("companion %q: unknown scope %q", c.Name, c.Scope)
	}
	for _, a := range c.Actions {
		if a.ID == "" || a.Deputy == "" {
			return fmt.Errorf("companion %q: action needs id and deputy", c.Name)
		}
	}
	if c.Template != "" {
		if _, ok := prompt.TemplateByName(c.Template); !ok {
			return fmt.Errorf("companion %q: unknown template %q", c.Name, c.Template)
		}
	}
	return nil
}

// FindAction returns the action with the given id.
func (c CompanionConfig) FindAction(id string) (ActionConfig, bool) {
	if id == "" {
		return ActionConfig{}, false
	}
	for _, a := range c.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ActionConfig{}, false
}

// ToID normalizes a display name: lowercase, whitespace runs become "-",
// anything outside [a-z0-9-] is dropped.
func ToID(name string) string {
	var sb strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !space {
				sb.WriteByte('-')
			}
			space = true
			continue
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			sb.WriteRune(r)
		}
		space = false
	}
	return sb.String()
}
