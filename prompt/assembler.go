package prompt

import (
	"strings"
	"time"

	"github.com/BaSui01/drama/internal/textutil"
	"go.uber.org/zap"
)

const (
	// budgetReserve is kept free for template tokens.
	budgetReserve = 255
	// turnOverhead covers colon, space, two newlines and start/end tokens.
	turnOverhead = 6

	// TimeLayout formats the current-time line.
	TimeLayout = "Mon, Jan 2, 2006, 03:04:05 PM"
)

// Turn is one role/content message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Line is one chat history entry as seen by the assembler.
type Line struct {
	SpeakerID string
	Name      string
	Human     bool
	Shell     bool
	Text      string
}

// Input carries everything needed to assemble one prompt.
type Input struct {
	// BasePrompt is the companion's static persona.
	BasePrompt string
	// SituationPrompt is used when the context carries no persona override.
	SituationPrompt string
	// Mood is the companion's mood line.
	Mood string
	// Knowledge holds the unlocked knowledge lines.
	Knowledge []string
	// Participants lists "Name: description" for the other visible companions.
	Participants []string
	// Slots holds the raw context texts; "" means absent.
	Slots map[Slot]string
	// Decorators are tried before DefaultDecorators.
	Decorators []Decorator
	// Now stamps the current-time line. Zero means time.Now().
	Now time.Time

	History  []Line
	SelfID   string
	Username string
}

func (in Input) slot(s Slot) string { return in.Slots[s] }

// IsAction reports whether the input is an action; actions skip situation,
// time, participants and knowledge.
func (in Input) IsAction() bool { return in.slot(SlotAction) != "" }

// Assembler builds system blocks and trims history to the prompt budget.
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger.With(zap.String("component", "prompt_assembler"))}
}

// System returns the system block for in.
func (a *Assembler) System(in Input, cfg Config) string {
	decorators := WithDefaults(in.Decorators)
	apply := func(s Slot) string { return decorators.Apply(s, in.slot(s)) }

	var situation, now, participants, knowledge string
	if !in.IsAction() {
		situation = in.SituationPrompt
		stamp := in.Now
		if stamp.IsZero() {
			stamp = time.Now()
		}
		now = "It is currently " + stamp.Format(TimeLayout)
		participants = decorators.Apply(SlotCompanionNames, strings.Join(in.Participants, "\n"))
		knowledge = decorators.Apply(SlotKnowledge, strings.Join(in.Knowledge, "\n"))
	}

	persona := apply(SlotPersona)
	if persona == "" {
		persona = situation
	}

	var job string
	if !cfg.JobInChat {
		job = apply(SlotJob)
	}

	input := apply(SlotText)
	if input == "" {
		input = apply(SlotParagraph)
	}
	if input == "" {
		input = decorators.Apply(SlotText, in.slot(SlotInput))
	}

	parts := []string{
		in.BasePrompt,
		persona,
		now,
		participants,
		knowledge,
		in.Mood,
		job,
		input,
		apply(SlotMessage),
		apply(SlotAnswer),
		apply(SlotQuestion),
		apply(SlotQuote),
		apply(SlotChat),
		apply(SlotEpilogue),
	}

	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(p)
	}
	return sb.String()
}

// includesHistory reports whether raw history may be replayed. Answers,
// epilogues, in-system jobs and chat summaries replace it.
func (in Input) includesHistory(cfg Config) bool {
	if in.slot(SlotAnswer) != "" || in.slot(SlotEpilogue) != "" || in.slot(SlotChat) != "" {
		return false
	}
	if in.slot(SlotJob) != "" && !cfg.JobInChat {
		return false
	}
	return len(in.History) > 0
}

// Turns assembles the structured turn list. Other speakers are flattened
// to "user".
func (a *Assembler) Turns(in Input, cfg Config) []Turn {
	return a.assemble(in, cfg, false)
}

// Render assembles the turn list with named roles and renders it with r.
func (a *Assembler) Render(in Input, cfg Config, r Renderer) (string, error) {
	turns := a.assemble(in, cfg, true)
	out, err := r.Render(turns, Vars{Speaker: "assistant"})
	if err != nil {
		return "", err
	}
	a.logger.Debug("prompt rendered", zap.Int("turns", len(turns)), zap.Int("length", len(out)))
	return out, nil
}

func (a *Assembler) assemble(in Input, cfg Config, named bool) []Turn {
	system := a.System(in, cfg)

	var history []Turn
	if in.includesHistory(cfg) {
		history = a.trim(in, cfg, system, named)
	}

	systemRole := "system"
	if !cfg.SystemRoleAllowed {
		systemRole = "user"
	}

	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{Role: systemRole, Content: textutil.Sanitize(system)})
	turns = append(turns, history...)

	if job := in.slot(SlotJob); cfg.JobInChat && job != "" {
		turns = append(turns, Turn{Role: "user", Content: textutil.Sanitize(job)})
	}
	return turns
}

// trim keeps the newest history turns that fit the budget, oldest first.
func (a *Assembler) trim(in Input, cfg Config, system string, named bool) []Turn {
	all := make([]Turn, 0, len(in.History))
	for _, line := range in.History {
		if line.Shell {
			continue
		}
		all = append(all, Turn{Role: in.role(line, named), Content: textutil.Sanitize(line.Text)})
	}

	budget := cfg.MaxPromptLength - len(system) - budgetReserve
	keep := 0
	for i := len(all) - 1; i >= 0; i-- {
		budget -= len(all[i].Content) + len(all[i].Role) + turnOverhead
		if budget < 0 {
			break
		}
		keep++
	}
	if keep < len(all) {
		a.logger.Debug("history trimmed to budget",
			zap.Int("kept", keep),
			zap.Int("dropped", len(all)-keep),
		)
	}
	return all[len(all)-keep:]
}

func (in Input) role(line Line, named bool) string {
	switch {
	case line.Human:
		if named && in.Username != "" {
			return in.Username
		}
		return "user"
	case line.SpeakerID == in.SelfID:
		return "assistant"
	case named:
		return line.Name
	default:
		return "user"
	}
}
