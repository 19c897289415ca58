package drama

import (
	"fmt"

	"github.com/BaSui01/drama/prompt"
	"go.uber.org/zap"
)

// prompter turns a companion, its context and a chat history into the
// input of an inference job.
type prompter struct {
	engine    *Engine
	assembler *prompt.Assembler
}

func newPrompter(e *Engine) *prompter {
	return &prompter{engine: e, assembler: prompt.NewAssembler(e.logger)}
}

// build collects the prompt input for self.
func (p *prompter) build(self *Companion, history []ChatMessage, dctx *Context, extra []prompt.Decorator) prompt.Input {
	e := p.engine
	in := prompt.Input{
		BasePrompt: self.Config.BasePrompt,
		Mood:       self.Mood.Prompt,
		Knowledge:  self.Knowledge(e.eval, e.state),
		Slots:      dctx.Slots(),
		Decorators: extra,
		Now:        e.clock(),
		SelfID:     self.ID,
		Username:   e.Username(),
	}
	for _, s := range self.Config.Situations {
		if s.ID == dctx.Situation {
			in.SituationPrompt = s.Prompt
			break
		}
	}
	for _, c := range dctx.Companions {
		if c.IsVisible() && c.ID != self.ID {
			in.Participants = append(in.Participants, c.Config.Name+": "+c.Config.Description)
		}
	}
	for _, m := range history {
		in.History = append(in.History, prompt.Line{
			SpeakerID: m.Companion.ID,
			Name:      m.Companion.Config.Name,
			Human:     m.Companion.Config.Kind == KindUser,
			Shell:     m.Companion.Config.Kind == KindShell,
			Text:      m.Text,
		})
	}
	return in
}

// Input assembles the job input with the given budget and template. In
// chat mode the turn list is sent as is.
func (p *prompter) Input(self *Companion, history []ChatMessage, dctx *Context, extra []prompt.Decorator, cfg prompt.Config, tmpl prompt.Template) (jobInput, error) {
	in := p.build(self, history, dctx, extra)
	if p.engine.cfg.ChatMode {
		return jobInput{Messages: p.assembler.Turns(in, cfg)}, nil
	}
	out, err := p.assembler.Render(in, cfg, tmpl)
	if err != nil {
		p.engine.logger.Warn("cannot render prompt",
			zap.String("companion", self.ID),
			zap.String("template", tmpl.Name),
			zap.Error(err),
		)
		return jobInput{}, fmt.Errorf("drama: render prompt for %s: %w", self.ID, err)
	}
	return jobInput{Prompt: out}, nil
}
