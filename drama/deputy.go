package drama

import (
	"context"
	"strings"

	"github.com/BaSui01/drama/internal/textutil"
	"go.uber.org/zap"
)

const (
	// NotEnoughContext is reported to the application when a selection
	// deputy gets no text to work on.
	NotEnoughContext = "Not enough context"

	// summaryThreshold is in bytes, like the textutil reduction sizes.
	summaryThreshold = 2000
)

// installScope registers the scope handlers of a deputy. Companions without
// a scope get nothing.
func (e *Engine) installScope(c *Companion, scope Scope) {
	switch scope {
	case ScopeScreen, ScopeSome:
		c.RegisterReply(Any(), selectionGate, false)
		c.RegisterReply(Predicate(wantsToSummarise), e.summariseDocument, true)
	case ScopeDocument:
		c.RegisterReply(Predicate(wantsToSummarise), e.summariseDocument, true)
	case ScopeRandomParagraph:
		c.RegisterReply(Any(), e.pickRandomParagraph, true)
	case ScopeLastParagraph:
		c.RegisterReply(Any(), pickText(textutil.LastParagraph), true)
	case ScopeLastSentence:
		c.RegisterReply(Any(), pickText(textutil.LastSentence), true)
	}
}

func wantsToSummarise(dctx *Context, _ *Companion) bool {
	return len(strings.TrimSpace(dctx.Query())) >= summaryThreshold
}

// selectionGate ends the turn when there is no text to work on.
func selectionGate(_ context.Context, _ *Chat, dctx *Context, _, _ *Companion) (Reply, error) {
	if dctx.Query() == "" {
		dctx.Error = NotEnoughContext
		return Reply{Final: true, Context: dctx}, nil
	}
	return Reply{Context: dctx}, nil
}

func pickText(pick func(string) string) ReplyFunc {
	return func(_ context.Context, _ *Chat, dctx *Context, _, _ *Companion) (Reply, error) {
		doc := dctx.Query()
		if doc == "" {
			return Reply{}, nil
		}
		dctx.Text = pick(doc)
		dctx.Paragraph = ""
		dctx.Input = ""
		return Reply{Context: dctx}, nil
	}
}

func (e *Engine) pickRandomParagraph(ctx context.Context, chat *Chat, dctx *Context, self, sender *Companion) (Reply, error) {
	return pickText(func(doc string) string {
		return textutil.RandomParagraph(doc, e.rnd)
	})(ctx, chat, dctx, self, sender)
}

// instructionReply sets the deputy's job, or asks the companion to explain
// itself when the user has not selected enough text.
func instructionReply(_ context.Context, _ *Chat, dctx *Context, self, _ *Companion) (Reply, error) {
	if len(dctx.Query()) < 5 {
		dctx.Job = "Explain your purpose to the user and that the user has to select some text before you can do your job."
		return Reply{Final: true, Context: dctx}, nil
	}
	dctx.Job = self.Config.Job
	return Reply{Final: true, Context: dctx}, nil
}

func passthroughReply(_ context.Context, _ *Chat, dctx *Context, _, _ *Companion) (Reply, error) {
	return Reply{Final: true, Context: dctx}, nil
}

// chatReply runs an inference for self. Decorators of a deputy sender are
// tried before the defaults.
func (e *Engine) chatReply(ctx context.Context, chat *Chat, dctx *Context, self, sender *Companion) (Reply, error) {
	var extra = self.Config.Decorators
	if sender != nil && len(sender.Config.Decorators) > 0 {
		extra = append(append(extra[:0:0], sender.Config.Decorators...), self.Config.Decorators...)
	}
	model := e.modelFor(self)
	input, err := e.prompter.Input(self, chat.History, dctx, extra, model.Prompt, model.Template)
	if err != nil {
		return Reply{}, err
	}

	job := e.newJob(dctx, model, input)
	resp, err := e.RunJob(ctx, job)
	if err != nil {
		return Reply{}, err
	}
	if resp.Text == "" {
		e.logger.Debug("empty inference response",
			zap.String("companion", self.ID),
			zap.String("response_id", resp.ID),
		)
		return Reply{Context: job.Context}, nil
	}
	job.Context.Message = resp.Text
	return Reply{Final: true, Context: job.Context}, nil
}
