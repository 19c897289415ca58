package drama

import (
	"context"
	"strings"

	"github.com/BaSui01/drama/internal/textutil"
	"go.uber.org/zap"
)

const (
	// ActionSummariseDocument marks summarisation jobs.
	ActionSummariseDocument = "SUMMARISE_DOCUMENT"

	summaryJob = "Read the following document and reply with a one page summary."
)

// summariseDocument replaces a long query with its summary. Sizes are
// measured in bytes. Documents above the reduction threshold are cut to three windows first; documents larger
// than one window go to the large context model. A failed inference ends
// the turn.
func (e *Engine) summariseDocument(ctx context.Context, _ *Chat, dctx *Context, self, _ *Companion) (Reply, error) {
	doc := dctx.Query()
	if doc == "" {
		return Reply{}, nil
	}

	trimmed := textutil.CleanText(strings.TrimSpace(doc))
	if len(trimmed) < summaryThreshold {
		return Reply{Context: dctx}, nil
	}
	if size := len(trimmed); size > textutil.ReduceThreshold {
		trimmed = textutil.ReduceDocument(trimmed)
		e.logger.Debug("document reduced before summary",
			zap.Int("from", size),
			zap.Int("to", len(trimmed)),
		)
	}

	tmp := &Context{
		Job:           summaryJob,
		Action:        ActionSummariseDocument,
		ChatID:        dctx.ChatID,
		Situation:     dctx.Situation,
		InteractionID: dctx.InteractionID,
	}
	in := tmp.Clone()
	in.Input = trimmed

	model := e.modelFor(self)
	if len(trimmed) > textutil.WindowSize {
		model = e.cfg.LargeContextModel.Clone()
		e.logger.Debug("using large context model", zap.String("model", model.Model))
	}

	input, err := e.prompter.Input(self, nil, in, nil, e.cfg.LargeContextModel.Prompt, model.Template)
	if err != nil {
		e.logger.Error("summary prompt failed", zap.String("deputy", self.ID), zap.Error(err))
		return Reply{Final: true}, nil
	}
	resp, err := e.RunJob(ctx, e.newJob(tmp, model, input))
	if err != nil {
		e.logger.Error("summary failed", zap.String("deputy", self.ID), zap.Error(err))
		return Reply{Final: true}, nil
	}

	dctx.AddUsage(resp)
	dctx.Text = resp.Text
	dctx.Paragraph = ""
	dctx.Input = ""
	return Reply{Context: dctx}, nil
}
