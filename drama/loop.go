package drama

import (
	"context"

	"github.com/BaSui01/drama/internal/ctxkeys"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// MessageFunc is called for every message appended during a run.
type MessageFunc func(chat *Chat, msg ChatMessage)

// RoundResult is the outcome of a conversation run. Active is set when
// control returned to the user.
type RoundResult struct {
	Chat    *Chat
	Last    *Companion
	Active  *Companion
	Context *Context
	// Rounds counts the companions that took a turn.
	Rounds int
}

// RunChat lets the speakers selected by the chat's moderator take up to
// rounds turns, then persists the chat, syncs the counters and runs the
// trigger sweep.
func (e *Engine) RunChat(ctx context.Context, chat *Chat, rounds int, dctx *Context, last *Companion, except []*Companion, onMessage MessageFunc) (RoundResult, error) {
	return e.runChat(ctx, chat, rounds, dctx, last, except, onMessage, 0)
}

func (e *Engine) runChat(ctx context.Context, chat *Chat, rounds int, dctx *Context, last *Companion, except []*Companion, onMessage MessageFunc, depth int) (RoundResult, error) {
	if dctx == nil {
		dctx = e.NewContext(chat)
	}
	if dctx.InteractionID == "" {
		dctx.InteractionID = uuid.NewString()
	}
	ctx = ctxkeys.WithChatID(ctx, chat.ID)
	ctx = ctxkeys.WithInteractionID(ctx, dctx.InteractionID)
	ctx, span := e.tracer.Start(ctx, "drama.run_chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("drama.chat_id", chat.ID),
		attribute.Int("drama.rounds", rounds),
		attribute.Int("drama.trigger_depth", depth),
	)

	// a companion asked a question and the user has answered it; the
	// question stays pending while companions are still talking
	if pending := chat.CurrentContext; pending != nil {
		if msg, ok := chat.LastMessage(); ok && msg.Companion.Config.Kind == KindUser {
			dctx.Action = pending.Action
			dctx.Input = msg.Text
			dctx.Question = ""
			chat.CurrentContext = nil
		}
	}

	result := RoundResult{Chat: chat}
	var stack []*Companion
	if rounds > 0 {
		stack = chat.Moderator.SelectSpeakers(ctx, chat, dctx, last, except, chat.History)
	}

	for len(stack) > 0 && rounds > 0 {
		speaker := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if speaker.Config.Kind == KindUser {
			result.Active = speaker
			break
		}

		speaker.Status = StatusActive
		rounds--
		result.Rounds++
		if dctx.Action != "" {
			e.LogAction(speaker)
		}

		if dctx.Quote == "" {
			next, err := speaker.GenerateReply(ctxkeys.WithCompanionID(ctx, speaker.ID), chat, dctx, last)
			if err != nil {
				speaker.Status = StatusFree
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				e.logger.Warn("reply failed",
					zap.String("chat_id", chat.ID),
					zap.String("companion", speaker.ID),
					zap.Error(err),
				)
				result.Last, result.Context = last, dctx
				return result, err
			}
			dctx = next
		}

		if answer := dctx.VisibleAnswer(speaker); answer != "" {
			msg := chat.AppendMessage(speaker, answer, dctx)
			e.collector.RecordTurn(speaker.ID, string(speaker.Config.Kind))
			if onMessage != nil {
				onMessage(chat, msg)
			}
			dctx.Excerpt = ""
		}

		speaker.Status = StatusFree
		last = speaker

		if dctx.Question != "" {
			chat.CurrentContext = dctx
		}
	}

	result.Last = last
	next, err := e.finishRun(ctx, chat, dctx, onMessage, depth)
	result.Context = next
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// finishRun persists the chat, syncs the counters and sweeps the triggers.
func (e *Engine) finishRun(ctx context.Context, chat *Chat, dctx *Context, onMessage MessageFunc, depth int) (*Context, error) {
	if err := e.persistChat(ctx, chat); err != nil {
		return dctx, err
	}
	if err := e.SyncInteractions(ctx); err != nil {
		return dctx, err
	}
	return e.runTriggers(ctx, dctx, onMessage, depth)
}

// RunConversation runs RunChat until the round budget is spent, control
// returns to the user or a run takes no turn.
func (e *Engine) RunConversation(ctx context.Context, chat *Chat, rounds int, dctx *Context, last *Companion, except []*Companion, onMessage MessageFunc) (RoundResult, error) {
	total := RoundResult{Chat: chat, Last: last, Context: dctx}
	for rounds > 0 {
		res, err := e.RunChat(ctx, chat, rounds, dctx, last, except, onMessage)
		total.Rounds += res.Rounds
		total.Last = res.Last
		total.Active = res.Active
		if res.Context != nil {
			dctx = res.Context
		}
		total.Context = dctx
		if err != nil {
			return total, err
		}
		if res.Active != nil && res.Active.Config.Kind == KindUser {
			return total, nil
		}
		if res.Rounds == 0 {
			return total, nil
		}
		rounds -= res.Rounds
		last = res.Last
	}
	return total, nil
}

// Post appends a user message to chat and lets the companions answer for
// up to chat.MaxRounds turns.
func (e *Engine) Post(ctx context.Context, chat *Chat, text string, onMessage MessageFunc) (RoundResult, error) {
	user := chat.UserCompanion()
	if user == nil {
		user = e.User()
	}
	if user == nil {
		return RoundResult{Chat: chat}, ErrUnknownCompanion
	}
	msg := chat.AppendMessage(user, text, nil)
	e.collector.RecordTurn(user.ID, string(user.Config.Kind))
	if onMessage != nil {
		onMessage(chat, msg)
	}
	return e.RunConversation(ctx, chat, chat.MaxRounds, e.NewContext(chat), user, nil, onMessage)
}
