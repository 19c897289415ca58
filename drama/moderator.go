package drama

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ActionSelectSpeaker marks speaker selection jobs.
const ActionSelectSpeaker = "SELECT_SPEAKER"

const moderatorPrologue = `
You are a moderator in an online chatroom. You are provided with a list of online users with their bios under ## ROLES ##. In addition, you have access to their conversation history under ## CONVERSATION ## where you can find the previous exchanges between different users.

Your task is to read the history in ## CONVERSATION ## and then select which of the ## ROLES ## should speak next. You MUST only return a single name as your response.
`

const moderatorEpilogue = "\n## END OF CONVERSATION ##"

// moderatorHistory is the number of turns shown to the moderator.
const moderatorHistory = 8

// ModeratorConfig is the shell companion that picks speakers.
func ModeratorConfig() CompanionConfig {
	zero := 0.0
	return CompanionConfig{
		Name:        "JeanLuc",
		Class:       ClassDeputy,
		Description: "This is an internal bot for instruction-based inferences.",
		Kind:        KindShell,
		Temperature: &zero,
	}
}

// Moderator selects the speakers of a chat.
type Moderator struct {
	*Companion
	engine *Engine
}

func (e *Engine) newModerator() *Moderator {
	c := NewCompanion(ModeratorConfig(), e.rnd)
	return &Moderator{Companion: c, engine: e}
}

// SelectSpeakers returns the speaker stack for the next turn; the caller
// pops from the end. The first matching rule decides:
//
//  1. a chat of one companion
//  2. the recipient and its delegate
//  3. the recipient
//  4. the only allowed speaker
//  5. companions mentioned in the newest message
//  6. round robin or random selection
//  7. a random pick when there is no history
//  8. an inference, falling back to a random pick
//
// Allowed speakers exclude except, shells and, unless repeats are allowed,
// the last speaker.
func (m *Moderator) SelectSpeakers(ctx context.Context, chat *Chat, dctx *Context, last *Companion, except []*Companion, history []ChatMessage) []*Companion {
	e := m.engine
	stack, rule := m.selectSpeakers(ctx, chat, dctx, last, except, history)
	e.collector.RecordSpeakerSelection(rule)
	e.logger.Debug("speakers selected",
		zap.String("chat_id", chat.ID),
		zap.String("rule", rule),
		zap.Strings("speakers", companionIDs(stack)),
	)
	return stack
}

func (m *Moderator) selectSpeakers(ctx context.Context, chat *Chat, dctx *Context, last *Companion, except []*Companion, history []ChatMessage) ([]*Companion, string) {
	e := m.engine
	if len(chat.Companions) == 1 {
		return []*Companion{chat.Companions[0]}, "single"
	}

	if recipient := dctx.Recipient; recipient != nil {
		if delegate := e.FindDelegate(dctx, recipient); delegate != nil {
			return []*Companion{recipient, delegate}, "delegate"
		}
		return []*Companion{recipient}, "recipient"
	}

	var newest *ChatMessage
	if len(chat.History) > 0 {
		sorted := append([]ChatMessage(nil), chat.History...)
		sort.SliceStable(sorted, func(i, k int) bool { return sorted[i].Timestamp.Before(sorted[k].Timestamp) })
		if last == nil {
			last = sorted[len(sorted)-1].Companion
		}
		newest = &chat.History[len(chat.History)-1]
	}

	var allowed []*Companion
	for _, c := range chat.Companions {
		if containsCompanion(except, c) || c.Config.Kind == KindShell {
			continue
		}
		if !chat.AllowRepeatSpeaker && last != nil && c.ID == last.ID {
			continue
		}
		allowed = append(allowed, c)
	}
	switch len(allowed) {
	case 0:
		return nil, "none"
	case 1:
		return allowed, "only_allowed"
	}

	if newest != nil {
		mentioned := filterAllowed(chat.MentionedCompanions(newest.Text), allowed)
		if len(mentioned) > 0 {
			if last != nil && !containsCompanion(mentioned, last) {
				return append([]*Companion{last}, mentioned...), "mention"
			}
			return mentioned, "mention"
		}
	}

	switch chat.SpeakerSelection {
	case SelectRoundRobin:
		if last != nil {
			if next := chat.NextCompanion(last, npcs(allowed)); next != nil {
				return []*Companion{next}, "round_robin"
			}
		}
	case SelectRandom:
		return []*Companion{m.pick(allowed)}, "random"
	}

	if len(history) == 0 {
		return []*Companion{m.pick(allowed)}, "no_history"
	}

	if picked := m.infer(ctx, chat, allowed, history); len(picked) > 0 {
		return picked, "inference"
	}
	return []*Companion{m.pick(allowed)}, "fallback"
}

func (m *Moderator) pick(list []*Companion) *Companion {
	return list[m.engine.rnd.Intn(len(list))]
}

// infer asks the model who speaks next. The mentioned allowed companions are
// returned in reverse roster order.
func (m *Moderator) infer(ctx context.Context, chat *Chat, allowed []*Companion, history []ChatMessage) []*Companion {
	e := m.engine
	username := e.Username()

	dctx := &Context{
		Persona:   m.prologue(allowed, username),
		Chat:      m.conversation(history, username),
		Action:    ActionSelectSpeaker,
		Epilogue:  moderatorEpilogue,
		ChatID:    chat.ID,
		Situation: chat.Situation,
	}
	model := e.modelFor(m.Companion)
	input, err := e.prompter.Input(m.Companion, nil, dctx, nil, model.Prompt, model.Template)
	if err != nil {
		e.logger.Warn("speaker selection prompt failed", zap.Error(err))
		return nil
	}
	resp, err := e.RunJob(ctx, e.newJob(dctx, model, input))
	if err != nil {
		e.logger.Warn("speaker selection inference failed", zap.String("chat_id", chat.ID), zap.Error(err))
		return nil
	}
	if resp.Text == "" {
		return nil
	}

	picked := filterAllowed(chat.MentionedCompanions(resp.Text), allowed)
	if len(picked) == 0 {
		e.logger.Debug("no speaker in moderator response", zap.String("response", resp.Text))
		return nil
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

func (m *Moderator) prologue(speakers []*Companion, username string) string {
	var roles []string
	for _, c := range speakers {
		if c.Config.Kind == KindNPC {
			roles = append(roles, c.Config.Name+": "+c.Config.Description)
		}
	}
	return moderatorPrologue + "\n## ROLES ##\n\n" +
		strings.Join(roles, "\n") + "\n" +
		username + ": A guest user in the chatroom.\n\n## END OF ROLES ##\n\n## CONVERSATION ##\n"
}

func (m *Moderator) conversation(history []ChatMessage, username string) string {
	var lines []string
	for _, msg := range history {
		if msg.Companion.Config.Kind == KindShell {
			continue
		}
		name := msg.Companion.Config.Name
		if msg.Companion.Config.Kind == KindUser {
			name = username
		}
		lines = append(lines, name+": "+strings.TrimSpace(msg.Text))
	}
	if len(lines) > moderatorHistory {
		lines = lines[len(lines)-moderatorHistory:]
	}
	return strings.Join(lines, "\n")
}

func filterAllowed(list, allowed []*Companion) []*Companion {
	var out []*Companion
	for _, c := range list {
		if containsCompanion(allowed, c) {
			out = append(out, c)
		}
	}
	return out
}

func npcs(list []*Companion) []*Companion {
	var out []*Companion
	for _, c := range list {
		if c.Config.Kind == KindNPC {
			out = append(out, c)
		}
	}
	return out
}

func companionIDs(list []*Companion) []string {
	ids := make([]string, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}
	return ids
}
