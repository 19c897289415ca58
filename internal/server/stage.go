package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/drama/drama"
	"github.com/BaSui01/drama/internal/ctxkeys"
	"go.uber.org/zap"
)

// Frame types sent to clients.
const (
	FrameMessage = "message"
	FrameTurnEnd = "turn_end"
	FrameError   = "error"
)

// ClientFrame is a user message sent by a websocket client.
type ClientFrame struct {
	Chat string `json:"chat"`
	Text string `json:"text"`
}

// Frame is one server-to-client event.
type Frame struct {
	Type      string    `json:"type"`
	Chat      string    `json:"chat,omitempty"`
	Companion string    `json:"companion,omitempty"`
	Name      string    `json:"name,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// turn_end
	Rounds int    `json:"rounds,omitempty"`
	Active string `json:"active,omitempty"`

	Error string `json:"error,omitempty"`
}

// ChatInfo summarises a chat for GET /chats.
type ChatInfo struct {
	ID         string   `json:"id"`
	Situation  string   `json:"situation"`
	Companions []string `json:"companions"`
	Messages   int      `json:"messages"`
	MaxRounds  int      `json:"max_rounds"`
}

// Stage owns the engine for the transports. drama.Engine is not safe for
// concurrent use, so every call holds mu for the whole conversation run.
type Stage struct {
	mu     sync.Mutex
	engine *drama.Engine
	logger *zap.Logger
}

// NewStage wraps engine.
func NewStage(engine *drama.Engine, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{engine: engine, logger: logger.With(zap.String("component", "stage"))}
}

// Swap installs a new engine, e.g. after the roster changed, and returns
// the previous one. Runs in progress finish on the old engine.
func (s *Stage) Swap(engine *drama.Engine) *drama.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.engine
	s.engine = engine
	s.logger.Info("engine replaced", zap.Int("chats", len(engine.Chats())))
	return prev
}

// Chats lists the chats of the current engine.
func (s *Stage) Chats() []ChatInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := s.engine.Chats()
	out := make([]ChatInfo, 0, len(chats))
	for _, ch := range chats {
		ids := make([]string, len(ch.Companions))
		for i, c := range ch.Companions {
			ids[i] = c.ID
		}
		out = append(out, ChatInfo{
			ID:         ch.ID,
			Situation:  ch.Situation,
			Companions: ids,
			Messages:   len(ch.History),
			MaxRounds:  ch.MaxRounds,
		})
	}
	return out
}

// Post runs one user message through chatID. Every appended message,
// the user's included, is passed to emit; the returned frame closes the
// turn. An emit error does not stop the run but is returned afterwards.
func (s *Stage) Post(ctx context.Context, chatID, text string, emit func(Frame) error) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.engine.GetChat(chatID)
	if !ok {
		return Frame{}, fmt.Errorf("%w: %s", drama.ErrChatNotFound, chatID)
	}
	ctx = ctxkeys.WithChatID(ctx, chatID)

	var emitErr error
	result, err := s.engine.Post(ctx, chat, text, func(ch *drama.Chat, msg drama.ChatMessage) {
		if emitErr != nil {
			return
		}
		emitErr = emit(MessageFrame(ch, msg))
	})
	if err != nil {
		return Frame{}, err
	}
	if emitErr != nil {
		return Frame{}, fmt.Errorf("deliver message: %w", emitErr)
	}

	end := Frame{Type: FrameTurnEnd, Chat: chatID, Rounds: result.Rounds}
	if result.Active != nil {
		end.Active = result.Active.ID
	}
	return end, nil
}

// MessageFrame converts a chat message.
func MessageFrame(ch *drama.Chat, msg drama.ChatMessage) Frame {
	f := Frame{Type: FrameMessage, Chat: ch.ID, Text: msg.Text, Timestamp: msg.Timestamp}
	if msg.Companion != nil {
		f.Companion = msg.Companion.ID
		f.Name = msg.Companion.Config.Name
	}
	return f
}

// ErrorFrame reports err for chatID.
func ErrorFrame(chatID string, err error) Frame {
	return Frame{Type: FrameError, Chat: chatID, Error: err.Error()}
}
