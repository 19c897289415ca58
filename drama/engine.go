package drama

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/BaSui01/drama/internal/metrics"
	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/persistence"
	"github.com/BaSui01/drama/prompt"
	"github.com/BaSui01/drama/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/drama/drama"

// World-state keys maintained by the engine.
const (
	KeyInteractions = "COMPANION_INTERACTIONS"
	KeyInputTokens  = "INPUT_TOKENS"
	KeyOutputTokens = "OUTPUT_TOKENS"
	KeyUsername     = "USERNAME"
)

var (
	ErrUnknownCompanion   = errors.New("drama: unknown companion")
	ErrUnknownClass       = errors.New("drama: unknown companion class")
	ErrChatNotFound       = errors.New("drama: chat not found")
	ErrDuplicateCompanion = errors.New("drama: duplicate companion id")
)

// Config holds the engine settings.
type Config struct {
	// DefaultSituation is the situation of the companion chats.
	DefaultSituation string `yaml:"default_situation" json:"default_situation" env:"DEFAULT_SITUATION"`
	// ChatMode sends structured messages instead of rendered prompts.
	ChatMode bool `yaml:"chat_mode" json:"chat_mode" env:"CHAT_MODE"`
	// TriggerRounds is the round budget of a chat started by a trigger.
	TriggerRounds int `yaml:"trigger_rounds" json:"trigger_rounds" env:"TRIGGER_ROUNDS"`
	// MaxTriggerDepth bounds nested trigger sweeps.
	MaxTriggerDepth int `yaml:"max_trigger_depth" json:"max_trigger_depth" env:"MAX_TRIGGER_DEPTH"`

	Model             llm.ModelConfig `yaml:"model" json:"model" env:"MODEL"`
	LargeContextModel llm.ModelConfig `yaml:"large_context_model" json:"large_context_model" env:"LARGE_CONTEXT_MODEL"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSituation:  "fireplace",
		TriggerRounds:     5,
		MaxTriggerDepth:   5,
		Model:             llm.DefaultModelConfig(),
		LargeContextModel: llm.LargeContextModelConfig(),
	}
}

// Validate checks the engine settings.
func (c Config) Validate() error {
	if c.TriggerRounds <= 0 {
		return fmt.Errorf("drama: trigger_rounds must be positive")
	}
	if c.MaxTriggerDepth <= 0 {
		return fmt.Errorf("drama: max_trigger_depth must be positive")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("drama: model name is required")
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records turns, triggers and speaker selection.
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Engine) { e.collector = collector }
}

// WithRand sets the random source used for moods, triggers and speaker
// selection.
func WithRand(rnd *rand.Rand) Option {
	return func(e *Engine) {
		if rnd != nil {
			e.rnd = rnd
		}
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithClassRegistry replaces the built-in class registry.
func WithClassRegistry(registry *ClassRegistry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.classes = registry
		}
	}
}

// Engine orchestrates companions, chats and world state. It is not safe
// for concurrent use.
type Engine struct {
	cfg       Config
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
	rnd       *rand.Rand
	clock     func() time.Time
	classes   *ClassRegistry
	backend   llm.Backend
	db        persistence.Database
	eval      *world.Evaluator
	prompter  *prompter

	roster     []CompanionConfig
	companions []*Companion
	state      *world.State
	jobs       []*Job
	chats      []*Chat
	variants   map[string]*Companion
}

// DefaultUser is added to rosters without a user companion.
func DefaultUser() CompanionConfig {
	return CompanionConfig{
		Name:        "You",
		Class:       ClassUser,
		Bio:         "The user",
		Description: "The user of this app. A person who seeks companionship.",
		Avatar:      "/img/avatar-user.jpg",
		Kind:        KindUser,
	}
}

// New creates an engine, loads the world state from db and creates one
// chat per npc companion. A nil db uses an in-memory store.
func New(ctx context.Context, cfg Config, roster []CompanionConfig, backend llm.Backend, db persistence.Database, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("drama: backend is required")
	}
	if db == nil {
		db = persistence.NewMemoryStore()
	}

	e := &Engine{
		cfg:      cfg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:    time.Now,
		classes:  NewClassRegistry(),
		backend:  backend,
		db:       db,
		variants: make(map[string]*Companion),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "drama_engine"))
	e.eval = world.NewEvaluator(e.logger)
	e.prompter = newPrompter(e)

	hasUser := false
	for _, c := range roster {
		if c.Kind == KindUser {
			hasUser = true
			break
		}
	}
	e.roster = append([]CompanionConfig(nil), roster...)
	if !hasUser {
		e.roster = append(e.roster, DefaultUser())
	}

	if err := e.init(ctx); err != nil {
		return nil, err
	}
	e.logger.Info("drama engine initialized",
		zap.Int("companions", len(e.companions)),
		zap.Int("chats", len(e.chats)),
	)
	return e, nil
}

func (e *Engine) init(ctx context.Context) error {
	entries, err := e.db.WorldState(ctx)
	if err != nil {
		return fmt.Errorf("drama: load world state: %w", err)
	}
	e.state = world.NewState(entries...)

	companions := make([]*Companion, 0, len(e.roster))
	seen := make(map[string]bool, len(e.roster))
	for _, cfg := range e.roster {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("drama: %w", err)
		}
		c := NewCompanion(cfg, e.rnd)
		if seen[c.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateCompanion, c.ID)
		}
		seen[c.ID] = true
		if err := e.classes.install(e, c); err != nil {
			return err
		}
		companions = append(companions, c)
	}
	e.companions = companions
	e.chats = nil
	e.jobs = nil
	e.variants = make(map[string]*Companion)

	ids := make([]string, 0, len(companions))
	for _, c := range companions {
		ids = append(ids, c.ID)
		if v, ok := e.state.Get(persistence.InteractionsKey(c.ID)); ok && v.Kind() == world.KindNumber {
			c.Interactions = int(v.Float())
		}
		if v, ok := e.state.Get(persistence.ActionsKey(c.ID)); ok && v.Kind() == world.KindNumber {
			c.Actions = int(v.Float())
		}
		if c.Config.Kind == KindNPC {
			c.pickMood()
			e.AddCompanionChat(c, e.cfg.DefaultSituation)
		}
	}

	if err := e.db.InitStats(ctx, ids); err != nil {
		return fmt.Errorf("drama: init stats: %w", err)
	}
	for _, id := range ids {
		for _, key := range []string{persistence.InteractionsKey(id), persistence.ActionsKey(id)} {
			if _, ok := e.state.Get(key); !ok {
				e.state.Set(key, world.Number(0))
			}
		}
	}
	return nil
}

// Reset clears the store, drops queued jobs and recreates the companions
// and their chats from the roster.
func (e *Engine) Reset(ctx context.Context) error {
	e.logger.Info("resetting drama engine")
	if err := e.db.Reset(ctx); err != nil {
		return fmt.Errorf("drama: reset store: %w", err)
	}
	return e.init(ctx)
}

// Companions returns the roster in configuration order.
func (e *Engine) Companions() []*Companion { return e.companions }

// Companion returns the companion with id.
func (e *Engine) Companion(id string) (*Companion, bool) {
	for _, c := range e.companions {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// User returns the companion representing the human.
func (e *Engine) User() *Companion {
	for _, c := range e.companions {
		if c.Config.Kind == KindUser {
			return c
		}
	}
	return nil
}

// Username returns the USERNAME entry, or "user".
func (e *Engine) Username() string {
	if v, ok := e.state.Get(KeyUsername); ok && v.Kind() == world.KindString && v.Str() != "" {
		return v.Str()
	}
	return "user"
}

// State exposes the world state for reading.
func (e *Engine) State() world.Reader { return e.state }

// Classes returns the class registry.
func (e *Engine) Classes() *ClassRegistry { return e.classes }

// NewContext returns an empty turn context for chat.
func (e *Engine) NewContext(chat *Chat) *Context {
	dctx := &Context{}
	if chat != nil {
		dctx.Companions = append([]*Companion(nil), chat.Companions...)
		dctx.ChatID = chat.ID
		dctx.Situation = chat.Situation
	}
	return dctx
}

// SetWorldStateEntry sets key and writes it through to the store.
func (e *Engine) SetWorldStateEntry(ctx context.Context, key string, value world.Value) error {
	e.state.Set(key, value)
	if err := e.db.SetWorldStateEntry(ctx, key, value); err != nil {
		return fmt.Errorf("drama: persist %s: %w", key, err)
	}
	return nil
}

// IncreaseWorldStateEntry adds delta to a numeric entry, creating it when
// absent.
func (e *Engine) IncreaseWorldStateEntry(ctx context.Context, key string, delta float64) error {
	v, err := e.state.Increase(key, delta)
	if err != nil {
		return fmt.Errorf("drama: increase %s: %w", key, err)
	}
	if err := e.db.SetWorldStateEntry(ctx, key, v); err != nil {
		return fmt.Errorf("drama: persist %s: %w", key, err)
	}
	return nil
}

// WorldStateValue returns the entry for key.
func (e *Engine) WorldStateValue(key string) (world.Value, bool) {
	return e.state.Get(key)
}

// LogInteraction counts an interaction for the roster companion with c's id.
func (e *Engine) LogInteraction(c *Companion) {
	if rc, ok := e.Companion(c.ID); ok {
		rc.Interactions++
	}
}

// LogAction counts an action for the roster companion with c's id.
func (e *Engine) LogAction(c *Companion) {
	if rc, ok := e.Companion(c.ID); ok {
		rc.Actions++
	}
}

// SyncInteractions writes all counters and their total to the world state.
func (e *Engine) SyncInteractions(ctx context.Context) error {
	total := 0
	for _, c := range e.companions {
		if err := e.SetWorldStateEntry(ctx, persistence.InteractionsKey(c.ID), world.Number(float64(c.Interactions))); err != nil {
			return err
		}
		if err := e.SetWorldStateEntry(ctx, persistence.ActionsKey(c.ID), world.Number(float64(c.Actions))); err != nil {
			return err
		}
		total += c.Interactions
	}
	return e.SetWorldStateEntry(ctx, KeyInteractions, world.Number(float64(total)))
}

// ActiveAction is a labelled action available in the current world state.
type ActiveAction struct {
	Companion *Companion
	Action    ActionConfig
}

// ActiveActions lists the labelled npc actions whose condition holds.
func (e *Engine) ActiveActions() []ActiveAction {
	var out []ActiveAction
	for _, c := range e.companions {
		if c.Config.Kind != KindNPC {
			continue
		}
		for _, a := range c.Config.Actions {
			if a.Label != "" && e.eval.EvaluateOptional(a.Condition, e.state) {
				out = append(out, ActiveAction{Companion: c, Action: a})
			}
		}
	}
	return out
}

// FindDelegate returns the deputy handling dctx.Action for recipient. An
// action with its own scope gets a variant of the deputy with that scope.
func (e *Engine) FindDelegate(dctx *Context, recipient *Companion) *Companion {
	action, deputy := dctx.FindDelegate(recipient, e.companions)
	if deputy == nil {
		return nil
	}
	if action.Scope == ScopeNone || action.Scope == deputy.Config.Scope {
		return deputy
	}
	return e.variant(deputy, action.Scope)
}

func (e *Engine) variant(deputy *Companion, scope Scope) *Companion {
	key := deputy.ID + "/" + string(scope)
	if v, ok := e.variants[key]; ok {
		return v
	}
	cfg := deputy.Config
	cfg.Scope = scope
	v := NewCompanion(cfg, e.rnd)
	if err := e.classes.install(e, v); err != nil {
		e.logger.Warn("cannot build deputy variant", zap.String("deputy", deputy.ID), zap.Error(err))
		return deputy
	}
	e.variants[key] = v
	return v
}

// Chats returns all chats in creation order.
func (e *Engine) Chats() []*Chat { return e.chats }

// GetChat returns the chat with id.
func (e *Engine) GetChat(id string) (*Chat, bool) {
	for _, ch := range e.chats {
		if ch.ID == id {
			return ch, true
		}
	}
	return nil, false
}

// CompanionChat returns the private chat of c.
func (e *Engine) CompanionChat(c *Companion) (*Chat, bool) {
	return e.GetChat(c.ID + "_chat")
}

// AddCompanionChat creates the private chat between c and the user.
func (e *Engine) AddCompanionChat(c *Companion, situation string) *Chat {
	ids := []string{c.ID}
	if u := e.User(); u != nil {
		ids = append(ids, u.ID)
	}
	return e.AddChat(c.ID+"_chat", situation, ids, 8, SelectRoundRobin)
}

// AddChat creates a chat of the npc and user companions named by ids, in
// roster order. An existing chat with the same id is reconfigured. Deputies
// referenced by npc actions are added automatically.
func (e *Engine) AddChat(id, situation string, ids []string, maxRounds int, selection SpeakerSelection) *Chat {
	var members []*Companion
	for _, c := range e.companions {
		if c.Config.Kind != KindNPC && c.Config.Kind != KindUser {
			continue
		}
		for _, want := range ids {
			if c.ID == want {
				members = append(members, c)
				break
			}
		}
	}
	members = e.withDeputies(members)

	if ch, ok := e.GetChat(id); ok {
		ch.Companions = members
		ch.MaxRounds = maxRounds
		ch.SpeakerSelection = selection
		e.logger.Debug("reconfigured chat", zap.String("chat_id", id), zap.Int("companions", len(members)))
		return ch
	}

	ch := &Chat{
		ID:               id,
		Situation:        situation,
		Companions:       members,
		MaxRounds:        maxRounds,
		SpeakerSelection: selection,
		engine:           e,
	}
	ch.Moderator = e.newModerator()
	e.chats = append(e.chats, ch)
	e.logger.Debug("new chat", zap.String("chat_id", id), zap.Int("companions", len(members)))
	return ch
}

func (e *Engine) withDeputies(members []*Companion) []*Companion {
	out := members
	for _, c := range members {
		if c.Config.Kind != KindNPC {
			continue
		}
		for _, a := range c.Config.Actions {
			deputy, ok := e.Companion(a.Deputy)
			if !ok {
				e.logger.Error("cannot find deputy", zap.String("companion", c.ID), zap.String("deputy", a.Deputy))
				continue
			}
			if !containsCompanion(out, deputy) {
				out = append(out, deputy)
			}
		}
	}
	return out
}

// DeleteChat removes a chat and its persisted history.
func (e *Engine) DeleteChat(ctx context.Context, id string) error {
	for i, ch := range e.chats {
		if ch.ID == id {
			e.chats = append(e.chats[:i], e.chats[i+1:]...)
			break
		}
	}
	if err := e.db.DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("drama: delete chat %s: %w", id, err)
	}
	return nil
}

// ResetChat clears the history of a chat and persists the empty history.
func (e *Engine) ResetChat(ctx context.Context, id string) error {
	ch, ok := e.GetChat(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	ch.ClearMessages()
	return e.persistChat(ctx, ch)
}

// LoadChats restores chat histories. Given records are written to the store
// first; without records every chat is read from the store. Messages of
// unknown companions are dropped.
func (e *Engine) LoadChats(ctx context.Context, records []persistence.ChatRecord) error {
	for _, rec := range records {
		if err := e.db.OverwriteChat(ctx, rec); err != nil {
			return fmt.Errorf("drama: restore chat %s: %w", rec.ID, err)
		}
	}
	for _, ch := range e.chats {
		var rec *persistence.ChatRecord
		if len(records) > 0 {
			for i := range records {
				if records[i].ID == ch.ID {
					rec = &records[i]
					break
				}
			}
		} else {
			stored, err := e.db.GetChat(ctx, ch.ID)
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("drama: load chat %s: %w", ch.ID, err)
			}
			rec = stored
		}
		if rec == nil {
			continue
		}
		ch.History = e.restoreHistory(rec.History)
	}
	return nil
}

func (e *Engine) restoreHistory(records []persistence.HistoryRecord) []ChatMessage {
	history := make([]ChatMessage, 0, len(records))
	for _, h := range records {
		c := e.companionByName(h.Companion)
		if c == nil {
			e.logger.Warn("dropping message of unknown companion", zap.String("companion", h.Companion))
			continue
		}
		history = append(history, ChatMessage{Companion: c, Text: h.Message, Timestamp: h.Timestamp})
	}
	return history
}

func (e *Engine) companionByName(name string) *Companion {
	for _, c := range e.companions {
		if strings.EqualFold(c.Config.Name, name) || c.ID == ToID(name) {
			return c
		}
	}
	return nil
}

// persistChat writes the npc and user messages of chat.
func (e *Engine) persistChat(ctx context.Context, ch *Chat) error {
	records := make([]persistence.HistoryRecord, 0, len(ch.History))
	for _, m := range ch.History {
		if m.Companion.Config.Kind != KindNPC && m.Companion.Config.Kind != KindUser {
			continue
		}
		records = append(records, persistence.HistoryRecord{
			Companion: m.Companion.Config.Name,
			Message:   m.Text,
			Timestamp: m.Timestamp,
		})
	}
	if err := e.db.WriteChat(ctx, ch.ID, records); err != nil {
		return fmt.Errorf("drama: write chat %s: %w", ch.ID, err)
	}
	return nil
}

// modelFor returns the model configuration of c.
func (e *Engine) modelFor(c *Companion) llm.ModelConfig {
	m := e.cfg.Model.Clone()
	if c == nil {
		return m
	}
	if c.Config.Temperature != nil {
		m.Temperature = *c.Config.Temperature
	}
	if c.Config.Template != "" {
		if tmpl, ok := prompt.TemplateByName(c.Config.Template); ok {
			m.Template = tmpl
		}
	}
	return m
}

// Motto returns a random unlocked motto of c for category.
func (e *Engine) Motto(c *Companion, category Category) (string, bool) {
	return c.RandomMotto(category, e.Username(), e.eval, e.state)
}
