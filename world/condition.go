package world

import (
	"math"

	"go.uber.org/zap"
)

// Reserved condition tags.
const (
	TagNone   = "none"
	TagEvent  = "event"
	TagAction = "action"
)

// Condition guards knowledge lines, actions and triggers.
//
// Tag "none" always holds. Tag "event" holds when the entry named by Value
// is truthy. Any other tag names a world-state key: without Value the entry
// must be numeric and within [Min, Max); with Value it must be equal.
type Condition struct {
	Tag   string   `json:"tag" yaml:"tag"`
	Min   *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Value *Value   `json:"value,omitempty" yaml:"value,omitempty"`
}

// Always returns a condition that always holds.
func Always() Condition { return Condition{Tag: TagNone} }

// Event returns a condition that holds while the named flag is raised.
func Event(flag string) Condition { return Condition{Tag: TagEvent, Value: Ptr(String(flag))} }

// EventKey returns the flag name of an event condition.
func (c Condition) EventKey() (string, bool) {
	if c.Tag != TagEvent || c.Value == nil || c.Value.Kind() != KindString {
		return "", false
	}
	return c.Value.Str(), true
}

// Bounds returns the effective numeric range.
func (c Condition) Bounds() (min, max float64) {
	min, max = 0, math.Inf(1)
	if c.Min != nil {
		min = *c.Min
	}
	if c.Max != nil {
		max = *c.Max
	}
	return min, max
}

// Evaluator evaluates conditions against a world state. Misconfigured
// conditions are logged and evaluate to false.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates an evaluator. A nil logger disables logging.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger.With(zap.String("component", "condition_evaluator"))}
}

// Evaluate reports whether cond holds in state.
func (e *Evaluator) Evaluate(cond Condition, state Reader) bool {
	switch cond.Tag {
	case TagNone:
		return true
	case TagEvent:
		key, ok := cond.EventKey()
		if !ok {
			e.logger.Warn("invalid event condition: value must name a flag")
			return false
		}
		v, found := state.Get(key)
		return found && v.Truthy()
	}

	entry, found := state.Get(cond.Tag)
	if !found {
		e.logger.Warn("invalid condition: unknown world state key", zap.String("key", cond.Tag))
		return false
	}

	if cond.Value != nil {
		if cond.Value.Kind() != entry.Kind() {
			e.logger.Warn("invalid condition: type mismatch",
				zap.String("key", cond.Tag),
				zap.Stringer("want", cond.Value.Kind()),
				zap.Stringer("got", entry.Kind()),
			)
			return false
		}
		return entry.Equal(*cond.Value)
	}

	if entry.Kind() != KindNumber {
		return false
	}
	min, max := cond.Bounds()
	return min <= entry.Float() && entry.Float() < max
}

// EvaluateOptional evaluates cond; a nil condition holds.
func (e *Evaluator) EvaluateOptional(cond *Condition, state Reader) bool {
	if cond == nil {
		return true
	}
	return e.Evaluate(*cond, state)
}
