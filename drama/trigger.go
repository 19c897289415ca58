package drama

import (
	"math/rand"
	"strings"
)

// Trigger decides whether a reply function handles a turn.
type Trigger interface {
	Match(dctx *Context, sender *Companion, rnd *rand.Rand) bool
}

// TriggerFunc adapts a predicate to Trigger.
type TriggerFunc func(dctx *Context, sender *Companion) bool

func (f TriggerFunc) Match(dctx *Context, sender *Companion, _ *rand.Rand) bool {
	return f(dctx, sender)
}

type senderAbsent struct{}

func (senderAbsent) Match(_ *Context, sender *Companion, _ *rand.Rand) bool { return sender == nil }

// SenderAbsent matches turns without a sender.
func SenderAbsent() Trigger { return senderAbsent{} }

// Any matches every turn.
func Any() Trigger { return Name("*") }

type nameTrigger string

func (n nameTrigger) Match(dctx *Context, sender *Companion, _ *rand.Rand) bool {
	s := string(n)
	if s == "*" {
		return true
	}
	if dctx != nil && dctx.Action != "" && s == dctx.Action {
		return true
	}
	return sender != nil && sender.ID != "" && strings.Contains(s, sender.ID)
}

// Name matches "*", the current action id, or a sender whose id occurs
// anywhere in s, including at its start ("bob" and "bob,carl" both match bob).
func Name(s string) Trigger { return nameTrigger(s) }

type companionTrigger struct{ id string }

func (t companionTrigger) Match(_ *Context, sender *Companion, _ *rand.Rand) bool {
	return sender != nil && sender.ID == t.id
}

// CompanionRef matches turns sent by c.
func CompanionRef(c *Companion) Trigger { return companionTrigger{id: c.ID} }

// Predicate matches when fn returns true.
func Predicate(fn func(dctx *Context, sender *Companion) bool) Trigger { return TriggerFunc(fn) }

type chanceTrigger float64

func (p chanceTrigger) Match(_ *Context, _ *Companion, rnd *rand.Rand) bool {
	if rnd == nil {
		return rand.Float64() < float64(p)
	}
	return rnd.Float64() < float64(p)
}

// Chance matches with probability p.
func Chance(p float64) Trigger { return chanceTrigger(p) }

type anyOf []Trigger

// Match evaluates every element so random triggers consume the source
// deterministically.
func (ts anyOf) Match(dctx *Context, sender *Companion, rnd *rand.Rand) bool {
	matched := false
	for _, t := range ts {
		if t.Match(dctx, sender, rnd) {
			matched = true
		}
	}
	return matched
}

// AnyOf matches when any of ts matches.
func AnyOf(ts ...Trigger) Trigger { return anyOf(ts) }
