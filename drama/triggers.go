package drama

import (
	"context"

	"github.com/BaSui01/drama/world"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RunTriggers evaluates the triggers of every companion. The first trigger
// that runs an action starts a chat on the companion's private chat and
// returns its context; world-state effects are applied in place.
func (e *Engine) RunTriggers(ctx context.Context, dctx *Context, onMessage MessageFunc) (*Context, error) {
	return e.runTriggers(ctx, dctx, onMessage, 0)
}

func (e *Engine) runTriggers(ctx context.Context, dctx *Context, onMessage MessageFunc, depth int) (*Context, error) {
	if depth >= e.cfg.MaxTriggerDepth {
		e.logger.Warn("trigger depth exhausted", zap.Int("depth", depth))
		return dctx, nil
	}
	ctx, span := e.tracer.Start(ctx, "drama.run_triggers")
	defer span.End()
	span.SetAttributes(attribute.Int("drama.trigger_depth", depth))

	for _, c := range e.companions {
		for _, t := range c.Config.Triggers {
			if !e.eval.Evaluate(t.Condition, e.state) {
				continue
			}

			if t.Effect == nil {
				if t.Action == "" {
					e.logger.Warn("trigger without action or effect", zap.String("companion", c.ID))
					continue
				}
				// lower the flag first so the action does not fire again
				if flag, ok := t.Condition.EventKey(); ok {
					if err := e.SetWorldStateEntry(ctx, flag, world.Bool(false)); err != nil {
						return dctx, err
					}
				}
				return e.fireAction(ctx, c, t.Action, dctx, onMessage, depth)
			}

			switch t.Effect.Tag {
			case world.TagEvent:
				flag, ok := t.Effect.EventKey()
				if !ok {
					e.logger.Warn("event effect needs a flag name", zap.String("companion", c.ID))
					continue
				}
				if err := e.SetWorldStateEntry(ctx, flag, world.Bool(true)); err != nil {
					return dctx, err
				}
				e.collector.RecordTrigger(c.ID, "event")
				e.logger.Debug("event raised", zap.String("companion", c.ID), zap.String("event", flag))

			case world.TagAction:
				if t.Effect.Value == nil || t.Effect.Value.Kind() != world.KindString || t.Effect.Value.Str() == "" {
					e.logger.Warn("action effect needs an action id", zap.String("companion", c.ID))
					continue
				}
				return e.fireAction(ctx, c, t.Effect.Value.Str(), dctx, onMessage, depth)

			default:
				if err := e.applyEffect(ctx, c, t); err != nil {
					return dctx, err
				}
			}
		}
	}
	return dctx, nil
}

// applyEffect sets or adds the effect value on the world-state key named
// by the effect tag.
func (e *Engine) applyEffect(ctx context.Context, c *Companion, t TriggerRule) error {
	if t.Effect.Value == nil {
		e.logger.Warn("effect needs a value", zap.String("companion", c.ID), zap.String("key", t.Effect.Tag))
		return nil
	}
	value := *t.Effect.Value
	switch Operation(t.Action) {
	case OperationSet:
		e.collector.RecordTrigger(c.ID, "set")
		return e.SetWorldStateEntry(ctx, t.Effect.Tag, value)
	case OperationAdd:
		if value.Kind() != world.KindNumber {
			e.logger.Warn("add needs a numeric value", zap.String("companion", c.ID), zap.String("key", t.Effect.Tag))
			return nil
		}
		if current, ok := e.state.Get(t.Effect.Tag); ok && current.Kind() != world.KindNumber {
			e.logger.Warn("add on a non-numeric entry", zap.String("companion", c.ID), zap.String("key", t.Effect.Tag))
			return nil
		}
		e.collector.RecordTrigger(c.ID, "add")
		return e.IncreaseWorldStateEntry(ctx, t.Effect.Tag, value.Float())
	default:
		e.logger.Warn("unsupported trigger operation", zap.String("companion", c.ID), zap.String("operation", t.Action))
		return nil
	}
}

func (e *Engine) fireAction(ctx context.Context, c *Companion, action string, dctx *Context, onMessage MessageFunc, depth int) (*Context, error) {
	chat, ok := e.CompanionChat(c)
	if !ok {
		return dctx, nil
	}
	e.collector.RecordTrigger(c.ID, "action")
	e.logger.Debug("trigger runs action", zap.String("companion", c.ID), zap.String("action", action))

	dctx.Recipient = c
	dctx.Action = action
	res, err := e.runChat(ctx, chat, e.cfg.TriggerRounds, dctx, nil, nil, onMessage, depth+1)
	if res.Context != nil {
		return res.Context, err
	}
	return dctx, err
}
