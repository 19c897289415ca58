package drama

import (
	"fmt"
	"sort"
	"sync"
)

// Built-in class names.
const (
	ClassChat        = "chat"
	ClassInstruction = "instruction"
	ClassPassthrough = "passthrough"
	ClassDeputy      = "deputy"
	ClassUser        = "user"
)

// ClassFunc installs the reply pipeline of a class on a new companion.
type ClassFunc func(e *Engine, c *Companion)

// ClassRegistry maps class names to pipeline installers.
type ClassRegistry struct {
	mu      sync.RWMutex
	classes map[string]ClassFunc
}

// NewClassRegistry returns a registry holding the built-in classes.
func NewClassRegistry() *ClassRegistry {
	r := &ClassRegistry{classes: make(map[string]ClassFunc)}
	r.Register(ClassChat, func(e *Engine, c *Companion) {
		c.RegisterReply(Any(), e.chatReply, false)
	})
	r.Register(ClassInstruction, Deputy(instructionReply))
	r.Register(ClassPassthrough, Deputy(passthroughReply))
	r.Register(ClassDeputy, Deputy(nil))
	r.Register(ClassUser, func(*Engine, *Companion) {})
	return r
}

// Deputy returns a class that installs the scope handlers and then appends
// fn for every turn. fn may be nil.
func Deputy(fn ReplyFunc) ClassFunc {
	return func(e *Engine, c *Companion) {
		e.installScope(c, c.Config.Scope)
		if fn != nil {
			c.RegisterReply(Any(), fn, false)
		}
	}
}

// Register adds or replaces a class.
func (r *ClassRegistry) Register(name string, fn ClassFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[name] = fn
}

// Lookup returns the installer of name.
func (r *ClassRegistry) Lookup(name string) (ClassFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.classes[name]
	return fn, ok
}

// Names returns the registered class names in sorted order.
func (r *ClassRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// classOf returns the configured class or the default of the kind.
func classOf(cfg CompanionConfig) string {
	if cfg.Class != "" {
		return cfg.Class
	}
	switch cfg.Kind {
	case KindUser:
		return ClassUser
	case KindShell:
		return ClassDeputy
	default:
		return ClassChat
	}
}

func (r *ClassRegistry) install(e *Engine, c *Companion) error {
	name := classOf(c.Config)
	fn, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q (companion %s)", ErrUnknownClass, name, c.ID)
	}
	fn(e, c)
	return nil
}
