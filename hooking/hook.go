// Package hooking lets callers observe the compiler while it works without
// the compiler knowing who is listening.
package hooking

// HookPos names a compiler stage that fires hooks.
type HookPos struct {
	Name string
}

// HookCtx describes one hook firing.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos

	// Item is the program or instruction run the stage is working on.
	Item any

	// Detail may be nil.
	Detail any
}

// Hookable is anything that fires hooks.
type Hookable interface {
	// AcceptHook must be called before the object is shared between
	// goroutines.
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
	InvokeHook(ctx HookCtx)
}

// Hook receives compiler stage notifications.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase keeps the hook list for types that embed it.
type HookableBase struct {
	hooks []Hook
}

// NewHookableBase returns an empty HookableBase.
func NewHookableBase() *HookableBase {
	return &HookableBase{hooks: make([]Hook, 0)}
}

func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

func (h *HookableBase) Hooks() []Hook {
	return h.hooks
}

// AcceptHook panics if the same hook value is registered twice. HookFunc
// values are not comparable and are always accepted.
func (h *HookableBase) AcceptHook(hook Hook) {
	if _, isFunc := hook.(HookFunc); !isFunc {
		for _, existing := range h.hooks {
			if existing == hook {
				panic("duplicated hook")
			}
		}
	}

	h.hooks = append(h.hooks, hook)
}

// InvokeHook calls every hook in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
