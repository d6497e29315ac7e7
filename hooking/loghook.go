package hooking

import (
	"fmt"
	"log"
)

// LogHook writes one line per hook invocation.
type LogHook struct {
	*log.Logger
}

// NewLogHook creates a LogHook that writes to logger.
func NewLogHook(logger *log.Logger) *LogHook {
	if logger == nil {
		panic("logger must not be nil")
	}

	return &LogHook{Logger: logger}
}

// Func logs the hook position, the item and, if present, the detail.
func (h *LogHook) Func(ctx HookCtx) {
	pos := "unknown"
	if ctx.Pos != nil {
		pos = ctx.Pos.Name
	}

	line := fmt.Sprintf("%s: %v", pos, ctx.Item)
	if ctx.Detail != nil {
		line += fmt.Sprintf(" (%v)", ctx.Detail)
	}

	h.Print(line)
}
