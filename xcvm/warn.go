package xcvm

import (
	"log/slog"
	"sync"
)

var warned sync.Map

// warnOnce logs msg at WARN the first time it is seen in this process.
// Approximate or slow code paths report through it.
func warnOnce(msg string, args ...any) {
	if _, loaded := warned.LoadOrStore(msg, struct{}{}); !loaded {
		slog.Warn(msg, args...)
	}
}
