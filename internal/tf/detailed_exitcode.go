package tf

import (
	"context"
	"sync"
)

// DetailedExitCode tracks the most severe terraform detailed exit code seen
// across a run, following terraform's convention:
// 0 = success, 1 = error, 2 = success with changes pending.
type DetailedExitCode struct {
	code int
	mu   sync.RWMutex
}

// Get returns the recorded exit code.
func (coder *DetailedExitCode) Get() int {
	coder.mu.RLock()
	defer coder.mu.RUnlock()

	return coder.code
}

// Merge records a new code without downgrading severity: an error sticks, and
// changes-pending wins over success.
func (coder *DetailedExitCode) Merge(newCode int) {
	coder.mu.Lock()
	defer coder.mu.Unlock()

	if coder.code == ExitCodeError {
		return
	}

	if newCode == ExitCodeError || newCode > coder.code {
		coder.code = newCode
	}
}

type exitCodeCtxKey struct{}

// ContextWithDetailedExitCode returns a context carrying the exit code recorder.
func ContextWithDetailedExitCode(ctx context.Context, coder *DetailedExitCode) context.Context {
	return context.WithValue(ctx, exitCodeCtxKey{}, coder)
}

// DetailedExitCodeFromContext returns the recorder from the context, or nil.
func DetailedExitCodeFromContext(ctx context.Context) *DetailedExitCode {
	if coder, ok := ctx.Value(exitCodeCtxKey{}).(*DetailedExitCode); ok {
		return coder
	}

	return nil
}
