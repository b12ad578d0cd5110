package domain

import "context"

// Mode identifies the operating environment. Each mode carries its own
// Credential and location cache.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// Valid reports whether m is one of the two known modes.
func (m Mode) Valid() bool {
	return m == ModeTest || m == ModeLive
}

// DefaultMode is used when a request does not specify one.
const DefaultMode = ModeLive

// contextKey is a type for context keys to avoid collisions
type contextKey string

const modeContextKey contextKey = "mode"

// WithMode returns a context carrying the operating mode.
func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, modeContextKey, mode)
}

// GetModeFromContext extracts the operating mode from the context,
// falling back to DefaultMode when absent.
func GetModeFromContext(ctx context.Context) Mode {
	if mode, ok := ctx.Value(modeContextKey).(Mode); ok && mode.Valid() {
		return mode
	}
	return DefaultMode
}
