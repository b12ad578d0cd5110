package ports

import "context"

// FailureTracker records "do not retry before" markers for upstream
// operation classes. Every non-webhook outbound call to the provider
// consults ShouldSkip before dialing out.
type FailureTracker interface {
	// RecordFailure stores a not-before marker for the operation class.
	RecordFailure(ctx context.Context, class string) error

	// ShouldSkip reports whether the class is still inside its backoff
	// window. The marker clears itself once the deadline passes.
	ShouldSkip(ctx context.Context, class string) bool

	// Clear removes the marker on explicit success.
	Clear(ctx context.Context, class string) error
}
