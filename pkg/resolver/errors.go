package resolver

import "fmt"

// MaxDepthExceededError indicates a hierarchy traversal went past the
// configured maximum depth.
type MaxDepthExceededError struct {
	// Limit is the configured maximum depth.
	Limit int

	// Reached is the depth the traversal had actually reached when it was
	// stopped.
	Reached int
}

func (e *MaxDepthExceededError) Error() string {
	return fmt.Sprintf("hierarchy traversal exceeded maximum depth: limit %d, reached %d", e.Limit, e.Reached)
}
