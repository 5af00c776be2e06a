package graph

import "fmt"

// CircularDependencyError is raised when a cycle is detected in the property
// dependency graph.
type CircularDependencyError struct {
	Cycle Cycle
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", e.Cycle)
}
