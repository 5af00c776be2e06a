package schema

import "fmt"

// CollectionNotFoundError indicates a referenced collection code does not
// exist in the schema.
type CollectionNotFoundError struct {
	Collection string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("collection %q not found", e.Collection)
}

// PropertyNotFoundError indicates a referenced property code does not exist on
// the given collection.
type PropertyNotFoundError struct {
	Collection string
	Property   string
}

func (e *PropertyNotFoundError) Error() string {
	return fmt.Sprintf("property %q not found on collection %q", e.Property, e.Collection)
}

// InvalidReferenceError indicates a reference property is misconfigured, for
// example a reference with no target collection.
type InvalidReferenceError struct {
	Collection string
	Property   string
	Reason     string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid reference %s.%s: %s", e.Collection, e.Property, e.Reason)
}
