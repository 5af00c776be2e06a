// Package schema defines the metadata contract the resolution engine consumes:
// which collections and properties exist, and which properties reference
// records in other collections.
package schema

import (
	"context"
	"errors"
)

// ErrNotFound is returned by providers when a collection or property is absent.
var ErrNotFound = errors.New("schema element not found")

// PropertyType enumerates the property types the engine cares about. Anything
// that is not a reference is opaque to resolution.
type PropertyType string

const (
	TypeText      PropertyType = "text"
	TypeNumber    PropertyType = "number"
	TypeBool      PropertyType = "bool"
	TypeDate      PropertyType = "date"
	TypeReference PropertyType = "reference"
)

// Reference configures a reference-typed property: which collection it points
// at, and whether it holds one id or several.
type Reference struct {
	TargetCollection string
	TargetProperty   string
	Multi            bool
}

// Property describes a single property of a collection.
type Property struct {
	Code      string
	Type      PropertyType
	Reference *Reference
}

// IsReference reports whether the property points at records of another
// collection (including self-referential parent pointers).
func (p *Property) IsReference() bool {
	return p.Type == TypeReference && p.Reference != nil
}

// Collection describes one record collection.
type Collection struct {
	Code       string
	PrimaryKey string
	Properties []*Property
}

// GetProperty returns the property with the given code, or nil.
func (c *Collection) GetProperty(code string) *Property {
	for _, p := range c.Properties {
		if p.Code == code {
			return p
		}
	}
	return nil
}

// Provider is the schema capability consumed by the resolver. Absence is
// signalled with ErrNotFound rather than nil results.
type Provider interface {
	// GetCollection returns the schema of the given collection.
	GetCollection(ctx context.Context, collection string) (*Collection, error)

	// GetProperty returns the schema of one property of a collection.
	GetProperty(ctx context.Context, collection, property string) (*Property, error)

	// ListReferenceProperties returns the reference-typed properties of a collection.
	ListReferenceProperties(ctx context.Context, collection string) ([]*Property, error)

	// GetReferenceTarget resolves the target configuration of a reference property.
	GetReferenceTarget(ctx context.Context, collection, property string) (*Reference, error)

	// ListReferencingCollections returns the codes of collections holding at
	// least one reference property targeting the given collection.
	ListReferencingCollections(ctx context.Context, collection string) ([]string, error)
}
