package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// StaticProvider is an in-memory Provider over a fixed set of collection
// definitions. It is used by tests and by deployments whose schema is loaded
// once at startup rather than served by a metadata store.
type StaticProvider struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider builds a provider over the given collections. Duplicate
// collection codes are rejected.
func NewStaticProvider(collections ...*Collection) (*StaticProvider, error) {
	p := &StaticProvider{
		collections: make(map[string]*Collection, len(collections)),
	}
	for _, c := range collections {
		if _, ok := p.collections[c.Code]; ok {
			return nil, fmt.Errorf("duplicate collection %q", c.Code)
		}
		p.collections[c.Code] = c
	}
	return p, nil
}

// MustNewStaticProvider is like NewStaticProvider but panics on error.
func MustNewStaticProvider(collections ...*Collection) *StaticProvider {
	p, err := NewStaticProvider(collections...)
	if err != nil {
		panic(err)
	}
	return p
}

// AddCollection registers or replaces a collection definition.
func (p *StaticProvider) AddCollection(c *Collection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections[c.Code] = c
}

func (p *StaticProvider) GetCollection(ctx context.Context, collection string) (*Collection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
	}
	return c, nil
}

func (p *StaticProvider) GetProperty(ctx context.Context, collection, property string) (*Property, error) {
	c, err := p.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	prop := c.GetProperty(property)
	if prop == nil {
		return nil, fmt.Errorf("property %q on collection %q: %w", property, collection, ErrNotFound)
	}
	return prop, nil
}

func (p *StaticProvider) ListReferenceProperties(ctx context.Context, collection string) ([]*Property, error) {
	c, err := p.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var refs []*Property
	for _, prop := range c.Properties {
		if prop.IsReference() {
			refs = append(refs, prop)
		}
	}
	return refs, nil
}

func (p *StaticProvider) GetReferenceTarget(ctx context.Context, collection, property string) (*Reference, error) {
	prop, err := p.GetProperty(ctx, collection, property)
	if err != nil {
		return nil, err
	}

	if prop.Type != TypeReference {
		return nil, &InvalidReferenceError{Collection: collection, Property: property, Reason: "property is not a reference"}
	}
	if prop.Reference == nil || prop.Reference.TargetCollection == "" {
		return nil, &InvalidReferenceError{Collection: collection, Property: property, Reason: "missing target collection"}
	}
	return prop.Reference, nil
}

func (p *StaticProvider) ListReferencingCollections(ctx context.Context, collection string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.collections[collection]; !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
	}

	var codes []string
	for code, c := range p.collections {
		for _, prop := range c.Properties {
			if prop.IsReference() && prop.Reference.TargetCollection == collection {
				codes = append(codes, code)
				break
			}
		}
	}

	sort.Strings(codes)
	return codes, nil
}
