package entities

import "time"

// Product is one loaded catalog entity.
// System holds the fixed schema-defined fields keyed by attribute ID,
// Custom holds the open custom attribute mapping.
type Product struct {
	ID           string
	System       map[string]interface{}
	Custom       map[string]interface{}
	LastModified time.Time
}

// NewProduct returns an empty product with both surfaces allocated
func NewProduct(id string) *Product {
	return &Product{
		ID:     id,
		System: make(map[string]interface{}),
		Custom: make(map[string]interface{}),
	}
}

// Clone returns a copy whose surfaces can be modified independently
func (p *Product) Clone() *Product {
	c := &Product{
		ID:           p.ID,
		System:       make(map[string]interface{}, len(p.System)),
		Custom:       make(map[string]interface{}, len(p.Custom)),
		LastModified: p.LastModified,
	}
	for k, v := range p.System {
		c.System[k] = v
	}
	for k, v := range p.Custom {
		c.Custom[k] = v
	}
	return c
}

// AsMap returns the product as {id, system, custom} for expression evaluation
func (p *Product) AsMap() map[string]interface{} {
	system := p.System
	if system == nil {
		system = map[string]interface{}{}
	}
	custom := p.Custom
	if custom == nil {
		custom = map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":     p.ID,
		"system": system,
		"custom": custom,
	}
}
