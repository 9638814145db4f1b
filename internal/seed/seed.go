// Package seed loads schemas, customers and products from a YAML file into
// the stores. It backs the migrate tool's seed command.
package seed

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/asakaida/attrgate/internal/entities"
	"github.com/asakaida/attrgate/internal/repositories"
)

// File is the seed document
type File struct {
	Schemas   map[string][]Attribute `yaml:"schemas"`
	Customers []Customer             `yaml:"customers"`
	Products  []Product              `yaml:"products"`
}

// Attribute is one schema entry
type Attribute struct {
	ID         string `yaml:"id"`
	Group      string `yaml:"group"`
	WriteGuard string `yaml:"writeGuard"`
}

// Customer is a login with a clear-text password hashed on import
type Customer struct {
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
	Enabled  *bool  `yaml:"enabled"` // Defaults to true
}

// Product is a product with both attribute surfaces
type Product struct {
	ID     string                 `yaml:"id"`
	System map[string]interface{} `yaml:"system"`
	Custom map[string]interface{} `yaml:"custom"`
}

// SchemaWriter stores a validated schema
type SchemaWriter interface {
	ReplaceSchema(ctx context.Context, entityType string, defs []*entities.AttributeDefinition) error
}

// PasswordHasher hashes a clear-text password
type PasswordHasher func(password string) (string, error)

// Targets are the stores a seed file is applied to
type Targets struct {
	Schemas   SchemaWriter
	Customers repositories.CustomerRepository
	Products  repositories.ProductRepository
	Hash      PasswordHasher
}

// Summary counts what was applied
type Summary struct {
	Schemas   int
	Customers int
	Products  int
}

// Load reads and decodes a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Apply writes the seed file to the targets: schemas first, then customers,
// then products. Existing products are left unchanged.
func Apply(ctx context.Context, f *File, t Targets, logger *logrus.Logger) (*Summary, error) {
	summary := &Summary{}

	entityTypes := make([]string, 0, len(f.Schemas))
	for et := range f.Schemas {
		entityTypes = append(entityTypes, et)
	}
	sort.Strings(entityTypes)

	for _, et := range entityTypes {
		defs, err := toDefinitions(f.Schemas[et])
		if err != nil {
			return summary, fmt.Errorf("schema %q: %w", et, err)
		}
		if err := t.Schemas.ReplaceSchema(ctx, et, defs); err != nil {
			return summary, fmt.Errorf("schema %q: %w", et, err)
		}
		logger.WithFields(logrus.Fields{"entity_type": et, "attributes": len(defs)}).Info("schema seeded")
		summary.Schemas++
	}

	for _, c := range f.Customers {
		if c.Login == "" || c.Password == "" {
			return summary, fmt.Errorf("customer %q: login and password are required", c.Login)
		}
		hash, err := t.Hash(c.Password)
		if err != nil {
			return summary, fmt.Errorf("customer %q: %w", c.Login, err)
		}
		enabled := c.Enabled == nil || *c.Enabled
		if err := t.Customers.Upsert(ctx, &entities.Customer{Login: c.Login, PasswordHash: hash, Enabled: enabled}); err != nil {
			return summary, fmt.Errorf("customer %q: %w", c.Login, err)
		}
		logger.WithField("login", c.Login).Info("customer seeded")
		summary.Customers++
	}

	for _, p := range f.Products {
		product, err := toProduct(p)
		if err != nil {
			return summary, err
		}
		if err := t.Products.Create(ctx, product); err != nil {
			return summary, fmt.Errorf("product %q: %w", p.ID, err)
		}
		logger.WithField("product_id", p.ID).Info("product seeded")
		summary.Products++
	}

	return summary, nil
}

func toDefinitions(attrs []Attribute) ([]*entities.AttributeDefinition, error) {
	defs := make([]*entities.AttributeDefinition, 0, len(attrs))
	for _, a := range attrs {
		group, err := entities.ParseAttributeGroup(a.Group)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.ID, err)
		}
		defs = append(defs, &entities.AttributeDefinition{ID: a.ID, Group: group, WriteGuard: a.WriteGuard})
	}
	return defs, nil
}

func toProduct(p Product) (*entities.Product, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("product id is required")
	}

	product := entities.NewProduct(p.ID)
	surfaces := []struct {
		src map[string]interface{}
		dst map[string]interface{}
	}{
		{p.System, product.System},
		{p.Custom, product.Custom},
	}
	for _, s := range surfaces {
		for k, v := range s.src {
			nv, err := entities.NormalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("product %q attribute %q: %w", p.ID, k, err)
			}
			s.dst[k] = nv
		}
	}
	return product, nil
}
