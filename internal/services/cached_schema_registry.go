package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asakaida/attrgate/internal/entities"
	"github.com/asakaida/attrgate/pkg/cache"
)

const schemaCacheKeyPrefix = "schema:"

// cachedDefinition is the cache encoding of an AttributeDefinition
type cachedDefinition struct {
	ID         string `json:"id"`
	Group      string `json:"group"`
	WriteGuard string `json:"writeGuard,omitempty"`
}

// CachedSchemaRegistry decorates a SchemaRegistry with a TTL cache.
// Only successful lookups are cached.
type CachedSchemaRegistry struct {
	next   SchemaRegistry
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Entry
}

var _ SchemaRegistry = (*CachedSchemaRegistry)(nil)

// NewCachedSchemaRegistry creates a new CachedSchemaRegistry
func NewCachedSchemaRegistry(next SchemaRegistry, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedSchemaRegistry {
	return &CachedSchemaRegistry{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.WithField("component", "schema_cache"),
	}
}

func schemaCacheKey(entityType string) string {
	return schemaCacheKeyPrefix + entityType
}

// Describe returns the cached attribute set or loads it from the wrapped registry
func (r *CachedSchemaRegistry) Describe(ctx context.Context, entityType string) (*entities.AttributeSet, error) {
	key := schemaCacheKey(entityType)

	if data, ok := r.cache.Get(ctx, key); ok {
		set, err := decodeAttributeSet(entityType, data)
		if err == nil {
			return set, nil
		}
		r.logger.WithError(err).WithField("entity_type", entityType).Warn("discarding undecodable cache entry")
	}

	set, err := r.next.Describe(ctx, entityType)
	if err != nil {
		return nil, err
	}

	data, err := encodeAttributeSet(set)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.WithError(err).WithField("entity_type", entityType).Warn("failed to cache schema")
	}

	return set, nil
}

// Invalidate drops the cached schema of one entity type
func (r *CachedSchemaRegistry) Invalidate(ctx context.Context, entityType string) error {
	return r.cache.Delete(ctx, schemaCacheKey(entityType))
}

// InvalidateAll drops every cached schema
func (r *CachedSchemaRegistry) InvalidateAll(ctx context.Context) error {
	return r.cache.Clear(ctx)
}

// Metrics returns the statistics of the underlying cache
func (r *CachedSchemaRegistry) Metrics() *cache.Metrics {
	return r.cache.Metrics()
}

func encodeAttributeSet(set *entities.AttributeSet) ([]byte, error) {
	defs := make([]cachedDefinition, len(set.Definitions))
	for i, d := range set.Definitions {
		defs[i] = cachedDefinition{ID: d.ID, Group: d.Group.String(), WriteGuard: d.WriteGuard}
	}
	data, err := json.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return data, nil
}

func decodeAttributeSet(entityType string, data []byte) (*entities.AttributeSet, error) {
	var defs []cachedDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	set := &entities.AttributeSet{
		EntityType:  entityType,
		Definitions: make([]*entities.AttributeDefinition, len(defs)),
	}
	for i, d := range defs {
		group, err := entities.ParseAttributeGroup(d.Group)
		if err != nil {
			return nil, err
		}
		set.Definitions[i] = &entities.AttributeDefinition{ID: d.ID, Group: group, WriteGuard: d.WriteGuard}
	}
	return set, nil
}
