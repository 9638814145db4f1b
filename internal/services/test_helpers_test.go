package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/repositories"
)

var errStoreRejected = errors.New("quota does not permit write access")

// Mock AttributeDefinitionRepository
type mockDefinitionRepository struct {
	defs      map[string][]*entities.AttributeDefinition
	listCalls int
	listErr   error
}

func newMockDefinitionRepository() *mockDefinitionRepository {
	return &mockDefinitionRepository{defs: make(map[string][]*entities.AttributeDefinition)}
}

func (m *mockDefinitionRepository) ListByEntityType(ctx context.Context, entityType string) ([]*entities.AttributeDefinition, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	defs := m.defs[entityType]
	out := make([]*entities.AttributeDefinition, len(defs))
	copy(out, defs)
	return out, nil
}

func (m *mockDefinitionRepository) Replace(ctx context.Context, entityType string, defs []*entities.AttributeDefinition) error {
	m.defs[entityType] = defs
	return nil
}

func (m *mockDefinitionRepository) ListEntityTypes(ctx context.Context) ([]string, error) {
	types := make([]string, 0, len(m.defs))
	for t := range m.defs {
		types = append(types, t)
	}
	return types, nil
}

// memoryProductStore is an in-memory ProductRepository and Transactor.
// A failed transaction restores the products as they were before it began.
type memoryProductStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[string]*entities.Product
	readOnly map[string]bool
	failOn   map[string]bool // attribute IDs whose write fails with errStoreRejected
	writes   int
	commits  int
}

func newMemoryProductStore(products ...*entities.Product) *memoryProductStore {
	s := &memoryProductStore{
		products: make(map[string]*entities.Product),
		readOnly: map[string]bool{"ID": true, "creationDate": true, "lastModified": true},
		failOn:   make(map[string]bool),
	}
	for _, p := range products {
		s.products[p.ID] = p.Clone()
	}
	return s
}

func (s *memoryProductStore) GetByID(ctx context.Context, productID string) (*entities.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, apperrors.NewNotFoundError("product", productID)
	}
	return p.Clone(), nil
}

func (s *memoryProductStore) LockForUpdate(ctx context.Context, productID string) (*entities.Product, error) {
	return s.GetByID(ctx, productID)
}

func (s *memoryProductStore) write(productID, attributeID string, value interface{}, system bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOn[attributeID] {
		return errStoreRejected
	}
	p, ok := s.products[productID]
	if !ok {
		return apperrors.NewNotFoundError("product", productID)
	}

	surface := p.Custom
	if system {
		if s.readOnly[attributeID] {
			return fmt.Errorf("system attribute %q: %w", attributeID, apperrors.ErrReadOnly)
		}
		surface = p.System
	}
	if value == nil {
		delete(surface, attributeID)
	} else {
		surface[attributeID] = value
	}
	s.writes++
	return nil
}

func (s *memoryProductStore) SetSystemAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	return s.write(productID, attributeID, value, true)
}

func (s *memoryProductStore) SetCustomAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	return s.write(productID, attributeID, value, false)
}

func (s *memoryProductStore) Create(ctx context.Context, product *entities.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[product.ID]; !exists {
		s.products[product.ID] = product.Clone()
	}
	return nil
}

func (s *memoryProductStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo repositories.ProductRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := make(map[string]*entities.Product, len(s.products))
	for id, p := range s.products {
		snapshot[id] = p.Clone()
	}
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.products = snapshot
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

// Mock CustomerRepository
type mockCustomerRepository struct {
	customers map[string]*entities.Customer
	err       error
}

func newMockCustomerRepository(customers ...*entities.Customer) *mockCustomerRepository {
	m := &mockCustomerRepository{customers: make(map[string]*entities.Customer)}
	for _, c := range customers {
		m.customers[c.Login] = c
	}
	return m
}

func (m *mockCustomerRepository) Upsert(ctx context.Context, customer *entities.Customer) error {
	m.customers[customer.Login] = customer
	return nil
}

func (m *mockCustomerRepository) WithinLogin(ctx context.Context, login string, fn func(customer *entities.Customer) error) error {
	if m.err != nil {
		return m.err
	}
	stored, ok := m.customers[login]
	if !ok {
		return fn(nil)
	}
	c := *stored
	fnErr := fn(&c)
	stored.FailedLoginCount = c.FailedLoginCount
	stored.LastLoginTime = c.LastLoginTime
	return fnErr
}

func productSchema(defs ...*entities.AttributeDefinition) *entities.AttributeSet {
	return &entities.AttributeSet{EntityType: "Product", Definitions: defs}
}

func systemAttr(id string) *entities.AttributeDefinition {
	return &entities.AttributeDefinition{ID: id, Group: entities.AttributeGroupSystem}
}

func customAttr(id string) *entities.AttributeDefinition {
	return &entities.AttributeDefinition{ID: id, Group: entities.AttributeGroupCustom}
}
