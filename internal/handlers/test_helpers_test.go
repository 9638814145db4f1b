package handlers

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/repositories"
	"github.com/asakaida/attrgate/internal/services"
)

// Mock Dispatcher
type mockDispatcher struct {
	handleFunc func(ctx context.Context, req services.Request) services.Response
	calls      int
}

func (m *mockDispatcher) Handle(ctx context.Context, req services.Request) services.Response {
	m.calls++
	if m.handleFunc != nil {
		return m.handleFunc(ctx, req)
	}
	return services.Response{Payload: services.SetSuccess{Success: services.SuccessModified}}
}

// Mock FaultRecorder
type mockFaultRecorder struct {
	faults []string
}

func (m *mockFaultRecorder) RecordFault(fault string) {
	m.faults = append(m.faults, fault)
}

// Mock HealthChecker
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.err
}

// Mock AttributeDefinitionRepository
type mockAttributeDefinitionRepository struct {
	defs map[string][]*entities.AttributeDefinition
}

func (m *mockAttributeDefinitionRepository) ListByEntityType(ctx context.Context, entityType string) ([]*entities.AttributeDefinition, error) {
	return m.defs[entityType], nil
}

func (m *mockAttributeDefinitionRepository) Replace(ctx context.Context, entityType string, defs []*entities.AttributeDefinition) error {
	m.defs[entityType] = defs
	return nil
}

func (m *mockAttributeDefinitionRepository) ListEntityTypes(ctx context.Context) ([]string, error) {
	types := make([]string, 0, len(m.defs))
	for t := range m.defs {
		types = append(types, t)
	}
	return types, nil
}

// Mock CustomerRepository
type mockCustomerRepository struct {
	mu        sync.Mutex
	customers map[string]*entities.Customer
}

func (m *mockCustomerRepository) Upsert(ctx context.Context, customer *entities.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customer.Login] = customer
	return nil
}

func (m *mockCustomerRepository) WithinLogin(ctx context.Context, login string, fn func(customer *entities.Customer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.customers[login]
	if !ok {
		return fn(nil)
	}
	c := *stored
	err := fn(&c)
	stored.FailedLoginCount = c.FailedLoginCount
	stored.LastLoginTime = c.LastLoginTime
	return err
}

// mockProductStore keeps products in memory; a transaction works on a copy
// that replaces the stored product on commit.
type mockProductStore struct {
	mu       sync.Mutex
	products map[string]*entities.Product
}

func (m *mockProductStore) GetByID(ctx context.Context, productID string) (*entities.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, apperrors.NewNotFoundError("product", productID)
	}
	return p.Clone(), nil
}

func (m *mockProductStore) LockForUpdate(ctx context.Context, productID string) (*entities.Product, error) {
	return m.GetByID(ctx, productID)
}

func (m *mockProductStore) SetSystemAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	return apperrors.ErrReadOnly
}

func (m *mockProductStore) SetCustomAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	return apperrors.ErrReadOnly
}

func (m *mockProductStore) Create(ctx context.Context, product *entities.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product.Clone()
	return nil
}

func (m *mockProductStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo repositories.ProductRepository) error) error {
	tx := &mockProductTx{store: m, staged: make(map[string]*entities.Product)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range tx.staged {
		m.products[id] = p
	}
	return nil
}

type mockProductTx struct {
	store  *mockProductStore
	staged map[string]*entities.Product
}

func (t *mockProductTx) GetByID(ctx context.Context, productID string) (*entities.Product, error) {
	if p, ok := t.staged[productID]; ok {
		return p.Clone(), nil
	}
	return t.store.GetByID(ctx, productID)
}

func (t *mockProductTx) LockForUpdate(ctx context.Context, productID string) (*entities.Product, error) {
	return t.GetByID(ctx, productID)
}

func (t *mockProductTx) stage(ctx context.Context, productID string) (*entities.Product, error) {
	if p, ok := t.staged[productID]; ok {
		return p, nil
	}
	p, err := t.store.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	t.staged[productID] = p
	return p, nil
}

func (t *mockProductTx) SetSystemAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	p, err := t.stage(ctx, productID)
	if err != nil {
		return err
	}
	p.System[attributeID] = value
	return nil
}

func (t *mockProductTx) SetCustomAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	p, err := t.stage(ctx, productID)
	if err != nil {
		return err
	}
	p.Custom[attributeID] = value
	return nil
}

func (t *mockProductTx) Create(ctx context.Context, product *entities.Product) error {
	return t.store.Create(ctx, product)
}

func basicCredential(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
