package services

import (
	"context"
	"fmt"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/repositories"
	"github.com/asakaida/attrgate/internal/services/guard"
)

// AttributeAccessor reads and writes product attributes by schema-resolved ID
type AttributeAccessor struct {
	transactor repositories.Transactor
	guards     *guard.Engine
}

// NewAttributeAccessor creates a new AttributeAccessor.
// guards may be nil when no attribute carries a write guard.
func NewAttributeAccessor(transactor repositories.Transactor, guards *guard.Engine) *AttributeAccessor {
	return &AttributeAccessor{
		transactor: transactor,
		guards:     guards,
	}
}

// Get returns the value of one attribute of instance.
// Unknown IDs fail with ErrNotFound, empty values with ErrNoValue.
func (a *AttributeAccessor) Get(instance *entities.Product, attributeID string, attrs *entities.AttributeSet) (interface{}, error) {
	if instance == nil {
		return nil, apperrors.NewValidationError("instance", "is required")
	}

	def, err := attrs.Lookup(attributeID)
	if err != nil {
		return nil, err
	}

	var value interface{}
	switch def.Group {
	case entities.AttributeGroupSystem:
		value = instance.System[attributeID]
	case entities.AttributeGroupCustom:
		value = instance.Custom[attributeID]
	default:
		return nil, fmt.Errorf("attribute %q has invalid group %s", attributeID, def.Group)
	}

	if entities.IsEmptyValue(value) {
		return nil, fmt.Errorf("attribute %q: %w", attributeID, apperrors.ErrNoValue)
	}

	return value, nil
}

// Set writes one attribute of instance inside a single transaction.
// Unknown IDs fail with ErrNotFound before anything is written. Any failure
// after the transaction starts rolls it back and returns a WriteRejectedError.
// instance is updated only after the write commits; a nil value removes the
// attribute.
func (a *AttributeAccessor) Set(ctx context.Context, instance *entities.Product, attributeID string, value interface{}, attrs *entities.AttributeSet) error {
	if instance == nil {
		return apperrors.NewValidationError("instance", "is required")
	}

	def, err := attrs.Lookup(attributeID)
	if err != nil {
		return err
	}

	normalized, err := entities.NormalizeValue(value)
	if err != nil {
		return apperrors.NewValidationError("value", err.Error())
	}

	err = a.transactor.WithinTransaction(ctx, func(ctx context.Context, repo repositories.ProductRepository) error {
		locked, err := repo.LockForUpdate(ctx, instance.ID)
		if err != nil {
			return err
		}

		if err := a.checkGuard(def, normalized, locked); err != nil {
			return err
		}

		switch def.Group {
		case entities.AttributeGroupSystem:
			return repo.SetSystemAttribute(ctx, instance.ID, attributeID, normalized)
		case entities.AttributeGroupCustom:
			return repo.SetCustomAttribute(ctx, instance.ID, attributeID, normalized)
		default:
			return fmt.Errorf("attribute %q has invalid group %s", attributeID, def.Group)
		}
	})
	if err != nil {
		return apperrors.NewWriteRejectedError(attributeID, err)
	}

	if instance.System == nil {
		instance.System = make(map[string]interface{})
	}
	if instance.Custom == nil {
		instance.Custom = make(map[string]interface{})
	}
	surface := instance.Custom
	if def.Group == entities.AttributeGroupSystem {
		surface = instance.System
	}
	if normalized == nil {
		delete(surface, attributeID)
	} else {
		surface[attributeID] = normalized
	}

	return nil
}

func (a *AttributeAccessor) checkGuard(def *entities.AttributeDefinition, value interface{}, locked *entities.Product) error {
	if def.WriteGuard == "" {
		return nil
	}
	if a.guards == nil {
		return fmt.Errorf("attribute %q has a guard but no guard engine is configured: %w", def.ID, apperrors.ErrGuardRejected)
	}

	allowed, err := a.guards.Evaluate(def.WriteGuard, &guard.Context{
		Value:     value,
		Attribute: def.ID,
		Product:   locked.AsMap(),
	})
	if err != nil {
		return fmt.Errorf("attribute %q: %w: %v", def.ID, apperrors.ErrGuardRejected, err)
	}
	if !allowed {
		return fmt.Errorf("attribute %q: %w", def.ID, apperrors.ErrGuardRejected)
	}
	return nil
}
