package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
)

const (
	surfaceSystem = "system"
	surfaceCustom = "custom"
)

// pendingWrite is one buffered attribute assignment; a nil value removes it
type pendingWrite struct {
	surface string
	id      string
	value   interface{}
}

// productChanges collects the writes to one product.
// DynamoDB rejects a transaction touching the same item twice, so all
// writes to a product become one Update.
type productChanges struct {
	writes  []pendingWrite
	version int64 // Version observed by LockForUpdate, 0 if not locked
	locked  bool
}

// unitOfWork implements ProductRepository by buffering writes until flush
type unitOfWork struct {
	repo    *DynamoProductRepository
	changes map[string]*productChanges
}

func newUnitOfWork(repo *DynamoProductRepository) *unitOfWork {
	return &unitOfWork{repo: repo, changes: make(map[string]*productChanges)}
}

func (u *unitOfWork) changesFor(productID string) *productChanges {
	c, ok := u.changes[productID]
	if !ok {
		c = &productChanges{}
		u.changes[productID] = c
	}
	return c
}

func (u *unitOfWork) GetByID(ctx context.Context, productID string) (*entities.Product, error) {
	return u.repo.GetByID(ctx, productID)
}

// LockForUpdate records the current version; commit fails if it changes
func (u *unitOfWork) LockForUpdate(ctx context.Context, productID string) (*entities.Product, error) {
	product, version, err := u.repo.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	c := u.changesFor(productID)
	if !c.locked {
		c.version = version
		c.locked = true
	}
	return product, nil
}

func (u *unitOfWork) SetSystemAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	if readOnlySystem[attributeID] {
		return fmt.Errorf("system attribute %q: %w", attributeID, apperrors.ErrReadOnly)
	}
	c := u.changesFor(productID)
	c.writes = append(c.writes, pendingWrite{surface: surfaceSystem, id: attributeID, value: value})
	return nil
}

func (u *unitOfWork) SetCustomAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	c := u.changesFor(productID)
	c.writes = append(c.writes, pendingWrite{surface: surfaceCustom, id: attributeID, value: value})
	return nil
}

func (u *unitOfWork) Create(ctx context.Context, product *entities.Product) error {
	return u.repo.Create(ctx, product)
}

// flush commits all buffered writes atomically
func (u *unitOfWork) flush(ctx context.Context) error {
	ids := make([]string, 0, len(u.changes))
	for id, c := range u.changes {
		if len(c.writes) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	now := u.repo.now().UTC().Format(time.RFC3339)
	items := make([]types.TransactWriteItem, 0, len(ids))
	for _, id := range ids {
		update, err := u.buildUpdate(id, u.changes[id], now)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}

	_, err := u.repo.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return u.translateError(err, ids)
	}

	u.changes = make(map[string]*productChanges)
	return nil
}

func (u *unitOfWork) buildUpdate(productID string, c *productChanges, now string) (*types.Update, error) {
	names := map[string]string{
		"#pk":      "PK",
		"#version": "version",
		"#lm":      "lastModified",
	}
	values := map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberS{Value: now},
		":one": &types.AttributeValueMemberN{Value: "1"},
	}

	// Last write to an attribute wins within one transaction
	final := make(map[string]pendingWrite)
	order := make([]string, 0, len(c.writes))
	for _, w := range c.writes {
		key := w.surface + "." + w.id
		if _, seen := final[key]; !seen {
			order = append(order, key)
		}
		final[key] = w
	}

	var sets, removes []string
	for i, key := range order {
		w := final[key]
		surfaceName := "#s" + w.surface
		names[surfaceName] = w.surface
		attrName := fmt.Sprintf("#a%d", i)
		names[attrName] = w.id
		path := surfaceName + "." + attrName

		if w.value == nil {
			removes = append(removes, path)
			continue
		}
		av, err := attributevalue.Marshal(w.value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attribute %q: %w", w.id, err)
		}
		valueName := fmt.Sprintf(":v%d", i)
		values[valueName] = av
		sets = append(sets, path+" = "+valueName)
	}
	sets = append(sets, "#lm = :now", "#version = #version + :one")

	expr := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	condition := "attribute_exists(#pk)"
	if c.locked {
		condition += " AND #version = :expected"
		values[":expected"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", c.version)}
	}

	return &types.Update{
		TableName:                 aws.String(u.repo.table),
		Key:                       itemKey(productID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}, nil
}

// translateError maps a cancelled transaction to a domain error.
// CancellationReasons are positional, matching the sorted product IDs.
func (u *unitOfWork) translateError(err error, ids []string) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("failed to commit product writes: %w", err)
	}

	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(ids) {
			continue
		}
		id := ids[i]
		if u.changes[id].locked {
			return fmt.Errorf("product %q was modified concurrently: %w", id, err)
		}
		return apperrors.NewNotFoundError("product", id)
	}

	return fmt.Errorf("product write transaction cancelled: %w", err)
}
