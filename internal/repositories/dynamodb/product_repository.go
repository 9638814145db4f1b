// Package dynamodb stores products in a single DynamoDB table.
//
// Each product is one item keyed by PK "PRODUCT#<id>" and SK "PRODUCT",
// holding the two attribute surfaces as the maps "system" and "custom".
// DynamoDB has no row locks, so a transaction records the version seen by
// LockForUpdate and commits with a condition on it.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	appconfig "github.com/asakaida/attrgate/internal/infrastructure/config"
	"github.com/asakaida/attrgate/internal/repositories"
)

const (
	keyPrefix = "PRODUCT#"
	sortKey   = "PRODUCT"
)

// readOnlySystem lists system attributes maintained by the store itself
var readOnlySystem = map[string]bool{
	"ID":           true,
	"creationDate": true,
	"lastModified": true,
}

// Client is the subset of the DynamoDB API the product store uses
type Client interface {
	GetItem(ctx context.Context, params *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	PutItem(ctx context.Context, params *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, params *sdk.TransactWriteItemsInput, optFns ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error)
}

// productItem is the stored shape of a product
type productItem struct {
	PK           string                 `dynamodbav:"PK"`
	SK           string                 `dynamodbav:"SK"`
	ID           string                 `dynamodbav:"id"`
	System       map[string]interface{} `dynamodbav:"system"`
	Custom       map[string]interface{} `dynamodbav:"custom"`
	CreationDate string                 `dynamodbav:"creationDate"`
	LastModified string                 `dynamodbav:"lastModified"`
	Version      int64                  `dynamodbav:"version"`
}

// NewClient creates a DynamoDB client from the store configuration
func NewClient(ctx context.Context, cfg appconfig.DynamoDBConfig) (*sdk.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func itemKey(productID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: keyPrefix + productID},
		"SK": &types.AttributeValueMemberS{Value: sortKey},
	}
}

// DynamoProductRepository implements ProductRepository on DynamoDB.
// Writes made outside a transaction commit immediately, one item per call.
type DynamoProductRepository struct {
	client Client
	table  string
	now    func() time.Time
}

// NewDynamoProductRepository creates a new DynamoDB product repository
func NewDynamoProductRepository(client Client, table string) repositories.ProductRepository {
	return &DynamoProductRepository{client: client, table: table, now: time.Now}
}

// GetByID loads a product with a strongly consistent read
func (r *DynamoProductRepository) GetByID(ctx context.Context, productID string) (*entities.Product, error) {
	product, _, err := r.load(ctx, productID)
	return product, err
}

// LockForUpdate reads the product; outside a transaction it takes no lock
func (r *DynamoProductRepository) LockForUpdate(ctx context.Context, productID string) (*entities.Product, error) {
	return r.GetByID(ctx, productID)
}

func (r *DynamoProductRepository) load(ctx context.Context, productID string) (*entities.Product, int64, error) {
	out, err := r.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            itemKey(productID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get product: %w", err)
	}
	if out.Item == nil {
		return nil, 0, apperrors.NewNotFoundError("product", productID)
	}

	var item productItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal product: %w", err)
	}

	product := entities.NewProduct(productID)
	if err := copyNormalized(product.System, item.System); err != nil {
		return nil, 0, err
	}
	if err := copyNormalized(product.Custom, item.Custom); err != nil {
		return nil, 0, err
	}
	product.System["ID"] = productID
	if item.CreationDate != "" {
		product.System["creationDate"] = item.CreationDate
	}
	if item.LastModified != "" {
		product.System["lastModified"] = item.LastModified
		if t, err := time.Parse(time.RFC3339, item.LastModified); err == nil {
			product.LastModified = t
		}
	}

	return product, item.Version, nil
}

func copyNormalized(dst, src map[string]interface{}) error {
	for k, v := range src {
		nv, err := entities.NormalizeValue(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		dst[k] = nv
	}
	return nil
}

// SetSystemAttribute writes one system attribute immediately
func (r *DynamoProductRepository) SetSystemAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	uow := newUnitOfWork(r)
	if err := uow.SetSystemAttribute(ctx, productID, attributeID, value); err != nil {
		return err
	}
	return uow.flush(ctx)
}

// SetCustomAttribute writes one custom attribute immediately
func (r *DynamoProductRepository) SetCustomAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	uow := newUnitOfWork(r)
	if err := uow.SetCustomAttribute(ctx, productID, attributeID, value); err != nil {
		return err
	}
	return uow.flush(ctx)
}

// Create puts a new product item; an existing product is left unchanged
func (r *DynamoProductRepository) Create(ctx context.Context, product *entities.Product) error {
	now := r.now().UTC().Format(time.RFC3339)
	item := productItem{
		PK:           keyPrefix + product.ID,
		SK:           sortKey,
		ID:           product.ID,
		System:       make(map[string]interface{}),
		Custom:       make(map[string]interface{}),
		CreationDate: now,
		LastModified: now,
		Version:      1,
	}
	for k, v := range product.System {
		if !readOnlySystem[k] {
			item.System[k] = v
		}
	}
	for k, v := range product.Custom {
		item.Custom[k] = v
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	_, err = r.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return nil
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// DynamoTransactor implements Transactor with a buffered unit of work
type DynamoTransactor struct {
	repo *DynamoProductRepository
}

// NewDynamoTransactor creates a new DynamoDB transactor
func NewDynamoTransactor(client Client, table string) repositories.Transactor {
	return &DynamoTransactor{repo: &DynamoProductRepository{client: client, table: table, now: time.Now}}
}

// WithinTransaction buffers every write fn makes and commits them with a
// single TransactWriteItems call. Nothing is sent when fn fails.
// Reads inside fn see committed data, not the buffered writes.
func (t *DynamoTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo repositories.ProductRepository) error) error {
	uow := newUnitOfWork(t.repo)
	if err := fn(ctx, uow); err != nil {
		return err
	}
	return uow.flush(ctx)
}
