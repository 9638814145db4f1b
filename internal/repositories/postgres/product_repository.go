package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/repositories"
	"github.com/lib/pq"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type columnKind int

const (
	textColumn columnKind = iota
	boolColumn
	timeColumn
)

// productColumn maps a system attribute ID to its fixed products column
type productColumn struct {
	attributeID string
	name        string
	kind        columnKind
	readOnly    bool
}

// productColumns lists the system surface in SELECT order
var productColumns = []productColumn{
	{attributeID: "ID", name: "id", kind: textColumn, readOnly: true},
	{attributeID: "name", name: "name", kind: textColumn},
	{attributeID: "shortDescription", name: "short_description", kind: textColumn},
	{attributeID: "longDescription", name: "long_description", kind: textColumn},
	{attributeID: "brand", name: "brand", kind: textColumn},
	{attributeID: "manufacturerName", name: "manufacturer_name", kind: textColumn},
	{attributeID: "manufacturerSKU", name: "manufacturer_sku", kind: textColumn},
	{attributeID: "EAN", name: "ean", kind: textColumn},
	{attributeID: "UPC", name: "upc", kind: textColumn},
	{attributeID: "unit", name: "unit", kind: textColumn},
	{attributeID: "taxClassID", name: "tax_class_id", kind: textColumn},
	{attributeID: "pageTitle", name: "page_title", kind: textColumn},
	{attributeID: "pageDescription", name: "page_description", kind: textColumn},
	{attributeID: "online", name: "online", kind: boolColumn},
	{attributeID: "searchable", name: "searchable", kind: boolColumn},
	{attributeID: "creationDate", name: "creation_date", kind: timeColumn, readOnly: true},
	{attributeID: "lastModified", name: "last_modified", kind: timeColumn, readOnly: true},
}

var productColumnsByAttribute = func() map[string]productColumn {
	m := make(map[string]productColumn, len(productColumns))
	for _, c := range productColumns {
		m[c.attributeID] = c
	}
	return m
}()

// SystemAttributeIDs returns the system attribute IDs backed by a products column
func SystemAttributeIDs() []string {
	ids := make([]string, len(productColumns))
	for i, c := range productColumns {
		ids[i] = c.attributeID
	}
	return ids
}

// PostgresProductRepository implements ProductRepository using PostgreSQL
type PostgresProductRepository struct {
	db  dbtx
	now func() time.Time
}

// NewPostgresProductRepository creates a new PostgreSQL product repository
func NewPostgresProductRepository(db *sql.DB) repositories.ProductRepository {
	return &PostgresProductRepository{db: db, now: time.Now}
}

func selectProductQuery(forUpdate bool) string {
	names := make([]string, len(productColumns))
	for i, c := range productColumns {
		names[i] = c.name
	}
	query := fmt.Sprintf("SELECT %s, custom FROM products WHERE id = $1", strings.Join(names, ", "))
	if forUpdate {
		query += " FOR UPDATE"
	}
	return query
}

// GetByID loads a product with both attribute surfaces
func (r *PostgresProductRepository) GetByID(ctx context.Context, productID string) (*entities.Product, error) {
	return r.load(ctx, productID, false)
}

// LockForUpdate loads a product with a row lock held until the transaction ends
func (r *PostgresProductRepository) LockForUpdate(ctx context.Context, productID string) (*entities.Product, error) {
	return r.load(ctx, productID, true)
}

func (r *PostgresProductRepository) load(ctx context.Context, productID string, forUpdate bool) (*entities.Product, error) {
	texts := make([]sql.NullString, len(productColumns))
	bools := make([]sql.NullBool, len(productColumns))
	times := make([]sql.NullTime, len(productColumns))
	var customJSON []byte

	dest := make([]interface{}, 0, len(productColumns)+1)
	for i, c := range productColumns {
		switch c.kind {
		case boolColumn:
			dest = append(dest, &bools[i])
		case timeColumn:
			dest = append(dest, &times[i])
		default:
			dest = append(dest, &texts[i])
		}
	}
	dest = append(dest, &customJSON)

	err := r.db.QueryRowContext(ctx, selectProductQuery(forUpdate), productID).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("product", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	product := entities.NewProduct(productID)
	for i, c := range productColumns {
		switch c.kind {
		case boolColumn:
			if bools[i].Valid {
				product.System[c.attributeID] = bools[i].Bool
			}
		case timeColumn:
			if times[i].Valid {
				product.System[c.attributeID] = times[i].Time.UTC().Format(time.RFC3339)
				if c.name == "last_modified" {
					product.LastModified = times[i].Time
				}
			}
		default:
			if texts[i].Valid {
				product.System[c.attributeID] = texts[i].String
			}
		}
	}

	if len(customJSON) > 0 {
		if err := json.Unmarshal(customJSON, &product.Custom); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom attributes: %w", err)
		}
		if product.Custom == nil {
			product.Custom = make(map[string]interface{})
		}
	}

	return product, nil
}

// SetSystemAttribute writes one fixed column of a product
func (r *PostgresProductRepository) SetSystemAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	col, ok := productColumnsByAttribute[attributeID]
	if !ok {
		return fmt.Errorf("system attribute %q has no products column: %w", attributeID, apperrors.ErrReadOnly)
	}
	if col.readOnly {
		return fmt.Errorf("system attribute %q: %w", attributeID, apperrors.ErrReadOnly)
	}

	param, err := columnParam(value)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"UPDATE products SET %s = $1, last_modified = $2 WHERE id = $3",
		pq.QuoteIdentifier(col.name),
	)
	result, err := r.db.ExecContext(ctx, query, param, r.now(), productID)
	if err != nil {
		return fmt.Errorf("failed to write system attribute %q: %w", attributeID, translateWriteError(err))
	}

	return checkProductAffected(result, productID)
}

// SetCustomAttribute writes one key of the custom JSONB mapping.
// A nil value removes the key.
func (r *PostgresProductRepository) SetCustomAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error {
	var (
		result sql.Result
		err    error
	)

	if value == nil {
		query := `
			UPDATE products
			SET custom = COALESCE(custom, '{}'::jsonb) - $1, last_modified = $2
			WHERE id = $3
		`
		result, err = r.db.ExecContext(ctx, query, attributeID, r.now(), productID)
	} else {
		valueJSON, merr := json.Marshal(value)
		if merr != nil {
			return fmt.Errorf("failed to marshal custom attribute value: %w", merr)
		}
		query := `
			UPDATE products
			SET custom = jsonb_set(COALESCE(custom, '{}'::jsonb), ARRAY[$1]::text[], $2::jsonb, true), last_modified = $3
			WHERE id = $4
		`
		result, err = r.db.ExecContext(ctx, query, attributeID, string(valueJSON), r.now(), productID)
	}
	if err != nil {
		return fmt.Errorf("failed to write custom attribute %q: %w", attributeID, translateWriteError(err))
	}

	return checkProductAffected(result, productID)
}

// Create inserts a product with the given surfaces.
// Used by seeding; unknown or read-only system attributes are ignored.
func (r *PostgresProductRepository) Create(ctx context.Context, product *entities.Product) error {
	names := []string{"id"}
	args := []interface{}{product.ID}
	for _, c := range productColumns {
		if c.readOnly {
			continue
		}
		v, ok := product.System[c.attributeID]
		if !ok {
			continue
		}
		param, err := columnParam(v)
		if err != nil {
			return err
		}
		names = append(names, pq.QuoteIdentifier(c.name))
		args = append(args, param)
	}

	custom := product.Custom
	if custom == nil {
		custom = map[string]interface{}{}
	}
	customJSON, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("failed to marshal custom attributes: %w", err)
	}
	names = append(names, "custom")
	args = append(args, string(customJSON))

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO products (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING",
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// columnParam converts a normalized attribute value into a driver argument.
// Lists and objects are stored as their JSON text.
func columnParam(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attribute value: %w", err)
		}
		return string(data), nil
	default:
		return v, nil
	}
}

func checkProductAffected(result sql.Result, productID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError("product", productID)
	}
	return nil
}

// translateWriteError maps permission failures reported by PostgreSQL to ErrReadOnly
func translateWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "25006", "42501": // read_only_sql_transaction, insufficient_privilege
			return fmt.Errorf("%w: %s", apperrors.ErrReadOnly, pqErr.Message)
		}
	}
	return err
}

// PostgresTransactor implements Transactor with a database/sql transaction
type PostgresTransactor struct {
	db *sql.DB
}

// NewPostgresTransactor creates a new PostgreSQL transactor
func NewPostgresTransactor(db *sql.DB) repositories.Transactor {
	return &PostgresTransactor{db: db}
}

// WithinTransaction runs fn in a transaction and commits only if fn succeeds
func (t *PostgresTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo repositories.ProductRepository) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &PostgresProductRepository{db: tx, now: time.Now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
