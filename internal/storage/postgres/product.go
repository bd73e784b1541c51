package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rental-billing/internal/domain/product"
)

const (
	getProductsByIDsSQL = `SELECT id, name, type, daily_rate, quantity, rate_override
		FROM products WHERE id = ANY($1)`

	getPartsByProductIDsSQL = `SELECT product_id, part_product_id, quantity_per_unit, daily_rate
		FROM product_parts WHERE product_id = ANY($1) ORDER BY product_id, position`

	upsertProductSQL = `INSERT INTO products (id, name, type, daily_rate, quantity, rate_override)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			daily_rate = EXCLUDED.daily_rate,
			quantity = EXCLUDED.quantity,
			rate_override = EXCLUDED.rate_override`

	deletePartsSQL = `DELETE FROM product_parts WHERE product_id = $1`

	insertPartSQL = `INSERT INTO product_parts (product_id, position, part_product_id, quantity_per_unit, daily_rate)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ product.Catalog = (*ProductStore)(nil)

// ProductStore implements product.Catalog backed by PostgreSQL.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore returns a ProductStore that uses the given pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// GetByID returns a single product with its parts.
func (s *ProductStore) GetByID(ctx context.Context, id string) (*product.Product, error) {
	products, err := s.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, product.ErrNotFound
	}
	return &products[0], nil
}

// GetByIDs returns products matching any of the given IDs. Missing IDs are
// skipped.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := s.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	rows, err = s.pool.Query(ctx, getPartsByProductIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting product parts: %w", err)
	}
	type partRow struct {
		productID string
		part      product.Part
	}
	parts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (partRow, error) {
		var pr partRow
		err := row.Scan(&pr.productID, &pr.part.PartProductID, &pr.part.QuantityPerUnit, &pr.part.DailyRate)
		return pr, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting product parts: %w", err)
	}

	byID := make(map[string]int, len(products))
	for i := range products {
		byID[products[i].ID] = i
	}
	for _, pr := range parts {
		if i, ok := byID[pr.productID]; ok {
			products[i].Parts = append(products[i].Parts, pr.part)
		}
	}
	return products, nil
}

// Upsert inserts or replaces a product and its part list.
func (s *ProductStore) Upsert(ctx context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, "validate product")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, string(p.Type), p.DailyRate, p.Quantity, p.RateOverride,
		); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
		if _, err := tx.Exec(ctx, deletePartsSQL, p.ID); err != nil {
			return fmt.Errorf("clearing parts of %q: %w", p.ID, err)
		}
		for i, part := range p.Parts {
			if _, err := tx.Exec(ctx, insertPartSQL,
				p.ID, i, part.PartProductID, part.QuantityPerUnit, part.DailyRate,
			); err != nil {
				return fmt.Errorf("inserting part %q of %q: %w", part.PartProductID, p.ID, err)
			}
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p   product.Product
		typ string
	)
	err := row.Scan(&p.ID, &p.Name, &typ, &p.DailyRate, &p.Quantity, &p.RateOverride)
	p.Type = product.Type(typ)
	return p, err
}
