package catalog

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresCatalog reads the products table
type PostgresCatalog struct {
	db       *sqlx.DB
	currency string
}

func NewPostgresCatalog(db *sqlx.DB, currency string) *PostgresCatalog {
	return &PostgresCatalog{db: db, currency: currency}
}

func (c *PostgresCatalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	var products []Product
	err := c.db.SelectContext(ctx, &products,
		`SELECT id, name, price, currency, active FROM products WHERE active AND currency = $1`,
		c.currency,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return NewSnapshot(c.currency, products), nil
}
