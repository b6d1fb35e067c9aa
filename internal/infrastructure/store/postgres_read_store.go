package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/glam-checkout/internal/readmodel"
)

// PostgresReadStore implements OrderReadStore on the read_orders table
type PostgresReadStore struct {
	db *sqlx.DB
}

func NewPostgresReadStore(db *sqlx.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

type orderRow struct {
	readmodel.OrderReadModel
	ItemsJSON    []byte `db:"items"`
	AttemptsJSON []byte `db:"attempts"`
}

func (r *orderRow) decode() (*readmodel.OrderReadModel, error) {
	o := r.OrderReadModel
	if err := json.Unmarshal(r.ItemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of %s: %w", o.Ref, err)
	}
	if err := json.Unmarshal(r.AttemptsJSON, &o.Attempts); err != nil {
		return nil, fmt.Errorf("failed to decode attempts of %s: %w", o.Ref, err)
	}
	return &o, nil
}

func encodeOrder(o *readmodel.OrderReadModel) (*orderRow, error) {
	items, err := json.Marshal(nonNil(o.Items))
	if err != nil {
		return nil, err
	}
	attempts, err := json.Marshal(nonNil(o.Attempts))
	if err != nil {
		return nil, err
	}
	return &orderRow{OrderReadModel: *o, ItemsJSON: items, AttemptsJSON: attempts}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

const selectOrder = `SELECT order_ref, order_id, items, amount, currency, buyer_name, buyer_email, buyer_phone,
		status, payment_ref, failure_reason, attempts, created_at, updated_at, verified_at, version
	FROM read_orders`

const upsertOrder = `INSERT INTO read_orders (order_ref, order_id, items, amount, currency, buyer_name, buyer_email,
		buyer_phone, status, payment_ref, failure_reason, attempts, created_at, updated_at, verified_at, version)
	VALUES (:order_ref, :order_id, :items, :amount, :currency, :buyer_name, :buyer_email,
		:buyer_phone, :status, :payment_ref, :failure_reason, :attempts, :created_at, :updated_at, :verified_at, :version)
	ON CONFLICT (order_ref) DO UPDATE SET
		status = EXCLUDED.status,
		payment_ref = EXCLUDED.payment_ref,
		failure_reason = EXCLUDED.failure_reason,
		attempts = EXCLUDED.attempts,
		updated_at = EXCLUDED.updated_at,
		verified_at = EXCLUDED.verified_at,
		version = EXCLUDED.version`

func (rs *PostgresReadStore) UpsertOrder(ctx context.Context, o *readmodel.OrderReadModel) error {
	row, err := encodeOrder(o)
	if err != nil {
		return err
	}
	if _, err := rs.db.NamedExecContext(ctx, upsertOrder, row); err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.Ref, err)
	}
	return nil
}

func (rs *PostgresReadStore) GetOrder(ctx context.Context, ref string) (*readmodel.OrderReadModel, error) {
	return rs.getOrder(ctx, rs.db, ref, "")
}

func (rs *PostgresReadStore) getOrder(ctx context.Context, q sqlx.QueryerContext, ref, suffix string) (*readmodel.OrderReadModel, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, q, &row, selectOrder+" WHERE order_ref = $1"+suffix, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", ref, err)
	}
	return row.decode()
}

// UpdateOrder locks the row for the read-modify-write.
func (rs *PostgresReadStore) UpdateOrder(ctx context.Context, ref string, fn func(*readmodel.OrderReadModel)) error {
	tx, err := rs.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := rs.getOrder(ctx, tx, ref, " FOR UPDATE")
	if err != nil {
		return err
	}
	fn(o)

	row, err := encodeOrder(o)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, upsertOrder, row); err != nil {
		return fmt.Errorf("failed to update order %s: %w", ref, err)
	}
	return tx.Commit()
}

func (rs *PostgresReadStore) ListByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]*readmodel.OrderReadModel, error) {
	var rows []orderRow
	err := rs.db.SelectContext(ctx, &rows,
		selectOrder+" WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC",
		status, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	out := make([]*readmodel.OrderReadModel, 0, len(rows))
	for i := range rows {
		o, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
