package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create records an order accepted by the OMS. Orders without an execution
// (conciliation orders) are stored with a NULL execution.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) (domain.Order, error) {
	var executionID *int64
	if o.ExecutionID != 0 {
		executionID = &o.ExecutionID
	}

	const query = `
		INSERT INTO orders (
			oms_order_id, algo_instance_id, exchange, symbol, side, order_type,
			quantity, price, exchange_order_id, arbitrage_execution_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		o.ID, o.AlgoInstanceID, o.Exchange, o.Symbol, string(o.Side), string(o.Type),
		o.Quantity.String(), o.Price.String(), o.ExchangeOrderID, executionID,
	).Scan(&o.CreatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: create order %d: %w", o.ID, err)
	}
	return o, nil
}

// ListByInstance returns the orders of an instance, newest first.
func (s *OrderStore) ListByInstance(ctx context.Context, instanceID int64, opts domain.ListOpts) ([]domain.Order, error) {
	query, args := pageQuery(`
		SELECT oms_order_id, algo_instance_id, exchange, symbol, side, order_type,
			quantity::text, price::text, exchange_order_id, COALESCE(arbitrage_execution_id, 0), created_at
		FROM orders WHERE algo_instance_id = $1`,
		[]any{instanceID}, opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders of %d: %w", instanceID, err)
	}
	defer rows.Close()

	var list []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, orderType, qty, price string
		if err := rows.Scan(&o.ID, &o.AlgoInstanceID, &o.Exchange, &o.Symbol, &side, &orderType,
			&qty, &price, &o.ExchangeOrderID, &o.ExecutionID, &o.CreatedAt); err != nil {
			return nil, err
		}
		if err := scanNumeric([]*decimal.Decimal{&o.Quantity, &o.Price}, []string{qty, price}); err != nil {
			return nil, err
		}
		o.Side = domain.OrderSide(side)
		o.Type = domain.OrderType(orderType)
		list = append(list, o)
	}
	return list, rows.Err()
}

var _ domain.OrderStore = (*OrderStore)(nil)
