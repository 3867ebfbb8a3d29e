package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// ConciliationStore implements domain.ConciliationStore using PostgreSQL.
type ConciliationStore struct {
	pool *pgxpool.Pool
}

// NewConciliationStore creates a new ConciliationStore backed by the given connection pool.
func NewConciliationStore(pool *pgxpool.Pool) *ConciliationStore {
	return &ConciliationStore{pool: pool}
}

// Create stores the accumulated executions the catch-up order covers.
func (s *ConciliationStore) Create(ctx context.Context, c domain.Conciliation) (domain.Conciliation, error) {
	body, err := json.Marshal(c.Conciliation)
	if err != nil {
		return domain.Conciliation{}, fmt.Errorf("postgres: marshal conciliation: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO conciliations (algo_instance_id, conciliation) VALUES ($1, $2) RETURNING id, created_at`,
		c.AlgoInstanceID, body,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return domain.Conciliation{}, fmt.Errorf("postgres: create conciliation: %w", err)
	}
	return c, nil
}

// ListByInstance returns the conciliations of an instance, oldest first.
func (s *ConciliationStore) ListByInstance(ctx context.Context, instanceID int64) ([]domain.Conciliation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, algo_instance_id, conciliation, created_at FROM conciliations WHERE algo_instance_id = $1 ORDER BY id`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conciliations of %d: %w", instanceID, err)
	}
	defer rows.Close()

	var list []domain.Conciliation
	for rows.Next() {
		var c domain.Conciliation
		var body []byte
		if err := rows.Scan(&c.ID, &c.AlgoInstanceID, &body, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &c.Conciliation); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal conciliation %d: %w", c.ID, err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

var _ domain.ConciliationStore = (*ConciliationStore)(nil)
