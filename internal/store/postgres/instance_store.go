package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// InstanceStore implements domain.InstanceStore using PostgreSQL.
type InstanceStore struct {
	pool *pgxpool.Pool
}

// NewInstanceStore creates a new InstanceStore backed by the given connection pool.
func NewInstanceStore(pool *pgxpool.Pool) *InstanceStore {
	return &InstanceStore{pool: pool}
}

const instanceColumns = `id, algo_kind, active, ended_at, created_at, updated_at`

// CreateActive inserts an active instance of kind. The (algo_kind, active)
// unique index rejects a second live instance of the same kind.
func (s *InstanceStore) CreateActive(ctx context.Context, kind domain.AlgoKind) (domain.AlgoInstance, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO algo_instances (algo_kind, active) VALUES ($1, TRUE) RETURNING `+instanceColumns,
		string(kind),
	)
	inst, err := scanInstance(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.AlgoInstance{}, fmt.Errorf("postgres: create instance %s: %w", kind, domain.ErrAlreadyExists)
		}
		return domain.AlgoInstance{}, fmt.Errorf("postgres: create instance %s: %w", kind, err)
	}
	return inst, nil
}

// GetByID returns a single instance.
func (s *InstanceStore) GetByID(ctx context.Context, id int64) (domain.AlgoInstance, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM algo_instances WHERE id = $1`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AlgoInstance{}, domain.ErrNotFound
		}
		return domain.AlgoInstance{}, fmt.Errorf("postgres: get instance %d: %w", id, err)
	}
	return inst, nil
}

// ListActive returns the instances that have not ended.
func (s *InstanceStore) ListActive(ctx context.Context) ([]domain.AlgoInstance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM algo_instances WHERE active IS TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active instances: %w", err)
	}
	defer rows.Close()

	var list []domain.AlgoInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inst)
	}
	return list, rows.Err()
}

// End records the end of an instance and releases its kind for a new one.
func (s *InstanceStore) End(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE algo_instances SET active = NULL, ended_at = NOW(), updated_at = NOW() WHERE id = $1 AND ended_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("postgres: end instance %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanInstance(row pgx.Row) (domain.AlgoInstance, error) {
	var inst domain.AlgoInstance
	var kind string
	if err := row.Scan(&inst.ID, &kind, &inst.Active, &inst.EndedAt, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return domain.AlgoInstance{}, err
	}
	inst.AlgoKind = domain.AlgoKind(kind)
	return inst, nil
}

var _ domain.InstanceStore = (*InstanceStore)(nil)
