package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. The
// summary and the execution context are kept as JSONB.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given connection pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `id, algo_instance_id, summary, context, needs_conciliation, conciliation_id, created_at, updated_at`

// Create inserts the execution and returns it with its id and timestamps.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.ArbitrageExecution) (domain.ArbitrageExecution, error) {
	summaryJSON, err := json.Marshal(exec.Summary)
	if err != nil {
		return domain.ArbitrageExecution{}, fmt.Errorf("postgres: marshal summary: %w", err)
	}
	contextJSON, err := json.Marshal(exec.Context)
	if err != nil {
		return domain.ArbitrageExecution{}, fmt.Errorf("postgres: marshal execution context: %w", err)
	}

	const query = `
		INSERT INTO arbitrage_executions (algo_instance_id, summary, context, needs_conciliation)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + executionColumns

	row := s.pool.QueryRow(ctx, query, exec.AlgoInstanceID, summaryJSON, contextJSON, exec.NeedsConciliation)
	out, err := scanExecution(row)
	if err != nil {
		return domain.ArbitrageExecution{}, fmt.Errorf("postgres: create execution: %w", err)
	}
	return out, nil
}

// GetByID returns a single execution.
func (s *ExecutionStore) GetByID(ctx context.Context, id int64) (domain.ArbitrageExecution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM arbitrage_executions WHERE id = $1`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageExecution{}, domain.ErrNotFound
		}
		return domain.ArbitrageExecution{}, fmt.Errorf("postgres: get execution %d: %w", id, err)
	}
	return exec, nil
}

// ListByInstance returns the executions of an instance, newest first.
func (s *ExecutionStore) ListByInstance(ctx context.Context, instanceID int64, opts domain.ListOpts) ([]domain.ArbitrageExecution, error) {
	query, args := pageQuery(
		`SELECT `+executionColumns+` FROM arbitrage_executions WHERE algo_instance_id = $1`,
		[]any{instanceID}, opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions of %d: %w", instanceID, err)
	}
	return collectExecutions(rows)
}

// ListPendingConciliation returns the short only executions no conciliation
// covered yet, oldest first.
func (s *ExecutionStore) ListPendingConciliation(ctx context.Context, instanceID int64) ([]domain.ArbitrageExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM arbitrage_executions
		WHERE algo_instance_id = $1 AND needs_conciliation AND conciliation_id IS NULL
		ORDER BY id`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending conciliation of %d: %w", instanceID, err)
	}
	return collectExecutions(rows)
}

// UpdateSummary replaces the summary of an execution.
func (s *ExecutionStore) UpdateSummary(ctx context.Context, id int64, summary domain.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("postgres: marshal summary: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE arbitrage_executions SET summary = $1, updated_at = NOW() WHERE id = $2`,
		summaryJSON, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update summary %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkConciliated links the executions to a conciliation and clears their
// conciliation flag.
func (s *ExecutionStore) MarkConciliated(ctx context.Context, ids []int64, conciliationID int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE arbitrage_executions
		SET conciliation_id = $1, needs_conciliation = FALSE, updated_at = NOW()
		WHERE id = ANY($2)`,
		conciliationID, ids,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark conciliated %d: %w", conciliationID, err)
	}
	return nil
}

func scanExecution(row pgx.Row) (domain.ArbitrageExecution, error) {
	var exec domain.ArbitrageExecution
	var summaryJSON, contextJSON []byte
	if err := row.Scan(&exec.ID, &exec.AlgoInstanceID, &summaryJSON, &contextJSON,
		&exec.NeedsConciliation, &exec.ConciliationID, &exec.CreatedAt, &exec.UpdatedAt); err != nil {
		return domain.ArbitrageExecution{}, err
	}
	if err := json.Unmarshal(summaryJSON, &exec.Summary); err != nil {
		return domain.ArbitrageExecution{}, fmt.Errorf("postgres: unmarshal summary %d: %w", exec.ID, err)
	}
	if err := json.Unmarshal(contextJSON, &exec.Context); err != nil {
		return domain.ArbitrageExecution{}, fmt.Errorf("postgres: unmarshal execution context %d: %w", exec.ID, err)
	}
	return exec, nil
}

func collectExecutions(rows pgx.Rows) ([]domain.ArbitrageExecution, error) {
	defer rows.Close()
	var list []domain.ArbitrageExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, exec)
	}
	return list, rows.Err()
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
