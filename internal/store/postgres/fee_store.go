package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// FeeStore implements domain.FeeStore using PostgreSQL.
type FeeStore struct {
	pool *pgxpool.Pool
}

// NewFeeStore creates a new FeeStore backed by the given connection pool.
func NewFeeStore(pool *pgxpool.Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

const feeColumns = `id, service, service_provider, fixed::text, rate::text, created_at, updated_at`

// List returns every fee ordered by provider and service.
func (s *FeeStore) List(ctx context.Context) ([]domain.Fee, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+feeColumns+` FROM fees ORDER BY service_provider, service`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fees: %w", err)
	}
	return collectFees(rows)
}

// Find returns the fees of a provider restricted to the given services.
func (s *FeeStore) Find(ctx context.Context, provider string, services []string) ([]domain.Fee, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+feeColumns+` FROM fees WHERE service_provider = $1 AND service = ANY($2) ORDER BY service`,
		provider, services,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: find fees %s: %w", provider, err)
	}
	return collectFees(rows)
}

// Upsert inserts the fee or updates the existing (provider, service) row.
func (s *FeeStore) Upsert(ctx context.Context, fee domain.Fee) (domain.Fee, error) {
	const query = `
		INSERT INTO fees (service, service_provider, fixed, rate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service_provider, service)
		DO UPDATE SET fixed = EXCLUDED.fixed, rate = EXCLUDED.rate, updated_at = NOW()
		RETURNING ` + feeColumns

	row := s.pool.QueryRow(ctx, query,
		fee.Service, fee.ServiceProvider, fee.Fixed.String(), fee.Rate.String(),
	)
	out, err := scanFee(row)
	if err != nil {
		return domain.Fee{}, fmt.Errorf("postgres: upsert fee %s/%s: %w", fee.ServiceProvider, fee.Service, err)
	}
	return out, nil
}

func scanFee(row pgx.Row) (domain.Fee, error) {
	var f domain.Fee
	var fixed, rate string
	if err := row.Scan(&f.ID, &f.Service, &f.ServiceProvider, &fixed, &rate, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Fee{}, domain.ErrNotFound
		}
		return domain.Fee{}, err
	}
	if err := scanNumeric([]*decimal.Decimal{&f.Fixed, &f.Rate}, []string{fixed, rate}); err != nil {
		return domain.Fee{}, err
	}
	return f, nil
}

func collectFees(rows pgx.Rows) ([]domain.Fee, error) {
	defer rows.Close()
	var list []domain.Fee
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

var _ domain.FeeStore = (*FeeStore)(nil)
