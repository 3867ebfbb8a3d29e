package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/vimana?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "vimana"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestPageQuery(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	query, args := pageQuery("SELECT * FROM orders WHERE algo_instance_id = $1", []any{int64(3)},
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t, "SELECT * FROM orders WHERE algo_instance_id = $1 AND created_at >= $2"+
		" ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4", query)
	assert.Equal(t, []any{int64(3), since, 10, 20}, args)
}

func TestPageQueryDefaultLimit(t *testing.T) {
	_, args := pageQuery("SELECT 1 WHERE TRUE", nil, domain.ListOpts{})
	assert.Equal(t, []any{100}, args)
}

func TestScanNumeric(t *testing.T) {
	var a, b decimal.Decimal
	require.NoError(t, scanNumeric([]*decimal.Decimal{&a, &b}, []string{"0.00500000", "12.5"}))
	assert.Equal(t, "0.005", a.String())
	assert.Equal(t, "12.5", b.String())

	assert.Error(t, scanNumeric([]*decimal.Decimal{&a}, []string{"abc"}))
}
