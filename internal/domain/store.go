package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// FeeStore persists provider fees.
type FeeStore interface {
	List(ctx context.Context) ([]Fee, error)
	Find(ctx context.Context, provider string, services []string) ([]Fee, error)
	Upsert(ctx context.Context, fee Fee) (Fee, error)
}

// InstanceStore persists algo instances.
type InstanceStore interface {
	// CreateActive inserts a new active instance. It returns ErrAlreadyExists
	// when the kind already has an active instance.
	CreateActive(ctx context.Context, kind AlgoKind) (AlgoInstance, error)
	GetByID(ctx context.Context, id int64) (AlgoInstance, error)
	ListActive(ctx context.Context) ([]AlgoInstance, error)
	End(ctx context.Context, id int64) error
}

// ExecutionStore persists arbitrage executions.
type ExecutionStore interface {
	Create(ctx context.Context, exec ArbitrageExecution) (ArbitrageExecution, error)
	GetByID(ctx context.Context, id int64) (ArbitrageExecution, error)
	ListByInstance(ctx context.Context, instanceID int64, opts ListOpts) ([]ArbitrageExecution, error)
	// ListPendingConciliation returns the executions flagged for conciliation
	// that no conciliation has covered yet.
	ListPendingConciliation(ctx context.Context, instanceID int64) ([]ArbitrageExecution, error)
	UpdateSummary(ctx context.Context, id int64, summary Summary) error
	MarkConciliated(ctx context.Context, ids []int64, conciliationID int64) error
}

// ConciliationStore persists conciliation records.
type ConciliationStore interface {
	Create(ctx context.Context, c Conciliation) (Conciliation, error)
	ListByInstance(ctx context.Context, instanceID int64) ([]Conciliation, error)
}

// OrderStore persists orders accepted by the OMS.
type OrderStore interface {
	Create(ctx context.Context, order Order) (Order, error)
	ListByInstance(ctx context.Context, instanceID int64, opts ListOpts) ([]Order, error)
}
