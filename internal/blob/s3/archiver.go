package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// pageSize is how many rows the archiver reads per query.
const pageSize = 500

const jsonlContentType = "application/x-ndjson"

// Archiver implements domain.Archiver. The executions, orders and
// conciliations of an ended instance are written as JSONL under
// archive/{kind}/{instanceID}/. Rows stay in Postgres.
type Archiver struct {
	writer        domain.BlobWriter
	reader        domain.BlobReader
	executions    domain.ExecutionStore
	orders        domain.OrderStore
	conciliations domain.ConciliationStore
	logger        *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	executions domain.ExecutionStore,
	orders domain.OrderStore,
	conciliations domain.ConciliationStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:        writer,
		reader:        reader,
		executions:    executions,
		orders:        orders,
		conciliations: conciliations,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveInstance uploads the history of inst and returns how many
// executions it holds. An instance archived before is skipped.
func (a *Archiver) ArchiveInstance(ctx context.Context, inst domain.AlgoInstance) (int, error) {
	execPath := ArchivePath(inst, "executions")
	exists, err := a.reader.Exists(ctx, execPath)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", inst.Name(), err)
	}
	if exists {
		a.logger.InfoContext(ctx, "instance already archived", slog.String("path", execPath))
		return 0, nil
	}

	executions, err := collectPages(func(opts domain.ListOpts) ([]domain.ArbitrageExecution, error) {
		return a.executions.ListByInstance(ctx, inst.ID, opts)
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions of %s: %w", inst.Name(), err)
	}
	orders, err := collectPages(func(opts domain.ListOpts) ([]domain.Order, error) {
		return a.orders.ListByInstance(ctx, inst.ID, opts)
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders of %s: %w", inst.Name(), err)
	}
	conciliations, err := a.conciliations.ListByInstance(ctx, inst.ID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive conciliations of %s: %w", inst.Name(), err)
	}

	if err := upload(ctx, a.writer, ArchivePath(inst, "orders"), orders); err != nil {
		return 0, err
	}
	if err := upload(ctx, a.writer, ArchivePath(inst, "conciliations"), conciliations); err != nil {
		return 0, err
	}
	// Executions last: their file marks the archive as complete.
	if err := upload(ctx, a.writer, execPath, executions); err != nil {
		return 0, err
	}

	a.logger.InfoContext(ctx, "instance archived",
		slog.String("instance", inst.Name()),
		slog.Int("executions", len(executions)),
		slog.Int("orders", len(orders)),
		slog.Int("conciliations", len(conciliations)),
	)
	return len(executions), nil
}

func upload[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: marshal %s: %w", path, err)
	}
	if int64(len(buf)) > minPartSize {
		err = w.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = w.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}

// ArchivePath is the key of one archive file of an instance, e.g.
// archive/foxbit-otc/3/orders.jsonl.
func ArchivePath(inst domain.AlgoInstance, kind string) string {
	return fmt.Sprintf("archive/%s/%d/%s.jsonl", inst.AlgoKind, inst.ID, kind)
}

func collectPages[T any](list func(domain.ListOpts) ([]T, error)) ([]T, error) {
	var all []T
	for offset := 0; ; offset += pageSize {
		page, err := list(domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// marshalJSONL encodes records as one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
