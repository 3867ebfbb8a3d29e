package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/server/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeInstances struct {
	mu      sync.Mutex
	created []domain.AlgoKind
	params  map[string]string
	paused  bool
	err     error
}

func (f *fakeInstances) Create(_ context.Context, kind domain.AlgoKind) (domain.AlgoInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.AlgoInstance{}, f.err
	}
	f.created = append(f.created, kind)
	return domain.AlgoInstance{ID: int64(len(f.created)), AlgoKind: kind}, nil
}

func (f *fakeInstances) Get(_ context.Context, id int64) (domain.AlgoInstance, error) {
	if id != 1 {
		return domain.AlgoInstance{}, domain.ErrNotFound
	}
	return domain.AlgoInstance{ID: 1, AlgoKind: domain.AlgoKindOTC}, nil
}

func (f *fakeInstances) List(context.Context) ([]domain.AlgoInstance, error) {
	return nil, nil
}

func (f *fakeInstances) GetData(_ context.Context, id int64) (domain.AlgoData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := "QUOTE"
	if f.paused {
		state = "PAUSED"
	}
	return domain.AlgoData{State: state, Input: f.params}, nil
}

func (f *fakeInstances) SetInput(_ context.Context, id int64, params map[string]string) (domain.AlgoData, error) {
	if params["quoteSpread"] == "oops" {
		return domain.AlgoData{}, domain.NewInputValidationError("Invalid input")
	}
	f.mu.Lock()
	f.params = params
	f.mu.Unlock()
	return f.GetData(context.Background(), id)
}

func (f *fakeInstances) TogglePause(_ context.Context, id int64) error {
	if id != 1 {
		return fmt.Errorf("service: %w", domain.ErrInstanceNotRunning)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = !f.paused
	return nil
}

func (f *fakeInstances) Finalize(context.Context, int64) error { return nil }

func (f *fakeInstances) Requote(context.Context, int64) error {
	return errors.New("redis: connection refused")
}

type fakeExecutions struct{ opts domain.ListOpts }

func (f *fakeExecutions) ListByInstance(_ context.Context, _ int64, opts domain.ListOpts) ([]domain.ArbitrageExecution, error) {
	f.opts = opts
	return []domain.ArbitrageExecution{{ID: 7, AlgoInstanceID: 1}}, nil
}

type fakeFees struct{ fees []domain.Fee }

func (f *fakeFees) List(context.Context) ([]domain.Fee, error) { return f.fees, nil }

func (f *fakeFees) Upsert(_ context.Context, fee domain.Fee) (domain.Fee, error) {
	if fee.ServiceProvider == "" {
		return domain.Fee{}, domain.NewInputValidationError("serviceProvider is required")
	}
	fee.ID = 9
	f.fees = append(f.fees, fee)
	return fee, nil
}

type fakeOrders struct{}

func (fakeOrders) ListByInstance(context.Context, int64, domain.ListOpts) ([]domain.Order, error) {
	return []domain.Order{{ID: 1}}, nil
}

type fakeBlobs struct{ files map[string]string }

func (f *fakeBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, data := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

type countingObserver struct {
	mu    sync.Mutex
	codes []int
}

func (o *countingObserver) ObserveRequest(_ string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, code)
}

type harness struct {
	instances  *fakeInstances
	executions *fakeExecutions
	fees       *fakeFees
	observer   *countingObserver
	handler    http.Handler
}

func newHarness(t *testing.T, apiKey string) *harness {
	t.Helper()
	logger := discardLogger()
	h := &harness{
		instances:  &fakeInstances{},
		executions: &fakeExecutions{},
		fees:       &fakeFees{},
		observer:   &countingObserver{},
	}
	blobs := &fakeBlobs{files: map[string]string{
		"archive/foxbit-otc/1/orders.jsonl": "{\"id\":1}\n",
	}}
	srv := NewServer(Config{APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(nil, func() int { return 2 }, logger),
		Instances: handler.NewInstanceHandler(h.instances, h.executions, logger),
		Fees:      handler.NewFeeHandler(h.fees, logger),
		Orders:    handler.NewOrderHandler(fakeOrders{}, logger),
		Archives:  handler.NewArchiveHandler(blobs, logger),
	}, Options{Observer: h.observer}, logger)
	h.handler = srv.httpServer.Handler
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h := newHarness(t, "secret")

	rec := h.do(http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["instances"])
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, "secret")

	rec := h.do(http.MethodGet, "/api/instances", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/instances", nil)
	req.Header.Set("X-API-Key", "secret")
	ok := httptest.NewRecorder()
	h.handler.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.JSONEq(t, `{"instances":[]}`, ok.Body.String())
}

func TestCreateInstance(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodPost, "/api/instances", `{"kind":"foxbit-otc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []domain.AlgoKind{domain.AlgoKindOTC}, h.instances.created)

	rec = h.do(http.MethodPost, "/api/instances", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.instances.err = fmt.Errorf("service: create: %w", domain.ErrAlreadyExists)
	rec = h.do(http.MethodPost, "/api/instances", `{"kind":"foxbit-otc"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetInstance(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodGet, "/api/instances/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "QUOTE", body["data"].(map[string]any)["state"])

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/instances/2", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/instances/abc", "").Code)
}

func TestSetInput(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodPut, "/api/instances/1/input", `{"quoteSpread":0.015,"manualPegQuote":"5.2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"quoteSpread": "0.015", "manualPegQuote": "5.2"}, h.instances.params)

	rec = h.do(http.MethodPut, "/api/instances/1/input", `{"quoteSpread":"oops"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid input", decodeBody(t, rec)["error"])
}

func TestCommands(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodPost, "/api/instances/1/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PAUSED", decodeBody(t, rec)["state"])

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/instances/4/pause", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/instances/1/finalize", "").Code)

	rec = h.do(http.MethodPost, "/api/instances/1/requote", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to requote", decodeBody(t, rec)["error"], "internal details stay out of the response")
}

func TestExecutions(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodGet, "/api/instances/1/executions?limit=900&offset=10&since=2024-01-02T00:00:00Z", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, h.executions.opts.Limit)
	assert.Equal(t, 10, h.executions.opts.Offset)
	require.NotNil(t, h.executions.opts.Since)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), h.executions.opts.Since.UTC())
	assert.Nil(t, h.executions.opts.Until)
}

func TestFees(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodPut, "/api/fees", `{"service":"iof","serviceProvider":"plural","rate":"0.0038"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.fees.fees, 1)
	assert.True(t, h.fees.fees[0].Rate.Equal(decimal.RequireFromString("0.0038")))

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/fees", `{"service":"iof"}`).Code)

	rec = h.do(http.MethodGet, "/api/fees", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["fees"], 1)
}

func TestOrders(t *testing.T) {
	h := newHarness(t, "")

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/orders", "").Code)
	rec := h.do(http.MethodGet, "/api/orders?instance_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["orders"], 1)
}

func TestArchives(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodGet, "/api/archives?prefix=foxbit-otc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["archives"], 1)

	rec = h.do(http.MethodGet, "/api/archives/foxbit-otc/1/orders.jsonl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{\"id\":1}\n", rec.Body.String())
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/archives/foxbit-otc/2/orders.jsonl", "").Code)
}

func TestRequestsObserved(t *testing.T) {
	h := newHarness(t, "")

	h.do(http.MethodGet, "/api/health", "")
	h.do(http.MethodGet, "/api/instances/2", "")

	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, h.observer.codes)
}
