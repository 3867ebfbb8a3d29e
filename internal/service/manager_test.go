package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

type managerHarness struct {
	store    *fakeInstanceStore
	locks    *fakeLocks
	bus      *memBus
	factory  *fakeFactory
	archiver *fakeArchiver
	quotes   *fakeQuoteCache
	m        *Manager
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	h := &managerHarness{
		store:    newFakeInstanceStore(),
		locks:    &fakeLocks{},
		bus:      newMemBus(),
		factory:  &fakeFactory{},
		archiver: &fakeArchiver{},
		quotes:   newFakeQuoteCache(),
	}
	h.m = NewManager(ManagerDeps{
		Instances: h.store,
		Locks:     h.locks,
		Bus:       h.bus,
		Factory:   h.factory,
		Archiver:  h.archiver,
		Quotes:    h.quotes,
	}, discardLogger())
	t.Cleanup(h.m.Shutdown)
	return h
}

func (h *managerHarness) create(t *testing.T, kind domain.AlgoKind) domain.AlgoInstance {
	t.Helper()
	inst, err := h.m.Create(context.Background(), kind)
	require.NoError(t, err)
	select {
	case <-h.factory.get(inst.ID).started:
	case <-time.After(time.Second):
		t.Fatal("runner not started")
	}
	return inst
}

func TestManager_Create(t *testing.T) {
	h := newManagerHarness(t)

	inst := h.create(t, domain.AlgoKindArbitrage)

	assert.Equal(t, domain.AlgoKindArbitrage, inst.AlgoKind)
	assert.Equal(t, 1, h.m.Running())
	assert.Empty(t, h.locks.held, "lock released after create")

	list, err := h.m.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestManager_CreateSecondActiveOfKind(t *testing.T) {
	h := newManagerHarness(t)
	h.create(t, domain.AlgoKindOTC)

	_, err := h.m.Create(context.Background(), domain.AlgoKindOTC)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	h.create(t, domain.AlgoKindArbitrage)
	assert.Equal(t, 2, h.m.Running())
}

func TestManager_CreateWhileLocked(t *testing.T) {
	h := newManagerHarness(t)
	h.locks.held = map[string]bool{"instance:foxbit-otc": true}

	_, err := h.m.Create(context.Background(), domain.AlgoKindOTC)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestManager_CreateUnknownKind(t *testing.T) {
	h := newManagerHarness(t)

	_, err := h.m.Create(context.Background(), "martingale")

	var ve *domain.InputValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestManager_Operations(t *testing.T) {
	h := newManagerHarness(t)
	inst := h.create(t, domain.AlgoKindArbitrage)
	ctx := context.Background()

	data, err := h.m.SetInput(ctx, inst.ID, map[string]string{"totalQuantity": "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", data.Input["totalQuantity"])

	require.NoError(t, h.m.TogglePause(ctx, inst.ID))
	data, err = h.m.GetData(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAUSED", data.State)

	require.NoError(t, h.m.Requote(ctx, inst.ID))
}

func TestManager_NotRunning(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	inst, err := h.store.CreateActive(ctx, domain.AlgoKindOTC)
	require.NoError(t, err)

	data, err := h.m.GetData(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotRunning, data.State)
	assert.Equal(t, "Instance not running", data.Output["message"])

	_, err = h.m.GetData(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, h.m.TogglePause(ctx, inst.ID), domain.ErrInstanceNotRunning)
	assert.ErrorIs(t, h.m.Finalize(ctx, inst.ID), domain.ErrInstanceNotRunning)
	_, err = h.m.SetInput(ctx, inst.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInstanceNotRunning)
}

func TestManager_FinalizeCleansUp(t *testing.T) {
	h := newManagerHarness(t)
	inst := h.create(t, domain.AlgoKindOTC)
	runner := h.factory.get(inst.ID)

	require.NoError(t, h.m.Finalize(context.Background(), inst.ID))

	require.Eventually(t, func() bool { return h.m.Running() == 0 && runner.isStopped() },
		time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.archiver.ids()) == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, h.store.ended(inst.ID))
	assert.Len(t, h.bus.messages("algos.foxbit-otc.finalized"), 1)
	assert.Equal(t, []int64{inst.ID}, h.archiver.ids())
	assert.Eventually(t, func() bool {
		h.quotes.mu.Lock()
		defer h.quotes.mu.Unlock()
		return len(h.quotes.forgotten) == 1
	}, time.Second, 5*time.Millisecond)

	data, err := h.m.GetData(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotRunning, data.State)

	// the kind is free again
	h.create(t, domain.AlgoKindOTC)
}

func TestManager_Restore(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	a, err := h.store.CreateActive(ctx, domain.AlgoKindOTC)
	require.NoError(t, err)
	b, err := h.store.CreateActive(ctx, domain.AlgoKindArbitrage)
	require.NoError(t, err)
	require.NoError(t, h.store.End(ctx, b.ID))

	require.NoError(t, h.m.Restore(ctx))

	assert.Equal(t, 1, h.m.Running())
	assert.NotNil(t, h.factory.get(a.ID))
	assert.Nil(t, h.factory.get(b.ID))
}

func TestManager_ShutdownStopsRunners(t *testing.T) {
	h := newManagerHarness(t)
	inst := h.create(t, domain.AlgoKindArbitrage)

	h.m.Shutdown()

	assert.True(t, h.factory.get(inst.ID).isStopped())
	assert.False(t, h.store.ended(inst.ID), "instances stay active across restarts")
}
