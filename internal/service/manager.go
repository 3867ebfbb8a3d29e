package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/notify"
)

const createLockTTL = 10 * time.Second

// RunnerFactory builds the runner of an instance.
type RunnerFactory interface {
	Build(ctx context.Context, inst domain.AlgoInstance, onFinalized func()) (Runner, error)
}

// QuoteForgetter drops the cached quote of an ended OTC instance.
type QuoteForgetter interface {
	Forget(ctx context.Context, instanceID int64) error
}

// ManagerDeps groups what the Manager needs. Archiver, Notifier, Recorders
// and Quotes may be nil.
type ManagerDeps struct {
	Instances domain.InstanceStore
	Locks     domain.LockManager
	Bus       domain.SignalBus
	Factory   RunnerFactory
	Archiver  domain.Archiver
	Notifier  *notify.Notifier
	Recorders RecorderFactory
	Quotes    QuoteForgetter
}

type runnerHandle struct {
	runner Runner
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Manager owns the lifecycle of the algo instances: at most one active
// instance per kind, a live runner per active instance, and the clean up
// that follows the end of an instance.
type Manager struct {
	deps   ManagerDeps
	base   context.Context
	stop   context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	runners map[int64]*runnerHandle
	wg      sync.WaitGroup
}

// NewManager creates a Manager. Runners live until Shutdown.
func NewManager(deps ManagerDeps, logger *slog.Logger) *Manager {
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		deps:    deps,
		base:    base,
		stop:    stop,
		runners: make(map[int64]*runnerHandle),
		logger:  logger.With(slog.String("component", "instance_manager")),
	}
}

// Create starts a new instance of kind. It fails with domain.ErrLockHeld
// while another create of the same kind is in flight and with
// domain.ErrAlreadyExists when the kind already has an active instance.
func (m *Manager) Create(ctx context.Context, kind domain.AlgoKind) (domain.AlgoInstance, error) {
	if !kind.Valid() {
		return domain.AlgoInstance{}, domain.NewInputValidationError("unknown algo kind %q", kind)
	}

	unlock, err := m.deps.Locks.Acquire(ctx, "instance:"+string(kind), createLockTTL)
	if err != nil {
		return domain.AlgoInstance{}, fmt.Errorf("instance_manager: create %s: %w", kind, err)
	}
	defer unlock()

	inst, err := m.deps.Instances.CreateActive(ctx, kind)
	if err != nil {
		return domain.AlgoInstance{}, fmt.Errorf("instance_manager: create %s: %w", kind, err)
	}
	if err := m.start(inst); err != nil {
		if endErr := m.deps.Instances.End(ctx, inst.ID); endErr != nil {
			m.logger.ErrorContext(ctx, "instance_manager: end unstarted instance failed",
				slog.Int64("instance_id", inst.ID),
				slog.String("error", endErr.Error()),
			)
		}
		return domain.AlgoInstance{}, err
	}

	m.logger.InfoContext(ctx, "instance created",
		slog.Int64("instance_id", inst.ID),
		slog.String("kind", string(kind)),
	)
	m.notifyAsync(notify.EventInstanceCreated, "Instance created", inst.Name()+" started")
	return inst, nil
}

// Restore restarts every instance still flagged active. Parameters are not
// persisted, so restored instances wait in Initializing for new input.
func (m *Manager) Restore(ctx context.Context) error {
	active, err := m.deps.Instances.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("instance_manager: restore: %w", err)
	}
	for _, inst := range active {
		if err := m.start(inst); err != nil {
			m.logger.ErrorContext(ctx, "instance_manager: restore failed",
				slog.Int64("instance_id", inst.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.logger.InfoContext(ctx, "instance restored", slog.Int64("instance_id", inst.ID))
	}
	return nil
}

func (m *Manager) start(inst domain.AlgoInstance) error {
	ctx, cancel := context.WithCancel(m.base)
	h := &runnerHandle{cancel: cancel, done: make(chan struct{})}

	runner, err := m.deps.Factory.Build(ctx, inst, func() {
		h.once.Do(func() { m.finalized(inst) })
	})
	if err != nil {
		cancel()
		return fmt.Errorf("instance_manager: build %s: %w", inst.Name(), err)
	}
	h.runner = runner

	m.mu.Lock()
	m.runners[inst.ID] = h
	m.mu.Unlock()

	go func() {
		defer close(h.done)
		if err := runner.Run(ctx); err != nil {
			m.logger.Error("runner stopped",
				slog.Int64("instance_id", inst.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Get returns an instance, live or ended.
func (m *Manager) Get(ctx context.Context, id int64) (domain.AlgoInstance, error) {
	inst, err := m.deps.Instances.GetByID(ctx, id)
	if err != nil {
		return domain.AlgoInstance{}, fmt.Errorf("instance_manager: get %d: %w", id, err)
	}
	return inst, nil
}

// List returns the active instances.
func (m *Manager) List(ctx context.Context) ([]domain.AlgoInstance, error) {
	active, err := m.deps.Instances.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("instance_manager: list: %w", err)
	}
	return active, nil
}

// GetData returns the public view of an instance. Instances without a
// runner report NOT_RUNNING.
func (m *Manager) GetData(ctx context.Context, id int64) (domain.AlgoData, error) {
	if r, ok := m.runner(id); ok {
		data, err := r.Data(ctx)
		if err == nil || !errors.Is(err, domain.ErrInstanceNotRunning) {
			return data, err
		}
		return domain.NotRunning(), nil
	}
	if _, err := m.Get(ctx, id); err != nil {
		return domain.AlgoData{}, err
	}
	return domain.NotRunning(), nil
}

// SetInput applies operator parameters and returns the updated view.
func (m *Manager) SetInput(ctx context.Context, id int64, params map[string]string) (domain.AlgoData, error) {
	r, err := m.mustRunner(id)
	if err != nil {
		return domain.AlgoData{}, err
	}
	return r.SetInput(ctx, params)
}

// TogglePause pauses or resumes an instance.
func (m *Manager) TogglePause(ctx context.Context, id int64) error {
	r, err := m.mustRunner(id)
	if err != nil {
		return err
	}
	return r.TogglePause(ctx)
}

// Finalize asks an instance to end. The clean up runs once the algo reaches
// Finalized.
func (m *Manager) Finalize(ctx context.Context, id int64) error {
	r, err := m.mustRunner(id)
	if err != nil {
		return err
	}
	return r.Finalize(ctx)
}

// Requote republishes the quote of an OTC instance.
func (m *Manager) Requote(ctx context.Context, id int64) error {
	r, err := m.mustRunner(id)
	if err != nil {
		return err
	}
	return r.Requote(ctx)
}

// Running returns the number of live runners.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runners)
}

func (m *Manager) runner(id int64) (Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.runners[id]
	if !ok {
		return nil, false
	}
	return h.runner, true
}

func (m *Manager) mustRunner(id int64) (Runner, error) {
	r, ok := m.runner(id)
	if !ok {
		return nil, fmt.Errorf("instance_manager: instance %d: %w", id, domain.ErrInstanceNotRunning)
	}
	return r, nil
}

// finalized is called from the loop of the instance, which the clean up
// stops, so the clean up runs on its own goroutine.
func (m *Manager) finalized(inst domain.AlgoInstance) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanup(m.base, inst)
	}()
}

func (m *Manager) cleanup(ctx context.Context, inst domain.AlgoInstance) {
	logger := m.logger.With(slog.Int64("instance_id", inst.ID))

	payload, _ := json.Marshal(map[string]int64{"id": inst.ID})
	if err := m.deps.Bus.Publish(ctx, domain.FinalizedTopic(inst.AlgoKind), payload); err != nil {
		logger.WarnContext(ctx, "instance_manager: publish finalized failed", slog.String("error", err.Error()))
	}
	if err := m.deps.Instances.End(ctx, inst.ID); err != nil {
		logger.ErrorContext(ctx, "instance_manager: end instance failed", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	h, ok := m.runners[inst.ID]
	delete(m.runners, inst.ID)
	m.mu.Unlock()
	if ok {
		h.cancel()
		<-h.done
	}

	archived := 0
	if m.deps.Archiver != nil {
		n, err := m.deps.Archiver.ArchiveInstance(ctx, inst)
		if err != nil {
			logger.ErrorContext(ctx, "instance_manager: archive failed", slog.String("error", err.Error()))
		}
		archived = n
	}
	if m.deps.Recorders != nil {
		m.deps.Recorders.Forget(inst.Name())
	}
	if m.deps.Quotes != nil && inst.AlgoKind == domain.AlgoKindOTC {
		if err := m.deps.Quotes.Forget(ctx, inst.ID); err != nil {
			logger.WarnContext(ctx, "instance_manager: forget quote failed", slog.String("error", err.Error()))
		}
	}

	logger.InfoContext(ctx, "instance finalized", slog.Int("archived_executions", archived))
	m.notify(ctx, notify.EventInstanceFinalized, "Instance finalized",
		fmt.Sprintf("%s finalized, %d executions archived", inst.Name(), archived))
}

func (m *Manager) notifyAsync(event, title, message string) {
	if !m.deps.Notifier.Enabled(event) {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.notify(m.base, event, title, message)
	}()
}

func (m *Manager) notify(ctx context.Context, event, title, message string) {
	if err := m.deps.Notifier.Notify(ctx, event, title, message); err != nil {
		m.logger.WarnContext(ctx, "instance_manager: notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// Shutdown stops every runner and waits for pending clean ups. Instances
// stay active and are restored on the next start.
func (m *Manager) Shutdown() {
	m.stop()

	m.mu.Lock()
	handles := make([]*runnerHandle, 0, len(m.runners))
	for _, h := range m.runners {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		<-h.done
	}
	m.wg.Wait()
	m.logger.Info("instance manager stopped", slog.Int("runners", len(handles)))
}
