// Package algo holds what the strategy algos share: the single consumer
// event loop every instance runs on and the dispatcher contract the algos use
// to leave and re-enter that loop.
package algo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher serializes event delivery to an algo and runs its blocking
// collaborator calls off the event path.
type Dispatcher interface {
	// Post queues fn on the event loop.
	Post(fn func())
	// Go runs fn concurrently with the event loop. fn must use Post to touch
	// algo state.
	Go(fn func())
}

// Inline runs everything on the calling goroutine. Used by tests and dry
// runs where determinism matters more than latency.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }
func (Inline) Go(fn func())   { fn() }

const defaultMailboxSize = 256

// Mailbox is the event loop of one algo instance. Every state mutation of
// the instance runs on the goroutine executing Run.
type Mailbox struct {
	queue  chan func()
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewMailbox creates a Mailbox. A size <= 0 uses the default buffer.
func NewMailbox(size int, logger *slog.Logger) *Mailbox {
	if size <= 0 {
		size = defaultMailboxSize
	}
	return &Mailbox{
		queue:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger.With(slog.String("component", "mailbox")),
	}
}

// Post queues fn. It blocks while the buffer is full and drops fn once the
// loop has stopped.
func (m *Mailbox) Post(fn func()) {
	select {
	case m.queue <- fn:
	case <-m.done:
	}
}

// Go runs fn on a tracked goroutine.
func (m *Mailbox) Go(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// Do runs fn on the loop and waits for it to finish.
func (m *Mailbox) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	m.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-m.done:
		return fmt.Errorf("mailbox: stopped")
	case <-ctx.Done():
		return fmt.Errorf("mailbox: do: %w", ctx.Err())
	}
}

// Run executes queued functions until ctx is cancelled. A panicking function
// is logged and the loop keeps going.
func (m *Mailbox) Run(ctx context.Context) error {
	defer m.once.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-m.queue:
			m.invoke(fn)
		}
	}
}

func (m *Mailbox) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// Wait blocks until every goroutine started with Go returned.
func (m *Mailbox) Wait() {
	m.wg.Wait()
}

var (
	_ Dispatcher = (*Mailbox)(nil)
	_ Dispatcher = Inline{}
)
