// Package service runs named groups of long-running tasks under a shared
// cancellation signal. Starting a group launches every task on its own
// goroutine; stopping it cancels all of them and waits for them to exit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Task is one long-running unit of work. Run must return promptly after its
// ctx is cancelled; returning context.Canceled counts as a clean exit.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Group owns a set of tasks started and stopped together.
type Group struct {
	name  string
	log   *slog.Logger
	tasks []Task

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewGroup builds a group. A nil logger falls back to slog.Default().
func NewGroup(name string, logger *slog.Logger, tasks ...Task) *Group {
	if logger == nil {
		logger = slog.Default()
	}

	return &Group{name: name, log: logger, tasks: tasks}
}

// Start launches every task on its own goroutine under a context derived
// from parent. It is a no-op on a group that is already running.
func (g *Group) Start(parent context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	g.started = true

	g.log.Info("starting service group", "group", g.name, "tasks", len(g.tasks))

	for _, t := range g.tasks {
		g.wg.Add(1)

		go func(t Task) {
			defer g.wg.Done()

			err := t.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				g.log.Warn("task exited", "group", g.name, "task", t.Name, "err", err)
				return
			}

			g.log.Debug("task finished", "group", g.name, "task", t.Name)
		}(t)
	}
}

// Stop cancels the shared context and blocks until every task has exited.
// Safe to call more than once.
func (g *Group) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	g.wg.Wait()
}

// Wait blocks until every task has exited on its own, without cancelling.
func (g *Group) Wait() {
	g.wg.Wait()
}
