// Package bot runs the outer orchestration loop around the grid engine:
// one runner goroutine per position, a manager that starts and stops them,
// and the audit-event wiring.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridbot/exchange"
	"gridbot/grid"
	"gridbot/logger"
	"gridbot/store"
)

// Manager owns the set of position runners
type Manager struct {
	engine   *grid.Engine
	client   exchange.Client
	st       *store.Store
	interval time.Duration

	mu      sync.Mutex
	runners map[string]*Runner
}

// NewManager creates a bot manager
func NewManager(engine *grid.Engine, client exchange.Client, st *store.Store, interval time.Duration) *Manager {
	return &Manager{
		engine:   engine,
		client:   client,
		st:       st,
		interval: interval,
		runners:  make(map[string]*Runner),
	}
}

// Add validates a position's grid configuration and starts its runner
func (m *Manager) Add(pos *Position) error {
	if err := pos.Config.Validate(); err != nil {
		return fmt.Errorf("position %s: %w", pos.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runners[pos.ID]; exists {
		return fmt.Errorf("position %s already running", pos.ID)
	}

	r := NewRunner(pos, m.engine, m.client, m.st, m.interval)
	m.runners[pos.ID] = r
	r.Start()
	return nil
}

// Remove stops a position's runner and tears its ladder down
func (m *Manager) Remove(ctx context.Context, positionID string) error {
	m.mu.Lock()
	r, exists := m.runners[positionID]
	if exists {
		delete(m.runners, positionID)
	}
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("position %s not running", positionID)
	}

	r.Stop()
	if err := m.engine.Cancel(ctx, positionID, "position removed"); err != nil {
		return err
	}
	if err := m.st.Grid().SaveEvent(&store.GridEventModel{
		PositionID: positionID,
		EventType:  store.EventOrdersCanceled,
		Message:    "position removed",
	}); err != nil {
		logger.Warnf("[Bot] Failed to record teardown event for %s: %v", positionID, err)
	}
	return nil
}

// Shutdown stops every runner and cancels every ladder. Orders are pulled
// off the exchange so no resting order outlives the process.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	runners := make(map[string]*Runner, len(m.runners))
	for id, r := range m.runners {
		runners[id] = r
	}
	m.runners = make(map[string]*Runner)
	m.mu.Unlock()

	for id, r := range runners {
		r.Stop()
		if err := m.engine.Cancel(ctx, id, "shutdown"); err != nil {
			logger.Errorf("[Bot] Failed to cancel grid for %s on shutdown: %v", id, err)
		}
	}
	logger.Infof("[Bot] Manager shut down, %d positions stopped", len(runners))
}

// Running reports the ids of active positions
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	return ids
}
