// Package sync implements the Synchronizer: it consumes SyncRequired events
// from the Processor's fork-choice table and drives exactly one recovery
// mechanism — BlockSynchronizationMechanism or FastChainSwitchingMechanism —
// at a time, via an exclusive isActive flag the Forger checks before
// attempting to forge.
package sync

import (
	"context"
	"sync"

	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/log"
)

var logger = log.Component("sync")

// Synchronizer selects a Mechanism by asking each, in registration order,
// IsValidFor(event), and runs the first match.
type Synchronizer struct {
	mu         sync.Mutex
	active     bool
	mechanisms []Mechanism
	bus        *events.Bus
}

func New(bus *events.Bus, mechanisms ...Mechanism) *Synchronizer {
	s := &Synchronizer{mechanisms: mechanisms, bus: bus}
	if bus != nil {
		bus.Subscribe(s.onSyncRequired)
	}
	return s
}

// IsActive reports whether a mechanism is currently running — the Forger's
// scheduler tick checks it to skip forging while a recovery is in flight.
// Transport does not consult it: inbound postBlock messages still reach the
// Processor during a recovery.
func (s *Synchronizer) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Synchronizer) onSyncRequired(ev events.SyncRequired) {
	if !s.tryEnter() {
		logger.WithField("peer", ev.PeerID).Warn("sync already active, dropping overlapping SyncRequired")
		return
	}
	defer s.leave()

	for _, m := range s.mechanisms {
		if !m.IsValidFor(ev) {
			continue
		}
		entry := logger.WithField("mechanism", m.Name()).WithField("peer", ev.PeerID)
		entry.Info("running recovery mechanism")
		if err := m.Run(context.Background(), ev); err != nil {
			entry.WithField("err", err).Error("recovery mechanism failed")
		}
		return
	}
	logger.WithField("hint", ev.Hint).Warn("no registered mechanism claimed this SyncRequired event")
}

func (s *Synchronizer) tryEnter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *Synchronizer) leave() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}
