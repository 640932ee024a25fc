// Package bft implements the BFT Finality Manager: a pure function of
// stored headers and the active validator set that derives
// preVotedConfirmedHeight and finalizedHeight from the prevote/precommit
// signal every header carries in its asset.
package bft

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/log"
	"github.com/soliduschain/node/storage"
)

var logger = log.Component("bft")

// Record is the per-validator state extracted from recent headers.
type Record struct {
	MaxHeightPreviouslyForged uint64
	MaxHeightPrevoted         uint64
}

// Manager tracks Records for the active validator set and derives
// preVotedConfirmedHeight / finalizedHeight on every processed header.
type Manager struct {
	mu sync.Mutex

	db        storage.DB
	bus       *events.Bus
	threshold uint64 // configured block-depth confirmation window

	active  core.ValidatorSet
	records map[crypto.Address]Record

	// history[h] is the preVotedConfirmedHeight computed immediately after
	// the block at height h was processed. Entries below finalizedHeight
	// are pruned since finality never needs to look back
	// past what it already confirmed.
	history map[uint64]uint64

	preVotedConfirmedHeight uint64
	finalizedHeight         uint64
}

// New constructs a Manager. threshold is genesisConfig.bftThreshold
// expressed as a block-depth (spec §4.2: "the block at h+threshold").
func New(db storage.DB, bus *events.Bus, threshold uint64) *Manager {
	m := &Manager{
		db:        db,
		bus:       bus,
		threshold: threshold,
		records:   make(map[crypto.Address]Record),
		history:   make(map[uint64]uint64),
	}
	m.loadPersisted()
	return m
}

func (m *Manager) loadPersisted() {
	if raw, err := m.db.Get(storage.BFTFinalizedKey()); err == nil {
		var h uint64
		if jsonUnmarshalUint(raw, &h) {
			m.finalizedHeight = h
		}
	}
	finalizedKey := string(storage.BFTFinalizedKey())
	it := m.db.NewIterator(storage.BFTRecordPrefix())
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if string(key) == finalizedKey {
			continue
		}
		addrBytes := key[len(storage.BFTRecordPrefix()):]
		addr, err := crypto.AddressFromBytes(addrBytes)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(it.Value(), &rec); err == nil {
			m.records[addr] = rec
		}
	}
}

func jsonUnmarshalUint(raw []byte, out *uint64) bool {
	return json.Unmarshal(raw, out) == nil
}

// SetActiveValidators updates the validator set weighed for supermajority
// computation. Called on ValidatorsChanged.
func (m *Manager) SetActiveValidators(vs core.ValidatorSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = vs
}

// FinalizedHeight returns the current finalized height.
func (m *Manager) FinalizedHeight() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizedHeight
}

// PreVotedConfirmedHeight returns the current preVotedConfirmedHeight.
func (m *Manager) PreVotedConfirmedHeight() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preVotedConfirmedHeight
}

// Record returns the currently-tracked record for a validator, if any.
func (m *Manager) Record(addr crypto.Address) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[addr]
	return r, ok
}

// Process applies header to the finality state, validating the
// contradiction/monotonicity rule, recording the validator's new claims,
// and re-deriving preVotedConfirmedHeight / finalizedHeight. It fires
// BlockFinalized on the bus whenever finalizedHeight advances.
func (m *Manager) Process(header core.Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.process(header, true)
}

// Replay re-applies an already-accepted header (loaded from the persisted
// chain at startup) without re-checking contradiction/monotonicity, which
// were enforced when the block was first processed.
func (m *Manager) Replay(header core.Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.process(header, false)
}

func (m *Manager) process(header core.Header, checkRules bool) error {
	v := header.GeneratorPublicKey.Address()
	prev := m.records[v]
	newForged := header.Asset.MaxHeightPreviouslyForged

	if checkRules {
		if newForged >= header.Height {
			return errs.Validation("bft: validator %s declares maxHeightPreviouslyForged %d >= block height %d", v, newForged, header.Height)
		}
		if newForged < prev.MaxHeightPreviouslyForged {
			return errs.Validation("bft: validator %s maxHeightPreviouslyForged regressed %d -> %d", v, prev.MaxHeightPreviouslyForged, newForged)
		}
	}

	m.records[v] = Record{
		MaxHeightPreviouslyForged: newForged,
		MaxHeightPrevoted:         header.Asset.MaxHeightPrevoted,
	}
	if err := m.persistRecord(v); err != nil {
		return err
	}

	m.preVotedConfirmedHeight = m.derivePreVotedConfirmedHeight()
	m.history[header.Height] = m.preVotedConfirmedHeight

	oldFinalized := m.finalizedHeight
	m.finalizedHeight = m.deriveFinalizedHeight()
	if m.finalizedHeight < oldFinalized {
		logger.WithField("old", oldFinalized).WithField("new", m.finalizedHeight).Fatal("finalized height regressed")
	}
	if m.finalizedHeight > oldFinalized {
		if err := m.persistFinalized(); err != nil {
			return err
		}
		for h := oldFinalized + 1; h <= m.finalizedHeight; h++ {
			delete(m.history, h-1)
		}
		if m.bus != nil {
			m.bus.Publish(events.BlockFinalized{Height: m.finalizedHeight})
		}
	}
	return nil
}

// derivePreVotedConfirmedHeight finds the largest h such that more than 2/3
// of the active validator set has maxHeightPrevoted >= h: the
// supermajority-th order statistic of prevoted heights over the active set.
func (m *Manager) derivePreVotedConfirmedHeight() uint64 {
	n := m.active.Len()
	if n == 0 {
		return m.preVotedConfirmedHeight
	}
	votes := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		addr := m.active.At(i)
		votes = append(votes, m.records[addr].MaxHeightPrevoted)
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i] > votes[j] })
	k := n*2/3 + 1 // smallest k with k > 2n/3
	if k > n {
		k = n
	}
	return votes[k-1]
}

// deriveFinalizedHeight finds the largest h such that the
// preVotedConfirmedHeight recorded threshold blocks later is >= h.
func (m *Manager) deriveFinalizedHeight() uint64 {
	h := m.finalizedHeight
	for {
		candidate := h + 1
		confirmedAt, ok := m.history[candidate+m.threshold]
		if !ok || confirmedAt < candidate {
			break
		}
		h = candidate
	}
	return h
}

func (m *Manager) persistRecord(addr crypto.Address) error {
	raw, err := json.Marshal(m.records[addr])
	if err != nil {
		return errs.WrapStorage(err, "encode bft record for %s", addr)
	}
	if err := m.db.Set(storage.BFTRecordKey(addr.Bytes()), raw); err != nil {
		return errs.WrapStorage(err, "persist bft record for %s", addr)
	}
	return nil
}

func (m *Manager) persistFinalized() error {
	raw, err := json.Marshal(m.finalizedHeight)
	if err != nil {
		return errs.WrapStorage(err, "encode finalized height")
	}
	if err := m.db.Set(storage.BFTFinalizedKey(), raw); err != nil {
		return errs.WrapStorage(err, "persist finalized height")
	}
	return nil
}
