// Package slot is the pure time/slot/round clock: (timestamp) ↔ (slot
// number) ↔ (forger address). Nothing here touches storage or network; it
// is safe to call from any goroutine.
package slot

import (
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
)

// Clock converts between wall-clock seconds and slot numbers for a chain
// with a fixed blockTime and genesis epoch.
type Clock struct {
	genesisTime uint32 // seconds, the timestamp of block 0
	blockTime   uint32 // seconds per slot
}

// NewClock builds a Clock from genesis parameters.
func NewClock(genesisTime, blockTime uint32) Clock {
	if blockTime == 0 {
		blockTime = 1
	}
	return Clock{genesisTime: genesisTime, blockTime: blockTime}
}

// SlotAt returns the slot number containing wall-clock time now (seconds
// since epoch). Times before genesis map to slot 0.
func (c Clock) SlotAt(now uint32) uint64 {
	if now <= c.genesisTime {
		return 0
	}
	return uint64(now-c.genesisTime) / uint64(c.blockTime)
}

// SlotStart returns the wall-clock time at which slot begins.
func (c Clock) SlotStart(slot uint64) uint32 {
	return c.genesisTime + uint32(slot*uint64(c.blockTime))
}

// SlotEnd returns the wall-clock time at which slot ends (== next slot's
// start).
func (c Clock) SlotEnd(slot uint64) uint32 {
	return c.SlotStart(slot + 1)
}

// InSlot reports whether now falls within slot's boundaries.
func (c Clock) InSlot(now uint32, slot uint64) bool {
	return now >= c.SlotStart(slot) && now < c.SlotEnd(slot)
}

// BlockTime returns the configured slot width.
func (c Clock) BlockTime() uint32 { return c.blockTime }

// RoundOf returns the round number a slot belongs to, given the round
// length (validator set size, N).
func RoundOf(slot uint64, roundLength int) uint64 {
	if roundLength <= 0 {
		return 0
	}
	return slot / uint64(roundLength)
}

// IndexInRound is the position within the round (0..roundLength-1), used as
// the validator set rotation index.
func IndexInRound(slot uint64, roundLength int) int {
	if roundLength <= 0 {
		return 0
	}
	return int(slot % uint64(roundLength))
}

// ForgerForSlot returns the delegate assigned to slot under the given
// validator set, wrapping on the round length.
func ForgerForSlot(vs core.ValidatorSet, slot uint64) (addr crypto.Address, ok bool) {
	if vs.Len() == 0 {
		return addr, false
	}
	return vs.ForgerForSlot(slot), true
}
