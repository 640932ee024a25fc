package forger

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/slot"
	"github.com/soliduschain/node/storage"
)

// Tick runs one cooperative scheduling pass at wall-clock time now (unix
// seconds). It is a no-op unless the assigned forger for the current slot
// is locally unlocked, the synchronizer is idle, and the tick's wait/pool
// policy gate has opened. Matches the spec's per-tick decision sequence.
func (f *Forger) Tick(now uint32) error {
	if f.sync != nil && f.sync.IsActive() {
		return nil
	}

	vs := f.currentValidators()
	if vs.Len() == 0 {
		return nil
	}

	slotNum := f.clock.SlotAt(now)
	if !f.clock.InSlot(now, slotNum) {
		return nil
	}
	forgerAddr := vs.ForgerForSlot(slotNum)

	d, ok := f.delegate(forgerAddr)
	if !ok {
		return nil
	}

	tip := f.chain.Tip()
	if tip != nil && f.clock.SlotAt(tip.Header.Timestamp) == slotNum {
		return nil // already forged this slot
	}

	slotStart := f.clock.SlotStart(slotNum)
	if now-slotStart < f.cfg.WaitThreshold && f.pool.Size() < f.cfg.MinPendingTxs {
		return nil
	}

	block, err := f.buildBlock(d, forgerAddr, slotNum, now, tip)
	if err != nil {
		return err
	}

	return f.proc.Process(block, processor.Local())
}

func (f *Forger) buildBlock(d *delegateKey, addr crypto.Address, slotNum uint64, timestamp uint32, tip *core.Block) (*core.Block, error) {
	db := f.chain.RawDB()

	roundIdx := slot.RoundOf(slotNum, f.cfg.RoundLength)
	if _, err := d.onion.reveal(db, addr, int(roundIdx)); err != nil {
		return nil, err
	}

	lastForged, err := loadLastForged(db, addr)
	if err != nil {
		return nil, err
	}

	maxHeightPrevoted := uint64(0)
	if f.bftMgr != nil {
		maxHeightPrevoted = f.bftMgr.PreVotedConfirmedHeight()
	}
	asset := core.BlockAsset{
		MaxHeightPreviouslyForged: lastForged,
		MaxHeightPrevoted:         maxHeightPrevoted,
	}

	height := uint64(1)
	previousID := crypto.Hash{}
	if tip != nil {
		height = tip.Header.Height + 1
		previousID = tip.ID()
	}

	payload := f.pool.Select(f.cfg.MaxPayloadLength)
	block := core.NewBlock(height, timestamp, previousID, d.pub, asset, payload)
	if _, err := block.Header.Sign(d.priv); err != nil {
		return nil, errs.Key("forger: sign block at height %d: %v", height, err)
	}

	if err := saveLastForged(db, addr, height); err != nil {
		logger.WithField("address", addr).WithField("err", err).Warn("failed to persist last-forged height")
	}
	return block, nil
}

func loadLastForged(db storage.DB, address crypto.Address) (uint64, error) {
	raw, err := db.Get(storage.ForgerLastHeightKey(address.Bytes()))
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var h uint64
	if err := json.Unmarshal(raw, &h); err != nil {
		return 0, errs.WrapSchema(err, "forger: decode last-forged height for %s", address)
	}
	return h, nil
}

func saveLastForged(db storage.DB, address crypto.Address, height uint64) error {
	raw, err := json.Marshal(height)
	if err != nil {
		return errs.WrapSchema(err, "forger: encode last-forged height for %s", address)
	}
	return db.Set(storage.ForgerLastHeightKey(address.Bytes()), raw)
}
