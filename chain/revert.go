package chain

import (
	"encoding/json"
	"sort"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/storage"
)

// DeleteLastBlock reverts the current tip: replays its undo journal,
// removes its height index entry, moves the block itself into the temp
// region, and resets the tip pointer to previousTip. The caller (Processor)
// is responsible for re-admitting the block's transactions to the pool —
// chain has no pool dependency. previousTip is nil only when reverting
// genesis, which callers must never do.
func (c *Chain) DeleteLastBlock(previousTip *core.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tip == nil {
		return errs.Validation("delete last block: chain is empty")
	}
	removed := c.tip

	ops, err := c.UndoJournal(removed.ID())
	if err != nil {
		return errs.WrapStorage(err, "load undo journal for block %s", removed.ID())
	}

	batch := c.db.NewBatch()
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if op.Existed {
			batch.Set(op.Key, op.PrevValue)
		} else {
			batch.Delete(op.Key)
		}
	}
	batch.Delete(storage.BlockByHeightKey(removed.Header.Height))
	batch.Delete(storage.UndoKey(removed.ID().Bytes()))

	rawTemp, err := json.Marshal(removed)
	if err != nil {
		return errs.WrapStorage(err, "encode superseded block %s", removed.ID())
	}
	batch.Set(storage.TempBlockKey(removed.ID().Bytes()), rawTemp)

	if previousTip != nil {
		batch.Set(storage.ChainTipKey(), previousTip.ID().Bytes())
	} else {
		batch.Delete(storage.ChainTipKey())
	}

	if err := batch.Write(); err != nil {
		return err
	}

	c.tip = previousTip
	if previousTip != nil {
		c.height = previousTip.Header.Height
	} else {
		c.height = 0
	}
	logger.WithField("removed_height", removed.Header.Height).WithField("removed_id", removed.ID()).Info("block reverted")
	return nil
}

// PruneTemp deletes temp-region entries for blocks at or below
// finalizedHeight — once a height is finalized no fork below it can ever be
// resumed from.
func (c *Chain) PruneTemp(finalizedHeight uint64) error {
	it := c.db.NewIterator(storage.TempPrefix())
	defer it.Release()
	var toDelete [][]byte
	for it.Next() {
		var blk core.Block
		if err := json.Unmarshal(it.Value(), &blk); err != nil {
			continue
		}
		if blk.Header.Height <= finalizedHeight {
			toDelete = append(toDelete, append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Error(); err != nil {
		return errs.WrapStorage(err, "iterate temp region")
	}
	if len(toDelete) == 0 {
		return nil
	}
	batch := c.db.NewBatch()
	for _, k := range toDelete {
		batch.Delete(k)
	}
	return batch.Write()
}

// TempBlocks returns every block currently held in the temp region,
// ascending by height — used by the Processor at startup to resume a swap
// that was interrupted mid-sync.
func (c *Chain) TempBlocks() ([]*core.Block, error) {
	it := c.db.NewIterator(storage.TempPrefix())
	defer it.Release()
	var out []*core.Block
	for it.Next() {
		var blk core.Block
		if err := json.Unmarshal(it.Value(), &blk); err != nil {
			return nil, errs.WrapStorage(err, "decode temp block during scan")
		}
		out = append(out, &blk)
	}
	if err := it.Error(); err != nil {
		return nil, errs.WrapStorage(err, "iterate temp region")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Header.Height < out[j].Header.Height })
	return out, nil
}

// GetTempBlock looks up a superseded block previously moved into the temp
// region, e.g. for sync resume after a same-height swap.
func (c *Chain) GetTempBlock(id crypto.Hash) (*core.Block, error) {
	raw, err := c.db.Get(storage.TempBlockKey(id.Bytes()))
	if err != nil {
		return nil, err
	}
	return decodeBlock(raw)
}
