// Package indexer maintains a secondary index from transaction id to the
// block that committed it, so the operator RPC surface's
// getTransactionBy{Id,Ids} can answer without scanning every block.
// Adapted from the teacher's owner/asset secondary index: same
// subscribe-and-maintain-a-lookup-table shape, re-keyed for transaction
// location instead of ownership lists.
package indexer

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/log"
	"github.com/soliduschain/node/storage"
)

var logger = log.Component("indexer")

// Location names the block a transaction was committed in.
type Location struct {
	BlockID crypto.Hash `json:"block_id"`
	Height  uint64      `json:"height"`
}

// Indexer subscribes to commit/revert events and keeps the transaction
// location index current.
type Indexer struct {
	db storage.DB
}

// New creates an Indexer backed by db and subscribes it to bus.
func New(db storage.DB, bus *events.Bus) *Indexer {
	idx := &Indexer{db: db}
	if bus != nil {
		bus.Subscribe(idx.onNewBlock)
		bus.Subscribe(idx.onDeleteBlock)
	}
	return idx
}

// Locate returns where txID was committed, or ok=false if the index has no
// record of it (never seen, or its block was since reverted).
func (idx *Indexer) Locate(txID crypto.Hash) (Location, bool, error) {
	raw, err := idx.db.Get(storage.TxIndexKey(txID.Bytes()))
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return Location{}, false, nil
		}
		return Location{}, false, err
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return Location{}, false, errs.WrapSchema(err, "indexer: decode location for tx %s", txID.Hex())
	}
	return loc, true, nil
}

func (idx *Indexer) onNewBlock(ev events.NewBlock) {
	idx.indexBlock(ev.Block)
}

func (idx *Indexer) indexBlock(block *core.Block) {
	loc := Location{BlockID: block.ID(), Height: block.Header.Height}
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	for _, tx := range block.Payload {
		if err := idx.db.Set(storage.TxIndexKey(tx.ID().Bytes()), raw); err != nil {
			logger.WithField("tx", tx.ID().Hex()).WithField("err", err).Warn("index write failed")
		}
	}
}

func (idx *Indexer) onDeleteBlock(ev events.DeleteBlock) {
	for _, tx := range ev.Block.Payload {
		loc, ok, err := idx.Locate(tx.ID())
		if err != nil || !ok || loc.BlockID != ev.Block.ID() {
			// Either unreadable, already gone, or reindexed to a
			// different block by a later apply — leave it alone.
			continue
		}
		if err := idx.db.Delete(storage.TxIndexKey(tx.ID().Bytes())); err != nil {
			logger.WithField("tx", tx.ID().Hex()).WithField("err", err).Warn("index delete failed")
		}
	}
}
