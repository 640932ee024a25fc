// Package chain owns the persisted chain: the append-only block store and
// materialized account state. It exposes a read-only DataAccess view and a
// batched StateStore write view; only the Processor is allowed to obtain
// and commit a StateStore (spec: "the Processor holds the only mutable
// reference to Chain during a block apply; all other components hold
// read-only views").
package chain

import (
	"encoding/json"
	"sync"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/log"
	"github.com/soliduschain/node/storage"
)

var logger = log.Component("chain")

// Chain is the single owner of persisted block and account state.
type Chain struct {
	db storage.DB

	mu     sync.RWMutex
	tip    *core.Block
	height uint64
}

// Open wraps db without touching it; call Bootstrap to ensure genesis is
// present before use.
func Open(db storage.DB) (*Chain, error) {
	c := &Chain{db: db}
	tipID, err := c.readTip()
	if errs.IsKind(err, errs.KindNotFound) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	blk, err := c.GetBlockByID(tipID)
	if err != nil {
		return nil, err
	}
	c.tip = blk
	c.height = blk.Header.Height
	return c, nil
}

// Bootstrap persists genesis if the store is empty, or verifies the stored
// genesis id matches the supplied one otherwise.
func (c *Chain) Bootstrap(genesis *core.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tip != nil {
		stored, err := c.getBlockByHeightLocked(0)
		if err != nil {
			return err
		}
		if stored.ID() != genesis.ID() {
			return errs.Validation("genesis mismatch: stored %s, supplied %s", stored.ID(), genesis.ID())
		}
		return nil
	}
	batch := c.db.NewBatch()
	if err := writeBlock(batch, genesis); err != nil {
		return err
	}
	batch.Set(storage.ChainTipKey(), genesis.ID().Bytes())
	if err := batch.Write(); err != nil {
		return err
	}
	c.tip = genesis
	c.height = 0
	logger.WithField("id", genesis.ID()).Info("genesis bootstrapped")
	return nil
}

func (c *Chain) readTip() (crypto.Hash, error) {
	raw, err := c.db.Get(storage.ChainTipKey())
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.HashFromBytes(raw)
}

// Tip returns the current last block. Nil before Bootstrap.
func (c *Chain) Tip() *core.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

// Height is the current tip's height.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// GetBlockByID fetches a block regardless of whether it is still the tip.
func (c *Chain) GetBlockByID(id crypto.Hash) (*core.Block, error) {
	raw, err := c.db.Get(storage.BlockByIDKey(id.Bytes()))
	if err != nil {
		return nil, err
	}
	return decodeBlock(raw)
}

// GetBlockByHeight fetches the block at a given height, if still on the
// canonical chain.
func (c *Chain) GetBlockByHeight(height uint64) (*core.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getBlockByHeightLocked(height)
}

func (c *Chain) getBlockByHeightLocked(height uint64) (*core.Block, error) {
	idBytes, err := c.db.Get(storage.BlockByHeightKey(height))
	if err != nil {
		return nil, err
	}
	id, err := crypto.HashFromBytes(idBytes)
	if err != nil {
		return nil, err
	}
	return c.GetBlockByID(id)
}

// GetAccount fetches the persisted account, or a NotFound error if it has
// never been touched.
func (c *Chain) GetAccount(addr crypto.Address) (*core.Account, error) {
	raw, err := c.db.Get(storage.AccountKey(addr.Bytes()))
	if err != nil {
		return nil, err
	}
	var a core.Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errs.WrapStorage(err, "decode account %s", addr)
	}
	return &a, nil
}

// AllDelegateAccounts scans every account with a non-nil Delegate, for
// ValidatorSet computation at round boundaries.
func (c *Chain) AllDelegateAccounts() ([]*core.Account, error) {
	it := c.db.NewIterator(storage.AccountPrefix())
	defer it.Release()
	var out []*core.Account
	for it.Next() {
		var a core.Account
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return nil, errs.WrapStorage(err, "decode account during scan")
		}
		if a.Delegate != nil {
			out = append(out, &a)
		}
	}
	if err := it.Error(); err != nil {
		return nil, errs.WrapStorage(err, "iterate accounts")
	}
	return out, nil
}

// GetModuleState reads an opaque module-owned blob under chain:state:.
func (c *Chain) GetModuleState(key []byte) ([]byte, error) {
	return c.db.Get(storage.ChainStateKey(key))
}

// RawDB exposes the underlying store for packages with their own prefix
// conventions (bft's per-validator records, forger's used-index marker).
// Returned only to trusted internal callers, never to modules.
func (c *Chain) RawDB() storage.DB { return c.db }

func writeBlock(batch storage.Batch, b *core.Block) error {
	raw, err := encodeBlock(b)
	if err != nil {
		return err
	}
	batch.Set(storage.BlockByIDKey(b.ID().Bytes()), raw)
	batch.Set(storage.BlockByHeightKey(b.Header.Height), b.ID().Bytes())
	return nil
}

func encodeBlock(b *core.Block) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, errs.WrapStorage(err, "encode block")
	}
	return raw, nil
}

func decodeBlock(raw []byte) (*core.Block, error) {
	var b core.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errs.WrapStorage(err, "decode block")
	}
	return &b, nil
}
