package chain

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/storage"
)

// UndoOp is one inverse operation: restoring Key to PrevValue (or deleting
// it, if Existed is false) reverts exactly the effect of the write that
// produced it.
type UndoOp struct {
	Key       []byte
	Existed   bool
	PrevValue []byte
}

// StateStore is a copy-on-write write view over Chain: reads fall through
// to the persisted chain, writes are buffered in memory and only committed
// atomically by CommitBlock. Every write is paired with an UndoOp captured
// against the value Chain held before this StateStore touched it, so
// replaying the undo list is always the inverse of this StateStore's
// effect regardless of how many times a key was written in between.
type StateStore struct {
	chain *Chain

	accounts       map[crypto.Address]*core.Account
	moduleState    map[string][]byte
	deletedState   map[string]bool
	undo           []UndoOp
	undoRecorded   map[string]bool
}

// NewStateStore opens a fresh write view over the chain's current persisted
// state.
func (c *Chain) NewStateStore() *StateStore {
	return &StateStore{
		chain:        c,
		accounts:     make(map[crypto.Address]*core.Account),
		moduleState:  make(map[string][]byte),
		deletedState: make(map[string]bool),
		undoRecorded: make(map[string]bool),
	}
}

// GetAccount returns the touched-copy if this store already wrote addr,
// otherwise a clone of the persisted account (or a fresh zero account if
// none exists yet).
func (s *StateStore) GetAccount(addr crypto.Address) (*core.Account, error) {
	if a, ok := s.accounts[addr]; ok {
		return a, nil
	}
	a, err := s.chain.GetAccount(addr)
	if errs.IsKind(err, errs.KindNotFound) {
		a = core.NewAccount(addr)
	} else if err != nil {
		return nil, err
	}
	clone := a.Clone()
	s.accounts[addr] = clone
	return clone, nil
}

// PutAccount stages acc for commit, recording the pre-StateStore persisted
// value the first time this key is touched.
func (s *StateStore) PutAccount(acc *core.Account) error {
	key := storage.AccountKey(acc.Address.Bytes())
	if err := s.recordUndo(key); err != nil {
		return err
	}
	s.accounts[acc.Address] = acc.Clone()
	return nil
}

// GetModuleState reads an opaque per-module blob, falling through to the
// persisted value.
func (s *StateStore) GetModuleState(key []byte) ([]byte, error) {
	sk := string(key)
	if s.deletedState[sk] {
		return nil, nil
	}
	if v, ok := s.moduleState[sk]; ok {
		return v, nil
	}
	v, err := s.chain.GetModuleState(key)
	if errs.IsKind(err, errs.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.moduleState[sk] = v
	return v, nil
}

// PutModuleState stages a module-owned blob for commit.
func (s *StateStore) PutModuleState(key, value []byte) error {
	fullKey := storage.ChainStateKey(key)
	if err := s.recordUndo(fullKey); err != nil {
		return err
	}
	delete(s.deletedState, string(key))
	s.moduleState[string(key)] = value
	return nil
}

// DeleteModuleState stages removal of a module-owned blob for commit — used
// by modules that burn/destroy records rather than overwrite them.
func (s *StateStore) DeleteModuleState(key []byte) error {
	fullKey := storage.ChainStateKey(key)
	if err := s.recordUndo(fullKey); err != nil {
		return err
	}
	delete(s.moduleState, string(key))
	s.deletedState[string(key)] = true
	return nil
}

func (s *StateStore) recordUndo(fullKey []byte) error {
	sk := string(fullKey)
	if s.undoRecorded[sk] {
		return nil
	}
	s.undoRecorded[sk] = true
	prev, err := s.chain.db.Get(fullKey)
	if errs.IsKind(err, errs.KindNotFound) {
		s.undo = append(s.undo, UndoOp{Key: append([]byte(nil), fullKey...), Existed: false})
		return nil
	}
	if err != nil {
		return err
	}
	s.undo = append(s.undo, UndoOp{Key: append([]byte(nil), fullKey...), Existed: true, PrevValue: prev})
	return nil
}

// CommitBlock atomically writes block bytes, every touched account, every
// touched module-state blob, the undo journal for this block, and advances
// the tip pointer, all in one batch.
func (c *Chain) CommitBlock(block *core.Block, store *StateStore) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.db.NewBatch()
	if err := writeBlock(batch, block); err != nil {
		return err
	}
	for addr, acc := range store.accounts {
		raw, err := json.Marshal(acc)
		if err != nil {
			return errs.WrapStorage(err, "encode account %s", addr)
		}
		batch.Set(storage.AccountKey(addr.Bytes()), raw)
	}
	for key := range store.deletedState {
		batch.Delete(storage.ChainStateKey([]byte(key)))
	}
	for key, val := range store.moduleState {
		batch.Set(storage.ChainStateKey([]byte(key)), val)
	}
	undoRaw, err := json.Marshal(store.undo)
	if err != nil {
		return errs.WrapStorage(err, "encode undo journal for block %s", block.ID())
	}
	batch.Set(storage.UndoKey(block.ID().Bytes()), undoRaw)
	batch.Set(storage.ChainTipKey(), block.ID().Bytes())

	if err := batch.Write(); err != nil {
		return err
	}
	c.tip = block
	c.height = block.Header.Height
	logger.WithField("height", block.Header.Height).WithField("id", block.ID()).Debug("block committed")
	return nil
}

// UndoJournal loads the inverse-operation list recorded for blockID.
func (c *Chain) UndoJournal(blockID crypto.Hash) ([]UndoOp, error) {
	raw, err := c.db.Get(storage.UndoKey(blockID.Bytes()))
	if err != nil {
		return nil, err
	}
	var ops []UndoOp
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, errs.WrapStorage(err, "decode undo journal for block %s", blockID)
	}
	return ops, nil
}

// DeleteUndoJournal removes a finalized block's journal — per spec, "deleted
// when the block is finalized".
func (c *Chain) DeleteUndoJournal(blockID crypto.Hash) error {
	return c.db.Delete(storage.UndoKey(blockID.Bytes()))
}

// ApplyUndo replays ops in reverse order against the live store, restoring
// exactly the state CommitBlock's StateStore found before it ran. It only
// restores keys: the tip pointer, height index and temp region are left as
// they are (DeleteLastBlock replays the journal itself in its own batch).
func (c *Chain) ApplyUndo(ops []UndoOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.db.NewBatch()
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if op.Existed {
			batch.Set(op.Key, op.PrevValue)
		} else {
			batch.Delete(op.Key)
		}
	}
	return batch.Write()
}
