// Package forger schedules block production for locally unlocked delegates
// and guards against double-forging with a hash-onion reveal scheme. It
// depends on chain state, the transaction pool, and the processor, and is
// itself the only component allowed to build and sign new blocks.
package forger

import (
	"fmt"
	"sync"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/log"
	"github.com/soliduschain/node/pool"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/slot"
)

var logger = log.Component("forger")

// KeyProvider decrypts a delegate's private key on demand. wallet.Store
// satisfies this.
type KeyProvider interface {
	Unlock(address crypto.Address, password string) (crypto.PrivKey, error)
}

// SyncStatus reports whether the Synchronizer currently owns the chain —
// the Forger must pause while a sync mechanism is mutating it.
type SyncStatus interface {
	IsActive() bool
}

// Config bounds the scheduling loop. How often Tick is invoked is up to the
// caller's scheduler; WaitThreshold and BlockTime are both seconds. WaitThreshold < BlockTime is enforced by Validate, matching the
// hard boot invariant.
type Config struct {
	WaitThreshold    uint32
	BlockTime        uint32
	MinPendingTxs    int
	OnionLength      int
	RoundLength      int
	MaxPayloadLength int
}

// Validate enforces the boot invariant waitThreshold < blockTime.
func (c Config) Validate() error {
	if c.BlockTime == 0 {
		return errs.Validation("forger: config.BlockTime must be positive")
	}
	if c.WaitThreshold >= c.BlockTime {
		return errs.Validation("forger: waitThreshold (%d) must be less than blockTime (%d)", c.WaitThreshold, c.BlockTime)
	}
	return nil
}

type delegateKey struct {
	priv  crypto.PrivKey
	pub   crypto.PubKey
	onion *onionState
}

// Forger holds the delegate keys unlocked for this node and drives the
// per-tick forging decision described in updateForgingStatus / Tick.
type Forger struct {
	mu sync.Mutex

	chain     *chain.Chain
	bftMgr    *bft.Manager
	proc      *processor.Processor
	pool      *pool.Pool
	clock     slot.Clock
	cfg       Config
	keys      KeyProvider
	sync      SyncStatus
	unlocked  map[crypto.Address]*delegateKey
	validators core.ValidatorSet
}

// New wires a Forger to its collaborators and subscribes to
// events.ValidatorsChanged so its round assignment tracks the Processor's.
// Until the first such event it uses a set computed from the current
// delegate accounts, with RoundLength as the set size.
func New(c *chain.Chain, bftMgr *bft.Manager, proc *processor.Processor, p *pool.Pool, clock slot.Clock, cfg Config, keys KeyProvider, sync SyncStatus, bus *events.Bus) *Forger {
	f := &Forger{
		chain:    c,
		bftMgr:   bftMgr,
		proc:     proc,
		pool:     p,
		clock:    clock,
		cfg:      cfg,
		keys:     keys,
		sync:     sync,
		unlocked: make(map[crypto.Address]*delegateKey),
	}
	if cfg.RoundLength > 0 {
		if accts, err := c.AllDelegateAccounts(); err == nil {
			f.validators = core.ComputeValidatorSet(accts, cfg.RoundLength)
		}
	}
	if bus != nil {
		bus.Subscribe(func(ev events.ValidatorsChanged) {
			f.mu.Lock()
			f.validators = ev.Set
			f.mu.Unlock()
		})
	}
	return f
}

// UpdateForgingStatus decrypts (or wipes) the key material for address.
// forging=true unlocks the private key and loads or mints its hash onion;
// forging=false wipes both from memory. Matches the spec's
// updateForgingStatus(address, password, forging) operator RPC.
func (f *Forger) UpdateForgingStatus(address crypto.Address, password string, forging bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !forging {
		delete(f.unlocked, address)
		logger.WithField("address", address).Info("forging disabled")
		return nil
	}

	priv, err := f.keys.Unlock(address, password)
	if err != nil {
		return err
	}
	pub, err := priv.Public()
	if err != nil {
		return errs.Key("forger: derive public key for %s: %v", address, err)
	}
	if pub.Address() != address {
		return errs.Key("forger: unlocked key does not match address %s", address)
	}

	onion, err := loadOrCreateOnion(f.chain.RawDB(), address, f.cfg.OnionLength)
	if err != nil {
		return err
	}

	f.unlocked[address] = &delegateKey{priv: priv, pub: pub, onion: onion}
	logger.WithField("address", address).Info("forging enabled")
	return nil
}

// IsForging reports whether address currently has unlocked key material.
func (f *Forger) IsForging(address crypto.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.unlocked[address]
	return ok
}

func (f *Forger) delegate(address crypto.Address) (*delegateKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.unlocked[address]
	return d, ok
}

func (f *Forger) currentValidators() core.ValidatorSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validators
}

func (f *Forger) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("forger(unlocked=%d)", len(f.unlocked))
}
