// Package pool holds unconfirmed transactions, organized for fast admission
// and fair selection into a forged block. It depends only on a narrow
// read-only view of chain state and a validator callback the Processor
// supplies — it never reaches into chain.Chain's write path itself.
package pool

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/log"
)

var logger = log.Component("pool")

// DataAccess is the read-only chain surface the pool consults: current
// account nonces/balances for admission checks and fresh state snapshots
// for the semantic dry-run callback.
type DataAccess interface {
	GetAccount(addr crypto.Address) (*core.Account, error)
	NewStateStore() *chain.StateStore
}

// ValidatorFunc runs a transaction's module-defined semantic checks
// (Verify, and typically Apply so later dry-run calls see its effects)
// against store. The Processor supplies this so the pool can catch
// failures that depend on state accumulated by other pooled transactions
// from the same sender, without the pool knowing anything about modules.
type ValidatorFunc func(store *chain.StateStore, tx *core.Transaction) error

// Config bounds admission and eviction.
type Config struct {
	MaxPerSender   int
	MaxGlobal      int
	ReplaceFactor  float64
	ExpiryInterval time.Duration
	MaxPayloadSize int
	MinFeePerByte  float64
}

type entry struct {
	tx         *core.Transaction
	id         crypto.Hash
	sender     crypto.Address
	feePerByte float64
	arrival    time.Time
}

// Pool is a thread-safe pending-transaction pool.
type Pool struct {
	mu sync.RWMutex

	cfg      Config
	data     DataAccess
	bus      *events.Bus
	validate ValidatorFunc

	byID     map[crypto.Hash]*entry
	bySender map[crypto.Address][]*entry

	// seen remembers recently removed (included/expired/evicted) ids so a
	// resubmission short-circuits without re-running the full pipeline.
	seen *lru.Cache[crypto.Hash, struct{}]
}

// New builds a pool bound to data and subscribes it to bus for NewBlock
// (prune included/stale) and DeleteBlock (re-admit reverted transactions).
func New(cfg Config, data DataAccess, bus *events.Bus, validate ValidatorFunc) *Pool {
	seen, _ := lru.New[crypto.Hash, struct{}](4096)
	p := &Pool{
		cfg:      cfg,
		data:     data,
		bus:      bus,
		validate: validate,
		byID:     make(map[crypto.Hash]*entry),
		bySender: make(map[crypto.Address][]*entry),
		seen:     seen,
	}
	if bus != nil {
		bus.Subscribe(p.onNewBlock)
		bus.Subscribe(p.onDeleteBlock)
	}
	return p
}

// Size returns the current number of pooled transactions.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// Get returns a pooled transaction by id.
func (p *Pool) Get(id crypto.Hash) (*core.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Admit runs the full admission pipeline: dedup, schema/signature/static
// validate, nonce check, per-sender bound with fee-based replacement,
// global bound with eviction, and finally the semantic dry-run callback.
func (p *Pool) Admit(tx *core.Transaction) error {
	if tx == nil {
		return errs.Validation("pool: nil transaction")
	}
	id := tx.ID()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[id]; exists {
		return errs.Validation("pool: transaction %s already pooled", id)
	}
	if _, recent := p.seen.Get(id); recent {
		return errs.Validation("pool: transaction %s was recently removed", id)
	}

	if err := staticValidate(tx); err != nil {
		return err
	}

	sender := tx.SenderPublicKey.Address()
	acct, err := p.data.GetAccount(sender)
	if err != nil && !errs.IsKind(err, errs.KindNotFound) {
		return err
	}
	var accountNonce uint64
	if acct != nil {
		accountNonce = acct.Nonce
	}
	if tx.Nonce < accountNonce {
		return errs.Validation("pool: nonce %d below account nonce %d", tx.Nonce, accountNonce)
	}

	newEntry := &entry{tx: tx, id: id, sender: sender, feePerByte: tx.FeePerByte(), arrival: time.Now()}

	senderTxs := p.bySender[sender]
	if len(senderTxs) >= p.cfg.MaxPerSender {
		lowest := lowestNonceFeeEntry(senderTxs)
		if newEntry.feePerByte < lowest.feePerByte*p.cfg.ReplaceFactor {
			return errs.Validation("pool: sender %s at capacity, new tx does not beat replace factor", sender)
		}
		p.removeEntryLocked(lowest, "replaced")
		senderTxs = p.bySender[sender]
	}

	if len(p.byID) >= p.cfg.MaxGlobal {
		min := p.lowestFeeEntryLocked()
		if min != nil && newEntry.feePerByte <= min.feePerByte {
			return errs.Validation("pool: pool at global capacity, new tx does not beat minimum fee")
		}
		if min != nil {
			p.removeEntryLocked(min, "evicted")
		}
	}

	if p.validate != nil {
		store := p.data.NewStateStore()
		ordered := append([]*entry(nil), senderTxs...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].tx.Nonce < ordered[j].tx.Nonce })
		for _, e := range ordered {
			if e.tx.Nonce >= tx.Nonce {
				continue
			}
			if err := p.validate(store, e.tx); err != nil {
				// A previously-admitted lower-nonce tx no longer replays
				// cleanly; it cannot invalidate the new admission on its
				// own, so simply stop replaying further context for it.
				break
			}
		}
		if err := p.validate(store, tx); err != nil {
			return errs.Verification("pool: semantic dry-run rejected transaction %s: %v", id, err)
		}
	}

	p.byID[id] = newEntry
	p.bySender[sender] = appendSorted(p.bySender[sender], newEntry)
	return nil
}

func staticValidate(tx *core.Transaction) error {
	if len(tx.Asset) == 0 && tx.ModuleID == 0 {
		return errs.Schema("pool: transaction missing module id")
	}
	if !tx.VerifyPrimarySignature() {
		return errs.Verification("pool: invalid primary signature")
	}
	return nil
}

func appendSorted(list []*entry, e *entry) []*entry {
	list = append(list, e)
	sort.Slice(list, func(i, j int) bool { return list[i].tx.Nonce < list[j].tx.Nonce })
	return list
}

func lowestNonceFeeEntry(list []*entry) *entry {
	min := list[0]
	for _, e := range list[1:] {
		if e.feePerByte < min.feePerByte {
			min = e
		}
	}
	return min
}

func (p *Pool) lowestFeeEntryLocked() *entry {
	var min *entry
	for _, e := range p.byID {
		if min == nil || e.feePerByte < min.feePerByte {
			min = e
		}
	}
	return min
}

// removeEntryLocked drops e from both indexes, remembers its id in the
// recently-seen cache, and tells the rest of the node why it left.
func (p *Pool) removeEntryLocked(e *entry, reason string) {
	delete(p.byID, e.id)
	senderTxs := p.bySender[e.sender]
	for i, s := range senderTxs {
		if s.id == e.id {
			senderTxs = append(senderTxs[:i], senderTxs[i+1:]...)
			break
		}
	}
	if len(senderTxs) == 0 {
		delete(p.bySender, e.sender)
	} else {
		p.bySender[e.sender] = senderTxs
	}
	p.seen.Add(e.id, struct{}{})
	if p.bus != nil {
		p.bus.Publish(events.TransactionRemoved{TxID: e.id, Reason: reason})
	}
}

// Select picks transactions for a forged block: senders ordered by their
// top-of-queue feePerByte descending, transactions taken in nonce order
// within each sender, stopping once maxPayloadSize would be exceeded.
// Never selects nonce n+1 for a sender without n already selected.
func (p *Pool) Select(maxPayloadSize int) []*core.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	senders := make([]crypto.Address, 0, len(p.bySender))
	for s := range p.bySender {
		senders = append(senders, s)
	}
	sort.Slice(senders, func(i, j int) bool {
		return topFeePerByte(p.bySender[senders[i]]) > topFeePerByte(p.bySender[senders[j]])
	})

	var out []*core.Transaction
	size := 0
	for _, s := range senders {
		for _, e := range p.bySender[s] {
			n := e.tx.Size()
			if size+n > maxPayloadSize {
				break
			}
			out = append(out, e.tx)
			size += n
		}
	}
	return out
}

func topFeePerByte(list []*entry) float64 {
	if len(list) == 0 {
		return 0
	}
	return list[0].feePerByte
}

// SweepExpired evicts every transaction older than expiryInterval. Intended
// to be called periodically (cmd/node runs it on a ticker).
func (p *Pool) SweepExpired() {
	cutoff := time.Now().Add(-p.cfg.ExpiryInterval)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range append([]*entry(nil), valuesOf(p.byID)...) {
		if e.arrival.Before(cutoff) {
			p.removeEntryLocked(e, "expired")
		}
	}
}

func valuesOf(m map[crypto.Hash]*entry) []*entry {
	out := make([]*entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// onNewBlock drops transactions the block included, plus any from the same
// senders whose nonce has now fallen behind the account.
func (p *Pool) onNewBlock(ev events.NewBlock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	touched := make(map[crypto.Address]bool)
	for _, tx := range ev.Block.Payload {
		id := tx.ID()
		if e, ok := p.byID[id]; ok {
			p.removeEntryLocked(e, "included")
		}
		touched[tx.SenderPublicKey.Address()] = true
	}
	for sender := range touched {
		acct, err := p.data.GetAccount(sender)
		if err != nil {
			continue
		}
		for _, e := range append([]*entry(nil), p.bySender[sender]...) {
			if e.tx.Nonce < acct.Nonce {
				p.removeEntryLocked(e, "stale_nonce")
			}
		}
	}
}

// onDeleteBlock re-admits a reverted block's transactions. Transactions
// already present are left alone; ones that now fail admission are
// silently dropped, per spec.
func (p *Pool) onDeleteBlock(ev events.DeleteBlock) {
	for _, tx := range ev.Block.Payload {
		if _, ok := p.Get(tx.ID()); ok {
			continue
		}
		if err := p.Admit(tx); err != nil {
			logger.WithField("tx", tx.ID()).WithField("err", err).Debug("dropped transaction on fork replay")
		}
	}
}
