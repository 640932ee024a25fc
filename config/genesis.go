package config

import (
	"encoding/json"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/storage"
)

// BuildGenesisBlock signs and returns block #0 from cfg's genesis section.
// Generalized from the teacher's CreateGenesisBlock: this node's
// chain.Chain materializes account state from applied payloads rather than
// a state.State the block itself commits to, so the allocation is written
// separately by SeedAccounts — this function only produces the signed,
// empty-payload genesis header.
func BuildGenesisBlock(cfg *GenesisConfig, proposerPriv crypto.PrivKey, proposerPub crypto.PubKey) (*core.Block, error) {
	block := core.NewBlock(0, 0, crypto.Hash{}, proposerPub, core.BlockAsset{}, nil)
	if _, err := block.Header.Sign(proposerPriv); err != nil {
		return nil, errs.WrapSchema(err, "config: sign genesis block")
	}
	return block, nil
}

// SeedAccounts writes cfg.Alloc directly into db under storage.AccountKey,
// bypassing the Processor's apply pipeline since genesis balances are not
// the result of any transaction. Must run before processor.Processor.Init,
// matching spec §4.1's "account state at height h is the deterministic
// fold of all applied payloads through h over genesis" — genesis itself is
// the base case that fold starts from, not a fold step. Accounts named in
// cfg.Delegates are additionally marked with DelegateInfo so
// processor.Init's refreshValidatorSet (which runs immediately after
// Bootstrap) computes a non-empty genesis ValidatorSet.
func SeedAccounts(db storage.DB, cfg *GenesisConfig) error {
	delegates := make(map[crypto.Address]bool, len(cfg.Delegates))
	for _, pubkeyHex := range cfg.Delegates {
		pub, err := crypto.PubKeyFromHex(pubkeyHex)
		if err != nil {
			return errs.Validation("config: genesis.delegates key %q: %v", pubkeyHex, err)
		}
		delegates[pub.Address()] = true
	}

	written := make(map[crypto.Address]bool, len(cfg.Alloc))
	for pubkeyHex, balance := range cfg.Alloc {
		pub, err := crypto.PubKeyFromHex(pubkeyHex)
		if err != nil {
			return errs.Validation("config: genesis.alloc key %q: %v", pubkeyHex, err)
		}
		acc := &core.Account{
			Address:   pub.Address(),
			Balance:   balance,
			Nonce:     0,
			PublicKey: pub,
		}
		if delegates[acc.Address] {
			acc.Delegate = &core.DelegateInfo{Username: acc.Address.Hex()[:8], VoteWeight: balance}
		}
		if err := writeAccount(db, acc); err != nil {
			return err
		}
		written[acc.Address] = true
	}

	// A delegate named only in cfg.Delegates (not cfg.Alloc) still needs
	// an account record to be picked up by AllDelegateAccounts.
	for _, pubkeyHex := range cfg.Delegates {
		pub, err := crypto.PubKeyFromHex(pubkeyHex)
		if err != nil {
			return errs.Validation("config: genesis.delegates key %q: %v", pubkeyHex, err)
		}
		if written[pub.Address()] {
			continue
		}
		acc := &core.Account{
			Address:   pub.Address(),
			PublicKey: pub,
			Delegate:  &core.DelegateInfo{Username: pub.Address().Hex()[:8], VoteWeight: 1},
		}
		if err := writeAccount(db, acc); err != nil {
			return err
		}
	}
	return nil
}

func writeAccount(db storage.DB, acc *core.Account) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return errs.WrapSchema(err, "config: marshal genesis account %s", acc.Address.Hex())
	}
	if err := db.Set(storage.AccountKey(acc.Address.Bytes()), raw); err != nil {
		return errs.WrapSchema(err, "config: write genesis account %s", acc.Address.Hex())
	}
	return nil
}

// Bootstrap persists the genesis block (idempotently, via chain.Bootstrap)
// and seeds its account allocation the first time the store is empty.
// On a store that already holds a chain, only the genesis id check runs and
// the persisted accounts are left untouched.
func Bootstrap(c *chain.Chain, db storage.DB, cfg *GenesisConfig, block *core.Block) error {
	fresh := c.Tip() == nil
	if err := c.Bootstrap(block); err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	return SeedAccounts(db, cfg)
}

// FeePolicy composes cfg's flat per-byte fee and optional per-(module,asset)
// surcharges into a processor.FeePolicy.
func (cfg *GenesisConfig) FeePolicy() processor.FeePolicy {
	surcharges := make(map[[2]uint32]uint64, len(cfg.BaseFees))
	for _, bf := range cfg.BaseFees {
		surcharges[[2]uint32{bf.ModuleID, bf.AssetID}] = bf.Fee
	}
	return processor.FeePolicy{
		MinFeePerByte: cfg.MinFeePerByte,
		BaseFee: func(moduleID, assetID uint32) uint64 {
			return surcharges[[2]uint32{moduleID, assetID}]
		},
	}
}

// ToProcessorConfig composes a processor.Config from the genesis section.
func (cfg *GenesisConfig) ToProcessorConfig() processor.Config {
	return processor.Config{
		MaxPayloadLength: cfg.MaxPayloadLength,
		FeePolicy:        cfg.FeePolicy(),
		RoundLength:      cfg.RoundLength,
		ValidatorSetSize: cfg.ValidatorSetSize,
	}
}
