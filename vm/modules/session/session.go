// Package session implements staked multiplayer sessions: players lock
// balance into an open session, and a result transaction distributes the
// locked pot back out as rewards.
package session

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/vm"
)

const ModuleID uint32 = 5

const (
	AssetOpen   uint32 = 0
	AssetResult uint32 = 1
)

// Session is a persisted staked-session record.
type Session struct {
	ID        string           `json:"id"`
	Host      crypto.Address   `json:"host"`
	Stakes    map[string]uint64 `json:"stakes"` // hex address -> staked amount
	Pot       uint64           `json:"pot"`
	Open      bool             `json:"open"`
	Finalized bool             `json:"finalized"`
}

// OpenAsset locks Stakes[addr] from each named player's balance into a new
// session pot.
type OpenAsset struct {
	SessionID string                    `json:"sessionId"`
	Stakes    map[crypto.Address]uint64 `json:"stakes"`
}

// ResultAsset distributes an open session's pot as Rewards and closes the
// session. The sum of Rewards must not exceed the session's pot.
type ResultAsset struct {
	SessionID string                    `json:"sessionId"`
	Rewards   map[crypto.Address]uint64 `json:"rewards"`
}

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) ID() uint32   { return ModuleID }
func (m *Module) Name() string { return "session" }
func (m *Module) TransactionAssets() []uint32 {
	return []uint32{AssetOpen, AssetResult}
}

func (m *Module) AccountSchema() core.ModuleSchema {
	return core.ModuleSchema{ModuleID: ModuleID, ModuleName: m.Name()}
}

func sessionKey(id string) []byte { return []byte("session:" + id) }

func getSession(ctx *vm.Context, id string) (*Session, error) {
	raw, err := ctx.State.GetModuleState(sessionKey(id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.NotFound("session %s", id)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errs.WrapSchema(err, "decode session %s", id)
	}
	return &s, nil
}

func putSession(ctx *vm.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return errs.WrapSchema(err, "encode session %s", s.ID)
	}
	return ctx.State.PutModuleState(sessionKey(s.ID), raw)
}

func (m *Module) Verify(ctx *vm.Context, asset []byte) error {
	switch ctx.Tx.AssetID {
	case AssetOpen:
		var a OpenAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode open asset")
		}
		if a.SessionID == "" || len(a.Stakes) == 0 {
			return errs.Validation("session: open requires sessionId and at least one stake")
		}
		if _, err := getSession(ctx, a.SessionID); !errs.IsKind(err, errs.KindNotFound) {
			if err == nil {
				return errs.Verification("session: %s already open", a.SessionID)
			}
			return err
		}
		for addr, amount := range a.Stakes {
			if amount == 0 {
				return errs.Validation("session: stake for %s must be positive", addr)
			}
			acct, err := ctx.State.GetAccount(addr)
			if err != nil {
				return err
			}
			if acct.Balance < amount {
				return errs.Verification("session: %s has insufficient balance to stake %d", addr, amount)
			}
		}
	case AssetResult:
		var a ResultAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode result asset")
		}
		s, err := getSession(ctx, a.SessionID)
		if err != nil {
			return err
		}
		if !s.Open || s.Finalized {
			return errs.Verification("session: %s is not open for results", a.SessionID)
		}
		if s.Host != ctx.Tx.SenderPublicKey.Address() {
			return errs.Verification("session: only the host may submit results")
		}
		var total uint64
		for _, r := range a.Rewards {
			if r > 0 && total+r < total {
				return errs.Validation("session: reward sum overflows")
			}
			total += r
		}
		if total > s.Pot {
			return errs.Verification("session: reward sum %d exceeds pot %d", total, s.Pot)
		}
	default:
		return errs.Schema("session: unknown asset id %d", ctx.Tx.AssetID)
	}
	return nil
}

func (m *Module) Apply(ctx *vm.Context, asset []byte) error {
	switch ctx.Tx.AssetID {
	case AssetOpen:
		var a OpenAsset
		_ = json.Unmarshal(asset, &a)
		var pot uint64
		stakes := make(map[string]uint64, len(a.Stakes))
		for addr, amount := range a.Stakes {
			acct, err := ctx.State.GetAccount(addr)
			if err != nil {
				return err
			}
			if acct.Balance < amount {
				return errs.Verification("session: insufficient balance at apply time for %s", addr)
			}
			acct.Balance -= amount
			if err := ctx.State.PutAccount(acct); err != nil {
				return err
			}
			stakes[addr.Hex()] = amount
			pot += amount
		}
		s := &Session{ID: a.SessionID, Host: ctx.Tx.SenderPublicKey.Address(), Stakes: stakes, Pot: pot, Open: true}
		return putSession(ctx, s)
	case AssetResult:
		var a ResultAsset
		_ = json.Unmarshal(asset, &a)
		s, err := getSession(ctx, a.SessionID)
		if err != nil {
			return err
		}
		var total uint64
		for _, r := range a.Rewards {
			total += r
		}
		if total > s.Pot {
			return errs.Verification("session: reward sum exceeds pot at apply time")
		}
		for addr, reward := range a.Rewards {
			if reward == 0 {
				continue
			}
			acct, err := ctx.State.GetAccount(addr)
			if err != nil {
				return err
			}
			acct.Balance += reward
			if err := ctx.State.PutAccount(acct); err != nil {
				return err
			}
		}
		s.Open = false
		s.Finalized = true
		s.Pot -= total
		return putSession(ctx, s)
	}
	return errs.Schema("session: unknown asset id %d", ctx.Tx.AssetID)
}

func (m *Module) AfterBlockApply(ctx *vm.Context) error { return nil }
