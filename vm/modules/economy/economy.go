// Package economy implements the token-transfer module: the simplest
// application module, moving balance between two accounts.
package economy

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/vm"
)

// ModuleID is this module's fixed identifier in the (moduleID, assetID)
// dispatch table.
const ModuleID uint32 = 2

// AssetTransfer is the only asset this module handles.
const AssetTransfer uint32 = 0

// TransferAsset moves Amount from the transaction's sender to Recipient.
type TransferAsset struct {
	Recipient crypto.Address `json:"recipient"`
	Amount    uint64         `json:"amount"`
}

// Module implements vm.Module for balance transfers.
type Module struct{}

// New returns the economy module.
func New() *Module { return &Module{} }

func (m *Module) ID() uint32        { return ModuleID }
func (m *Module) Name() string      { return "economy" }
func (m *Module) TransactionAssets() []uint32 { return []uint32{AssetTransfer} }

func (m *Module) AccountSchema() core.ModuleSchema {
	return core.ModuleSchema{
		ModuleID:   ModuleID,
		ModuleName: m.Name(),
		Fields:     []core.FieldSchema{{Name: "balance", Type: "uint64"}},
	}
}

func decodeTransfer(asset []byte) (*TransferAsset, error) {
	var t TransferAsset
	if err := json.Unmarshal(asset, &t); err != nil {
		return nil, errs.WrapSchema(err, "decode transfer asset")
	}
	return &t, nil
}

func (m *Module) Verify(ctx *vm.Context, asset []byte) error {
	t, err := decodeTransfer(asset)
	if err != nil {
		return err
	}
	if t.Amount == 0 {
		return errs.Validation("economy: transfer amount must be positive")
	}
	sender, err := ctx.State.GetAccount(ctx.Tx.SenderPublicKey.Address())
	if err != nil {
		return err
	}
	if sender.Balance < t.Amount {
		return errs.Verification("economy: insufficient balance: have %d need %d", sender.Balance, t.Amount)
	}
	return nil
}

func (m *Module) Apply(ctx *vm.Context, asset []byte) error {
	t, err := decodeTransfer(asset)
	if err != nil {
		return err
	}
	sender, err := ctx.State.GetAccount(ctx.Tx.SenderPublicKey.Address())
	if err != nil {
		return err
	}
	if sender.Balance < t.Amount {
		return errs.Verification("economy: insufficient balance at apply time")
	}
	sender.Balance -= t.Amount
	if err := ctx.State.PutAccount(sender); err != nil {
		return err
	}

	recipient, err := ctx.State.GetAccount(t.Recipient)
	if err != nil {
		return err
	}
	recipient.Balance += t.Amount
	return ctx.State.PutAccount(recipient)
}

func (m *Module) AfterBlockApply(ctx *vm.Context) error { return nil }
