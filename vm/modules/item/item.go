// Package item implements minting, burning, transferring, and template
// registration for tradeable game items — adapted from the teacher's
// asset/template modules onto the fixed module contract. Item and template
// records live as opaque module-state blobs rather than account fields,
// since core.Account carries only what consensus needs directly.
package item

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/vm"
)

// ModuleID is this module's fixed identifier.
const ModuleID uint32 = 3

const (
	AssetMint             uint32 = 0
	AssetBurn             uint32 = 1
	AssetTransfer         uint32 = 2
	AssetRegisterTemplate uint32 = 3
)

// Record is a minted item's persisted state.
type Record struct {
	ID         string            `json:"id"`
	TemplateID string            `json:"templateId"`
	Owner      crypto.Address    `json:"owner"`
	Properties map[string]any    `json:"properties,omitempty"`
	Tradeable  bool              `json:"tradeable"`
	MintedAt   uint64            `json:"mintedAt"`
	Listed     bool              `json:"listed"`
}

// Template describes a class of mintable items.
type Template struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Tradeable bool           `json:"tradeable"`
	Creator   crypto.Address `json:"creator"`
}

type MintAsset struct {
	ItemID     string         `json:"itemId"`
	TemplateID string         `json:"templateId"`
	Owner      crypto.Address `json:"owner"`
	Properties map[string]any `json:"properties,omitempty"`
}

type BurnAsset struct {
	ItemID string `json:"itemId"`
}

type TransferAsset struct {
	ItemID    string         `json:"itemId"`
	Recipient crypto.Address `json:"recipient"`
}

type RegisterTemplateAsset struct {
	TemplateID string `json:"templateId"`
	Name       string `json:"name"`
	Tradeable  bool   `json:"tradeable"`
}

// Module implements vm.Module for the item lifecycle.
type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) ID() uint32   { return ModuleID }
func (m *Module) Name() string { return "item" }
func (m *Module) TransactionAssets() []uint32 {
	return []uint32{AssetMint, AssetBurn, AssetTransfer, AssetRegisterTemplate}
}

func (m *Module) AccountSchema() core.ModuleSchema {
	return core.ModuleSchema{ModuleID: ModuleID, ModuleName: m.Name()}
}

func recordKey(itemID string) []byte     { return []byte("item:" + itemID) }
func templateKey(templateID string) []byte { return []byte("template:" + templateID) }

func getRecord(ctx *vm.Context, itemID string) (*Record, error) {
	raw, err := ctx.State.GetModuleState(recordKey(itemID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.NotFound("item %s", itemID)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errs.WrapSchema(err, "decode item %s", itemID)
	}
	return &r, nil
}

func putRecord(ctx *vm.Context, r *Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return errs.WrapSchema(err, "encode item %s", r.ID)
	}
	return ctx.State.PutModuleState(recordKey(r.ID), raw)
}

func getTemplate(ctx *vm.Context, templateID string) (*Template, error) {
	raw, err := ctx.State.GetModuleState(templateKey(templateID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.NotFound("template %s", templateID)
	}
	var t Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errs.WrapSchema(err, "decode template %s", templateID)
	}
	return &t, nil
}

func (m *Module) Verify(ctx *vm.Context, asset []byte) error {
	switch ctx.Tx.AssetID {
	case AssetMint:
		var a MintAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode mint asset")
		}
		if a.ItemID == "" || a.TemplateID == "" {
			return errs.Validation("item: mint requires itemId and templateId")
		}
		if _, err := getTemplate(ctx, a.TemplateID); err != nil {
			return err
		}
		if _, err := getRecord(ctx, a.ItemID); !errs.IsKind(err, errs.KindNotFound) {
			if err == nil {
				return errs.Verification("item: %s already minted", a.ItemID)
			}
			return err
		}
	case AssetBurn:
		var a BurnAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode burn asset")
		}
		rec, err := getRecord(ctx, a.ItemID)
		if err != nil {
			return err
		}
		if rec.Owner != ctx.Tx.SenderPublicKey.Address() {
			return errs.Verification("item: burn requires ownership")
		}
	case AssetTransfer:
		var a TransferAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode transfer asset")
		}
		rec, err := getRecord(ctx, a.ItemID)
		if err != nil {
			return err
		}
		if rec.Owner != ctx.Tx.SenderPublicKey.Address() {
			return errs.Verification("item: transfer requires ownership")
		}
		if !rec.Tradeable {
			return errs.Verification("item: %s is not tradeable", a.ItemID)
		}
		if rec.Listed {
			return errs.Verification("item: %s has an active market listing", a.ItemID)
		}
	case AssetRegisterTemplate:
		var a RegisterTemplateAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode register-template asset")
		}
		if a.TemplateID == "" || a.Name == "" {
			return errs.Validation("item: register-template requires id and name")
		}
		if _, err := getTemplate(ctx, a.TemplateID); !errs.IsKind(err, errs.KindNotFound) {
			if err == nil {
				return errs.Verification("item: template %s already registered", a.TemplateID)
			}
			return err
		}
	default:
		return errs.Schema("item: unknown asset id %d", ctx.Tx.AssetID)
	}
	return nil
}

func (m *Module) Apply(ctx *vm.Context, asset []byte) error {
	switch ctx.Tx.AssetID {
	case AssetMint:
		var a MintAsset
		_ = json.Unmarshal(asset, &a)
		tmpl, err := getTemplate(ctx, a.TemplateID)
		if err != nil {
			return err
		}
		owner := a.Owner
		if owner.IsZero() {
			owner = ctx.Tx.SenderPublicKey.Address()
		}
		rec := &Record{
			ID:         a.ItemID,
			TemplateID: a.TemplateID,
			Owner:      owner,
			Properties: a.Properties,
			Tradeable:  tmpl.Tradeable,
			MintedAt:   ctx.Block.Header.Height,
		}
		return putRecord(ctx, rec)
	case AssetBurn:
		var a BurnAsset
		_ = json.Unmarshal(asset, &a)
		return ctx.State.DeleteModuleState(recordKey(a.ItemID))
	case AssetTransfer:
		var a TransferAsset
		_ = json.Unmarshal(asset, &a)
		rec, err := getRecord(ctx, a.ItemID)
		if err != nil {
			return err
		}
		rec.Owner = a.Recipient
		return putRecord(ctx, rec)
	case AssetRegisterTemplate:
		var a RegisterTemplateAsset
		_ = json.Unmarshal(asset, &a)
		tmpl := &Template{ID: a.TemplateID, Name: a.Name, Tradeable: a.Tradeable, Creator: ctx.Tx.SenderPublicKey.Address()}
		raw, err := json.Marshal(tmpl)
		if err != nil {
			return errs.WrapSchema(err, "encode template")
		}
		return ctx.State.PutModuleState(templateKey(a.TemplateID), raw)
	}
	return errs.Schema("item: unknown asset id %d", ctx.Tx.AssetID)
}

func (m *Module) AfterBlockApply(ctx *vm.Context) error { return nil }

// MarkListed is called by the market module (same process, no cyclic
// dependency back into item) to flip an item's Listed flag; exported so
// market can keep the item record's Listed/Tradeable invariants consistent
// without reaching into item's storage keys directly.
func MarkListed(ctx *vm.Context, itemID string, listed bool) error {
	rec, err := getRecord(ctx, itemID)
	if err != nil {
		return err
	}
	rec.Listed = listed
	return putRecord(ctx, rec)
}

// GetOwnerAndTradeable is a narrow read helper for the market module.
func GetOwnerAndTradeable(ctx *vm.Context, itemID string) (owner crypto.Address, tradeable, listed bool, err error) {
	rec, err := getRecord(ctx, itemID)
	if err != nil {
		return crypto.Address{}, false, false, err
	}
	return rec.Owner, rec.Tradeable, rec.Listed, nil
}

// TransferOwnership is used by market's buy handler to move an item without
// re-running item's own transfer preconditions (a market sale is not a
// peer-to-peer transfer).
func TransferOwnership(ctx *vm.Context, itemID string, newOwner crypto.Address) error {
	rec, err := getRecord(ctx, itemID)
	if err != nil {
		return err
	}
	rec.Owner = newOwner
	rec.Listed = false
	return putRecord(ctx, rec)
}
