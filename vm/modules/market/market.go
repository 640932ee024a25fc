// Package market implements listing and buying items on a simple order
// book: one active listing per item, first-come-first-served purchase.
package market

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/vm"
	"github.com/soliduschain/node/vm/modules/item"
)

const ModuleID uint32 = 4

const (
	AssetList uint32 = 0
	AssetBuy  uint32 = 1
)

// Listing is a persisted open offer to sell an item.
type Listing struct {
	ID     string         `json:"id"`
	ItemID string         `json:"itemId"`
	Seller crypto.Address `json:"seller"`
	Price  uint64         `json:"price"`
	Active bool           `json:"active"`
}

type ListAsset struct {
	ListingID string `json:"listingId"`
	ItemID    string `json:"itemId"`
	Price     uint64 `json:"price"`
}

type BuyAsset struct {
	ListingID string `json:"listingId"`
}

// Module implements vm.Module for the marketplace.
type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) ID() uint32   { return ModuleID }
func (m *Module) Name() string { return "market" }
func (m *Module) TransactionAssets() []uint32 {
	return []uint32{AssetList, AssetBuy}
}

func (m *Module) AccountSchema() core.ModuleSchema {
	return core.ModuleSchema{ModuleID: ModuleID, ModuleName: m.Name()}
}

func listingKey(id string) []byte { return []byte("listing:" + id) }

func getListing(ctx *vm.Context, id string) (*Listing, error) {
	raw, err := ctx.State.GetModuleState(listingKey(id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.NotFound("listing %s", id)
	}
	var l Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, errs.WrapSchema(err, "decode listing %s", id)
	}
	return &l, nil
}

func putListing(ctx *vm.Context, l *Listing) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return errs.WrapSchema(err, "encode listing %s", l.ID)
	}
	return ctx.State.PutModuleState(listingKey(l.ID), raw)
}

func (m *Module) Verify(ctx *vm.Context, asset []byte) error {
	switch ctx.Tx.AssetID {
	case AssetList:
		var a ListAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode list asset")
		}
		if a.Price == 0 {
			return errs.Validation("market: listing price must be positive")
		}
		owner, tradeable, listed, err := item.GetOwnerAndTradeable(ctx, a.ItemID)
		if err != nil {
			return err
		}
		if owner != ctx.Tx.SenderPublicKey.Address() {
			return errs.Verification("market: listing requires item ownership")
		}
		if !tradeable {
			return errs.Verification("market: item %s is not tradeable", a.ItemID)
		}
		if listed {
			return errs.Verification("market: item %s already listed", a.ItemID)
		}
	case AssetBuy:
		var a BuyAsset
		if err := json.Unmarshal(asset, &a); err != nil {
			return errs.WrapSchema(err, "decode buy asset")
		}
		listing, err := getListing(ctx, a.ListingID)
		if err != nil {
			return err
		}
		if !listing.Active {
			return errs.Verification("market: listing %s is not active", a.ListingID)
		}
		buyer, err := ctx.State.GetAccount(ctx.Tx.SenderPublicKey.Address())
		if err != nil {
			return err
		}
		if buyer.Balance < listing.Price {
			return errs.Verification("market: insufficient balance to buy listing %s", a.ListingID)
		}
	default:
		return errs.Schema("market: unknown asset id %d", ctx.Tx.AssetID)
	}
	return nil
}

func (m *Module) Apply(ctx *vm.Context, asset []byte) error {
	switch ctx.Tx.AssetID {
	case AssetList:
		var a ListAsset
		_ = json.Unmarshal(asset, &a)
		l := &Listing{ID: a.ListingID, ItemID: a.ItemID, Seller: ctx.Tx.SenderPublicKey.Address(), Price: a.Price, Active: true}
		if err := putListing(ctx, l); err != nil {
			return err
		}
		return item.MarkListed(ctx, a.ItemID, true)
	case AssetBuy:
		var a BuyAsset
		_ = json.Unmarshal(asset, &a)
		listing, err := getListing(ctx, a.ListingID)
		if err != nil {
			return err
		}
		buyer, err := ctx.State.GetAccount(ctx.Tx.SenderPublicKey.Address())
		if err != nil {
			return err
		}
		if buyer.Balance < listing.Price {
			return errs.Verification("market: insufficient balance at apply time")
		}
		seller, err := ctx.State.GetAccount(listing.Seller)
		if err != nil {
			return err
		}
		buyer.Balance -= listing.Price
		seller.Balance += listing.Price
		if err := ctx.State.PutAccount(buyer); err != nil {
			return err
		}
		if err := ctx.State.PutAccount(seller); err != nil {
			return err
		}
		if err := item.TransferOwnership(ctx, listing.ItemID, buyer.Address); err != nil {
			return err
		}
		listing.Active = false
		return putListing(ctx, listing)
	}
	return errs.Schema("market: unknown asset id %d", ctx.Tx.AssetID)
}

func (m *Module) AfterBlockApply(ctx *vm.Context) error { return nil }
