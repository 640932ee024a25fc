package vm

import (
	"fmt"
	"sort"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/errs"
)

// Registry is the fixed (moduleID, assetID) -> Module lookup table.
type Registry struct {
	modules map[uint32]Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[uint32]Module)}
}

// Register adds m to the table. Returns an error if ModuleID is already
// taken — a boot-time configuration mistake, not a runtime condition.
func (r *Registry) Register(m Module) error {
	if _, exists := r.modules[m.ID()]; exists {
		return fmt.Errorf("vm: module id %d already registered", m.ID())
	}
	r.modules[m.ID()] = m
	return nil
}

// Lookup resolves a module by id.
func (r *Registry) Lookup(moduleID uint32) (Module, bool) {
	m, ok := r.modules[moduleID]
	return m, ok
}

// Modules returns every registered module, for AfterBlockApply and schema
// composition.
func (r *Registry) Modules() []Module {
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	return out
}

// Verify dispatches to the module owning tx's (ModuleID, AssetID), checking
// first that the module actually declares that asset id.
func (r *Registry) Verify(ctx *Context, tx *core.Transaction) error {
	m, ok := r.lookupAsset(tx)
	if !ok {
		return errs.Schema("vm: no module registered for moduleID=%d assetID=%d", tx.ModuleID, tx.AssetID)
	}
	return m.Verify(ctx, tx.Asset)
}

// Apply dispatches tx to its owning module's Apply.
func (r *Registry) Apply(ctx *Context, tx *core.Transaction) error {
	m, ok := r.lookupAsset(tx)
	if !ok {
		return errs.Schema("vm: no module registered for moduleID=%d assetID=%d", tx.ModuleID, tx.AssetID)
	}
	return m.Apply(ctx, tx.Asset)
}

func (r *Registry) lookupAsset(tx *core.Transaction) (Module, bool) {
	m, ok := r.modules[tx.ModuleID]
	if !ok {
		return nil, false
	}
	for _, a := range m.TransactionAssets() {
		if a == tx.AssetID {
			return m, true
		}
	}
	return nil, false
}

// AfterBlockApply runs every module's end-of-block hook, in ascending
// module-id order.
func (r *Registry) AfterBlockApply(ctx *Context) error {
	ids := make([]uint32, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m := r.modules[id]
		if err := m.AfterBlockApply(ctx); err != nil {
			return fmt.Errorf("vm: module %s afterBlockApply: %w", m.Name(), err)
		}
	}
	return nil
}

// ComposeSchema merges every registered module's AccountSchema into one
// registry, consulted by the getSchema operator RPC.
func (r *Registry) ComposeSchema() *core.SchemaRegistry {
	reg := core.NewSchemaRegistry()
	for _, m := range r.modules {
		reg.Register(m.AccountSchema())
	}
	return reg
}
