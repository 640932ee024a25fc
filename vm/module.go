// Package vm holds the fixed application-module contract and the registry
// that dispatches (moduleID, assetID) pairs to the module responsible for
// them. The module set is fixed at boot — there is no dynamic class
// loading; Register is called once per module from cmd/node during
// startup.
package vm

import (
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/events"
)

// Context is the narrow handle a module gets during verify/apply: the write
// view over state, the block and transaction being processed, and a
// publisher for domain events. Modules never hold a reference to the
// Processor itself.
type Context struct {
	State *chain.StateStore
	Block *core.Block
	Tx    *core.Transaction
	Bus   *events.Bus
}

// Module is the trait every application module implements. It replaces
// dynamic plugin registration: id/name/accountSchema/transactionAssets are
// static metadata, verify/apply/afterBlockApply are the only code paths the
// Processor ever calls into.
type Module interface {
	ID() uint32
	Name() string
	AccountSchema() core.ModuleSchema
	TransactionAssets() []uint32
	Verify(ctx *Context, asset []byte) error
	Apply(ctx *Context, asset []byte) error
	AfterBlockApply(ctx *Context) error
}
