package processor

import (
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/errs"
)

// validate runs every pure, no-DB-write check on block: header schema,
// generator signature, slot/forger assignment, payload size, transaction
// merkle root, and each transaction's static validity. It never touches
// persisted state.
func (p *Processor) validate(block *core.Block) error {
	if err := validateHeaderSchema(block); err != nil {
		return err
	}
	if !block.Header.VerifySignature() {
		return errs.Validation("processor: header signature does not verify for block %s", block.ID())
	}
	if err := p.validateSlotAssignment(block); err != nil {
		return err
	}
	if p.cfg.MaxPayloadLength > 0 {
		size := 0
		for _, tx := range block.Payload {
			size += tx.Size()
		}
		if size > p.cfg.MaxPayloadLength {
			return errs.Validation("processor: payload size %d exceeds max %d", size, p.cfg.MaxPayloadLength)
		}
	}
	if !block.VerifyIntegrity() {
		return errs.Validation("processor: transaction root mismatch for block %s", block.ID())
	}
	for _, tx := range block.Payload {
		if err := staticValidateTransaction(tx); err != nil {
			return err
		}
	}
	return nil
}

func validateHeaderSchema(block *core.Block) error {
	h := block.Header
	if h.Version == 0 {
		return errs.Schema("processor: header missing version")
	}
	if h.GeneratorPublicKey.IsZero() {
		return errs.Schema("processor: header missing generatorPublicKey")
	}
	if h.Height > 0 && h.PreviousBlockID.IsZero() {
		return errs.Schema("processor: non-genesis header missing previousBlockId")
	}
	return nil
}

func (p *Processor) validateSlotAssignment(block *core.Block) error {
	p.mu.Lock()
	vs := p.validators
	p.mu.Unlock()
	if vs.Len() == 0 {
		return nil // validator set not yet known (e.g. genesis bootstrap)
	}
	s := p.clock.SlotAt(block.Header.Timestamp)
	if !p.clock.InSlot(block.Header.Timestamp, s) {
		return errs.Validation("processor: timestamp %d outside its own slot", block.Header.Timestamp)
	}
	expected := vs.ForgerForSlot(s)
	if expected != block.Header.GeneratorPublicKey.Address() {
		return errs.Validation("processor: generator %s is not the assigned forger for slot %d", block.Header.GeneratorPublicKey.Address(), s)
	}
	return nil
}

func staticValidateTransaction(tx *core.Transaction) error {
	if tx.SenderPublicKey.IsZero() {
		return errs.Schema("processor: transaction missing senderPublicKey")
	}
	if !tx.VerifyPrimarySignature() {
		return errs.Validation("processor: transaction %s signature does not verify", tx.ID())
	}
	return nil
}
