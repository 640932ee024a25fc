package sync

import (
	"context"
	"time"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/processor"
)

// applyForward fetches and applies blocks from peerID starting right after
// the chain's current height, in chunks of cfg.ChunkSize, until the chain
// reaches targetHeight. A failed chunk fetch is retried up to
// cfg.MaxRetries times, with a pause that grows by 500ms per attempt,
// before the whole mechanism aborts — the undo journal leaves the chain in
// a consistent state no matter where in a chunk a failure lands.
func applyForward(ctx context.Context, c *chain.Chain, proc *processor.Processor, peers PeerSource, peerID string, cfg Config, targetHeight uint64) error {
	for c.Height() < targetHeight {
		from := c.Height() + 1
		limit := cfg.ChunkSize

		var blocks []*core.Block
		var err error
		for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
				case <-ctx.Done():
					return errs.Timeout("sync: fetch blocks from %s canceled: %v", peerID, ctx.Err())
				}
			}
			blocks, err = peers.BlocksFrom(ctx, peerID, from, limit)
			if err == nil {
				break
			}
		}
		if err != nil {
			return errs.WrapStorage(err, "sync: fetch blocks from %s starting at %d", peerID, from)
		}
		if len(blocks) == 0 {
			return errs.Validation("sync: peer %s returned no blocks from height %d", peerID, from)
		}

		for _, blk := range blocks {
			if err := proc.ProcessValidated(blk); err != nil {
				return errs.WrapStorage(err, "sync: apply block at height %d", blk.Header.Height)
			}
		}
	}
	return nil
}
