package sync

import (
	"context"

	"github.com/soliduschain/node/events"
)

// Config bounds both mechanisms' peer sampling, probing stride, chunk size,
// and retry behavior. Every field is "configured" per spec, supplied by
// config/ at node startup.
type Config struct {
	SampleSize  int // peers sampled when picking a reference peer
	Quorum      int // minimum peers that must agree on the same tip id
	ProbeStride int // stride, in blocks, when probing for the common block
	ChunkSize   int // blocks requested per forward-apply chunk
	MaxRetries  int // bounded retries per chunk before aborting
	RoundLength int // active delegate count; bounds FastChainSwitch to 2 rounds
}

func (c Config) withDefaults() Config {
	if c.SampleSize <= 0 {
		c.SampleSize = 5
	}
	if c.Quorum <= 0 {
		c.Quorum = 3
	}
	if c.ProbeStride <= 0 {
		c.ProbeStride = 10
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 34
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RoundLength <= 0 {
		c.RoundLength = 1
	}
	return c
}

// Mechanism is one named recovery strategy. The Synchronizer asks each
// registered mechanism IsValidFor in registration order and runs the first
// match.
type Mechanism interface {
	Name() string
	IsValidFor(req events.SyncRequired) bool
	Run(ctx context.Context, req events.SyncRequired) error
}
