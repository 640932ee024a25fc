// Package metrics exposes the node's Prometheus collectors, consulted
// through rpc.Server's /metrics endpoint. Grounded on the pack's
// promauto.NewGauge/NewCounter style (see beacon-chain's reorgCount
// counter) rather than hand-rolled collectors, using the
// prometheus/client_golang dependency the teacher already carries but
// never wires an endpoint for.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/soliduschain/node/events"
)

var (
	blockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "node_block_height",
		Help: "Height of the local chain tip.",
	})
	finalizedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "node_finalized_height",
		Help: "Highest height the BFT Finality Manager has finalized.",
	})
	poolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "node_pool_size",
		Help: "Number of transactions currently pending in the pool.",
	})
	syncInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "node_sync_in_progress",
		Help: "1 while the Synchronizer owns the chain, 0 otherwise.",
	})
	blocksDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "node_blocks_reverted_total",
		Help: "Number of blocks removed by deleteLastBlock fork-choice reverts.",
	})
	syncRequiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "node_sync_required_total",
		Help: "Number of SyncRequired events observed.",
	})
)

// PoolSizer is the minimal view of pool.Pool the collector needs.
type PoolSizer interface {
	Size() int
}

// SyncStatus is the minimal view of sync.Synchronizer the collector needs.
type SyncStatus interface {
	IsActive() bool
}

// Collector keeps the package-level gauges current by subscribing to the
// event bus and polling pool size / sync status on a fixed interval.
type Collector struct {
	pool PoolSizer
	sync SyncStatus
	stop chan struct{}
}

// NewCollector subscribes to bus and starts the background poll loop for
// the metrics that have no corresponding event (pool size, sync status).
// Stop must be called to release the poll goroutine.
func NewCollector(bus *events.Bus, pool PoolSizer, sync SyncStatus) *Collector {
	c := &Collector{pool: pool, sync: sync, stop: make(chan struct{})}
	if bus != nil {
		bus.Subscribe(c.onNewBlock)
		bus.Subscribe(c.onDeleteBlock)
		bus.Subscribe(c.onBlockFinalized)
		bus.Subscribe(c.onSyncRequired)
	}
	go c.pollLoop()
	return c
}

// Stop ends the background poll loop.
func (c *Collector) Stop() {
	close(c.stop)
}

func (c *Collector) onNewBlock(ev events.NewBlock) {
	blockHeight.Set(float64(ev.Block.Header.Height))
}

func (c *Collector) onDeleteBlock(ev events.DeleteBlock) {
	blocksDeleted.Inc()
	if ev.Block.Header.Height > 0 {
		blockHeight.Set(float64(ev.Block.Header.Height - 1))
	}
}

func (c *Collector) onBlockFinalized(ev events.BlockFinalized) {
	finalizedHeight.Set(float64(ev.Height))
}

func (c *Collector) onSyncRequired(events.SyncRequired) {
	syncRequiredTotal.Inc()
}

// pollLoop updates the gauges that depend on a collaborator's current
// state rather than a discrete event: pool occupancy and whether the
// Synchronizer currently owns the chain.
func (c *Collector) pollLoop() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.pool != nil {
				poolSize.Set(float64(c.pool.Size()))
			}
			if c.sync != nil {
				if c.sync.IsActive() {
					syncInProgress.Set(1)
				} else {
					syncInProgress.Set(0)
				}
			}
		case <-c.stop:
			return
		}
	}
}
