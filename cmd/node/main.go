// Command node starts a Solidus Chain node: the Block Processor, BFT
// Finality Manager, Synchronizer, Forger, and Transaction Pool wired to
// persistent storage, the peer transport, and the operator RPC surface.
package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/config"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/crypto/certgen"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/forger"
	"github.com/soliduschain/node/indexer"
	"github.com/soliduschain/node/log"
	"github.com/soliduschain/node/metrics"
	"github.com/soliduschain/node/network"
	"github.com/soliduschain/node/pool"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/rpc"
	"github.com/soliduschain/node/slot"
	"github.com/soliduschain/node/storage"
	nodesync "github.com/soliduschain/node/sync"
	"github.com/soliduschain/node/vm"
	"github.com/soliduschain/node/vm/modules/economy"
	"github.com/soliduschain/node/vm/modules/item"
	"github.com/soliduschain/node/vm/modules/market"
	"github.com/soliduschain/node/vm/modules/session"
	"github.com/soliduschain/node/wallet"
)

var logger = log.Component("cmd")

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "soliduschain-node"
	app.Usage = "delegated-proof-of-stake node with BFT finality"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Value: "config.json", Usage: "path to config file"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "start the node",
			Action: runAction,
		},
		{
			Name:   "init",
			Usage:  "write a default config file and exit",
			Action: initAction,
		},
		{
			Name:  "genkey",
			Usage: "generate a delegate keypair and import it into the node's keystore",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "password", Usage: "keystore password (defaults to $SOLIDUS_PASSWORD)"},
			},
			Action: genkeyAction,
		},
		{
			Name:  "gencerts",
			Usage: "generate a CA and node TLS certificate pair for mTLS",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "dir", Value: "./certs", Usage: "output directory"},
			},
			Action: gencertsAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithField("err", err).Fatal("node exited with error")
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField("path", path).Warn("config file not found, using defaults")
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func initAction(c *cli.Context) error {
	path := c.GlobalString("config")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("init: %s already exists", path)
	}
	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

func genkeyAction(c *cli.Context) error {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	password := c.String("password")
	if password == "" {
		password = os.Getenv("SOLIDUS_PASSWORD")
	}
	if password == "" {
		logger.Warn("no password supplied — keystore will be sealed with an empty password")
	}

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.OpenLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	addr, err := wallet.New(db).Import(priv, password)
	if err != nil {
		return fmt.Errorf("import key: %w", err)
	}

	fmt.Printf("Generated delegate key.\n")
	fmt.Printf("  public key: %s\n", pub.Hex())
	fmt.Printf("  address:    %s\n", addr.Hex())
	fmt.Printf("Add the public key to forging.delegates in %s to enable forging for it.\n", c.GlobalString("config"))
	return nil
}

func gencertsAction(c *cli.Context) error {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	dir := c.String("dir")
	if err := certgen.GenerateAll(dir, cfg.NodeID, nil); err != nil {
		return fmt.Errorf("gencerts: %w", err)
	}
	fmt.Printf("Certificates generated in %s for node %q\n", dir, cfg.NodeID)
	return nil
}

// genesisProposerKey derives a deterministic ed25519 keypair from the chain
// id so every node building the genesis block from the same GenesisConfig
// signs it identically and chain.Bootstrap's id comparison always agrees —
// no operator key material is needed to author block #0.
func genesisProposerKey(cfg *config.Config) (crypto.PrivKey, crypto.PubKey, error) {
	seed := crypto.Hash256Bytes([]byte("genesis:" + cfg.Genesis.ChainID))
	raw := ed25519.NewKeyFromSeed(seed)
	priv, err := crypto.PrivKeyFromBytes(raw)
	if err != nil {
		return nil, crypto.PubKey{}, err
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, crypto.PubKey{}, err
	}
	return priv, pub, nil
}

// penalizerRef breaks the construction cycle between processor.New (which
// needs a PeerPenalizer at birth) and network.New (which needs the already
// built *processor.Processor): the Processor gets a stable reference whose
// target is only set once the Transport exists, a few lines later in the
// same function.
type penalizerRef struct {
	t *network.Transport
}

func (r *penalizerRef) Penalize(peerID string, severity int) {
	if r.t != nil {
		r.t.Penalize(peerID, severity)
	}
}

// peerLister adapts network.Node's richer *Peer slice to rpc.PeerLister's
// minimal PeerInfo view, keeping rpc/ free of a compile-time dependency on
// the transport implementation.
type peerLister struct {
	node *network.Node
}

func (p peerLister) Peers() []rpc.PeerInfo {
	peers := p.node.Peers()
	out := make([]rpc.PeerInfo, len(peers))
	for i, peer := range peers {
		out[i] = rpc.PeerInfo{ID: peer.ID, Addr: peer.Addr}
	}
	return out
}

// poolValidatorFunc builds the pool's semantic dry-run callback: it runs
// Verify then Apply against a fresh snapshot so admission catches failures
// that only surface once the module has accounted for earlier pooled
// transactions from the same sender, without committing anything.
func poolValidatorFunc(c *chain.Chain, registry *vm.Registry, bus *events.Bus) pool.ValidatorFunc {
	return func(store *chain.StateStore, tx *core.Transaction) error {
		pending := &core.Block{Header: core.Header{Height: c.Height() + 1}}
		ctx := &vm.Context{State: store, Block: pending, Tx: tx, Bus: bus}
		if err := registry.Verify(ctx, tx); err != nil {
			return err
		}
		return registry.Apply(ctx, tx)
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	password := os.Getenv("SOLIDUS_PASSWORD")
	if password == "" {
		password = cfg.Forging.DefaultPassword
	}
	if password == "" && len(cfg.Forging.Delegates) > 0 {
		logger.Warn("SOLIDUS_PASSWORD not set and forging.default_password empty — delegate keystores will not unlock")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.OpenLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	bus := events.NewBus()

	ch, err := chain.Open(db)
	if err != nil {
		return fmt.Errorf("chain open: %w", err)
	}

	genesisPriv, genesisPub, err := genesisProposerKey(cfg)
	if err != nil {
		return fmt.Errorf("genesis key: %w", err)
	}
	genesisBlock, err := config.BuildGenesisBlock(&cfg.Genesis, genesisPriv, genesisPub)
	if err != nil {
		return fmt.Errorf("build genesis block: %w", err)
	}
	if err := config.Bootstrap(ch, db, &cfg.Genesis, genesisBlock); err != nil {
		return fmt.Errorf("genesis bootstrap: %w", err)
	}
	logger.WithField("id", genesisBlock.ID()).Info("genesis ready")

	bftMgr := bft.New(db, bus, cfg.Genesis.BFTThreshold)

	registry := vm.NewRegistry()
	for _, m := range []vm.Module{economy.New(), item.New(), market.New(), session.New()} {
		if err := registry.Register(m); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name(), err)
		}
	}

	clock := slot.NewClock(genesisBlock.Header.Timestamp, cfg.Genesis.BlockTime)

	penalizer := &penalizerRef{}
	proc := processor.New(ch, bftMgr, registry, bus, clock, cfg.Genesis.ToProcessorConfig(), penalizer)
	if err := proc.Init(genesisBlock); err != nil {
		return fmt.Errorf("processor init: %w", err)
	}

	txPool := pool.New(cfg.ToPoolConfig(), ch, bus, poolValidatorFunc(ch, registry, bus))

	keystore := wallet.New(db)

	node := network.NewNode(cfg.NodeID, cfg.Network.ListenAddr)
	tlsCfg, err := config.LoadTLSConfig(cfg.Network.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		node.UseTLS(tlsCfg)
		logger.Info("mTLS enabled for P2P")
	}

	transport := network.New(node, ch, proc, txPool, bus)
	penalizer.t = transport

	syncCfg := cfg.ToSyncConfig()
	mechanisms := []nodesync.Mechanism{
		nodesync.NewBlockSynchronizationMechanism(ch, proc, transport, transport, syncCfg),
		nodesync.NewFastChainSwitchingMechanism(ch, proc, transport, transport, syncCfg),
	}
	synchronizer := nodesync.New(bus, mechanisms...)

	idx := indexer.New(db, bus)

	fg := forger.New(ch, bftMgr, proc, txPool, clock, cfg.ToForgerConfig(), keystore, synchronizer, bus)

	metricsCollector := metrics.NewCollector(bus, txPool, synchronizer)
	defer metricsCollector.Stop()

	info := rpc.Info{
		NodeID:         cfg.NodeID,
		Version:        version,
		ChainID:        cfg.Genesis.ChainID,
		NetworkVersion: cfg.Network.NetworkVersion,
	}
	handler := rpc.NewHandler(info, ch, txPool, fg, bftMgr, registry, idx, peerLister{node}, synchronizer, bus)
	rpcServer := rpc.NewServer(cfg.RPCAddr, handler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	logger.WithField("addr", cfg.RPCAddr).Info("rpc listening")
	if cfg.RPCAuthToken != "" {
		logger.Info("rpc bearer token authentication enabled")
	}

	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	logger.WithField("addr", node.Addr()).Info("p2p listening")

	for _, sp := range cfg.Network.SeedPeers {
		if _, err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			logger.WithField("peer", sp.ID).WithField("err", err).Warn("failed to connect seed peer")
			continue
		}
		logger.WithField("peer", sp.ID).Info("connected to seed peer")
	}

	for _, pubHex := range cfg.Forging.Delegates {
		pub, err := crypto.PubKeyFromHex(pubHex)
		if err != nil {
			logger.WithField("pubkey", pubHex).WithField("err", err).Warn("skipping malformed forging.delegates entry")
			continue
		}
		addr := pub.Address()
		if !keystore.Has(addr) {
			logger.WithField("address", addr.Hex()).Warn("no keystore for configured delegate; run genkey first")
			continue
		}
		if err := fg.UpdateForgingStatus(addr, password, true); err != nil {
			logger.WithField("address", addr.Hex()).WithField("err", err).Warn("failed to unlock delegate for forging")
			continue
		}
		logger.WithField("address", addr.Hex()).Info("forging enabled for delegate")
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		forgeLoop(fg, cfg.Genesis.BlockTime, stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepLoop(txPool, stop)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	// Stop the forge/sweep loops first: no new blocks get built while the
	// deferred rpcServer/node/db teardown below runs in LIFO order.
	close(stop)
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

// forgeLoop drives Forger.Tick on a cooperative schedule, matching spec
// §4.5's "cooperative tick every forgeInterval ms". A tick interval of one
// quarter the block time keeps slot-boundary detection tight without
// busy-polling.
func forgeLoop(fg *forger.Forger, blockTime uint32, stop <-chan struct{}) {
	interval := time.Duration(blockTime) * time.Second / 4
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := fg.Tick(uint32(now.Unix())); err != nil {
				logger.WithField("err", err).Debug("forge tick skipped")
			}
		}
	}
}

// sweepLoop periodically evicts pool transactions older than
// pool.Config.ExpiryInterval, per spec §4.4's "any tx older than
// expiryInterval is evicted on a periodic sweep".
func sweepLoop(p *pool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.SweepExpired()
		}
	}
}
